// Package playback реализует проигрыватель удаленных голосовых заметок
// с периодической рассылкой снимков состояния.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/audio"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// DefaultTickInterval - интервал рассылки снимков состояния.
const DefaultTickInterval = 250 * time.Millisecond

// ErrPlaybackLoad - удаленное аудио не удалось подготовить к воспроизведению.
// Не фатально: управление проигрывателем остается безопасным no-op.
var ErrPlaybackLoad = errors.New("failed to load remote audio")

// Константы для сообщений.
const (
	LogAudioLoaded    = "remote audio loaded"
	ErrFetchAudio     = "failed to fetch audio"
	ErrUnexpectedCode = "unexpected status code"
	ErrDecodeAudio    = "failed to decode audio"
)

// Engine реализует интерфейс services.Player. Каждая заметка получает
// независимый экземпляр; глобального ограничения "играет только одна" нет.
type Engine struct {
	client *http.Client
	sink   services.AudioSink
	tick   time.Duration
	now    func() time.Time

	mu         sync.Mutex
	loaded     bool
	loadErr    error
	playing    bool
	duration   time.Duration
	position   time.Duration // позиция на момент последней паузы/перемотки
	resumedAt  time.Time     // момент последнего Play
	pcm        []byte
	sampleRate int
	streamed   int64 // байт PCM, отданных в sink

	updates   chan services.PlaybackState
	closeOnce sync.Once
	closed    chan struct{}
}

// Option настраивает Engine.
type Option func(*Engine)

// WithHTTPClient подменяет HTTP-клиент загрузки.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithSink задает приемник PCM-кадров воспроизводимого аудио.
func WithSink(sink services.AudioSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithTickInterval задает интервал рассылки снимков состояния.
func WithTickInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.tick = interval
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine создает проигрыватель.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:  http.DefaultClient,
		tick:    DefaultTickInterval,
		now:     time.Now,
		updates: make(chan services.PlaybackState, 1),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Load загружает и декодирует аудио по URL. Сбой фиксируется в состоянии
// проигрывателя, не прерывая вызывающего.
func (e *Engine) Load(ctx context.Context, url string) {
	log := logger.Log(ctx).With(zap.String("method", "Engine.Load"))

	pcm, sampleRate, duration, err := e.fetch(ctx, url)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Повторный Load сбрасывает предыдущее состояние.
	e.loaded = false
	e.playing = false
	e.position = 0
	e.streamed = 0
	e.pcm = nil

	if err != nil {
		e.loadErr = fmt.Errorf("%w: %w", ErrPlaybackLoad, err)
		log.Error(ctx, "audio load failed", zap.Error(err), zap.String("url", url))
		return
	}

	e.loadErr = nil
	e.loaded = true
	e.pcm = pcm
	e.sampleRate = sampleRate
	e.duration = duration

	log.Debug(ctx, LogAudioLoaded,
		zap.String("url", url),
		zap.Int64("durationMs", duration.Milliseconds()))
}

// fetch скачивает WAV и возвращает PCM-данные, частоту и длительность.
func (e *Engine) fetch(ctx context.Context, url string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", ErrFetchAudio, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", ErrFetchAudio, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, 0, fmt.Errorf("%s: %d", ErrUnexpectedCode, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", ErrFetchAudio, err)
	}

	header, err := audio.ParseHeader(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", ErrDecodeAudio, err)
	}

	pcm := data[audio.HeaderSize:]
	if int64(len(pcm)) > int64(header.Subchunk2Size) {
		pcm = pcm[:header.Subchunk2Size]
	}

	return pcm, int(header.SampleRate), header.Duration(), nil
}

// Play начинает воспроизведение; no-op до успешной загрузки.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.playing {
		return
	}
	if e.position >= e.duration {
		e.position = 0
		e.streamed = 0
	}
	e.playing = true
	e.resumedAt = e.now()
}

// Pause приостанавливает воспроизведение; no-op до успешной загрузки.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || !e.playing {
		return
	}
	e.position = e.currentPosition()
	e.playing = false
}

// Seek перемещает позицию воспроизведения; no-op до успешной загрузки.
func (e *Engine) Seek(positionMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return
	}

	target := time.Duration(positionMs) * time.Millisecond
	if target < 0 {
		target = 0
	}
	if target > e.duration {
		target = e.duration
	}

	e.position = target
	e.streamed = e.pcmOffset(target)
	if e.playing {
		e.resumedAt = e.now()
	}
}

// State возвращает текущий снимок состояния.
func (e *Engine) State() services.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Updates - канал периодических снимков состояния. Снимки, не прочитанные
// потребителем, замещаются более свежими.
func (e *Engine) Updates() <-chan services.PlaybackState {
	return e.updates
}

// Close освобождает ресурсы воспроизведения. Повторные вызовы безопасны.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.sink != nil {
			_ = e.sink.Close()
		}
	})
}

// run - цикл периодической выборки состояния: продвигает позицию,
// отдает PCM-кадры в sink и рассылает снимки.
func (e *Engine) run() {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.mu.Lock()
			e.advance()
			state := e.snapshot()
			e.mu.Unlock()

			// Непрочитанный снимок вытесняется свежим.
			select {
			case e.updates <- state:
			default:
				select {
				case <-e.updates:
				default:
				}
				select {
				case e.updates <- state:
				default:
				}
			}
		}
	}
}

// advance продвигает воспроизведение до текущего момента: отдает sink
// накопившиеся кадры и останавливается на конце дорожки.
// Вызывается с удержанным мьютексом.
func (e *Engine) advance() {
	if !e.loaded || !e.playing {
		return
	}

	pos := e.currentPosition()

	if e.sink != nil {
		target := e.pcmOffset(pos)
		if target > e.streamed {
			_, _ = e.sink.Write(e.pcm[e.streamed:target])
			e.streamed = target
		}
	}

	if pos >= e.duration {
		e.position = e.duration
		e.playing = false
	}
}

// currentPosition вычисляет позицию с учетом времени с последнего Play.
// Вызывается с удержанным мьютексом.
func (e *Engine) currentPosition() time.Duration {
	pos := e.position
	if e.playing {
		pos += e.now().Sub(e.resumedAt)
		// resumedAt сдвигается, чтобы позиция не накапливалась дважды.
		e.position = pos
		e.resumedAt = e.now()
	}
	if pos > e.duration {
		pos = e.duration
	}
	return pos
}

// pcmOffset возвращает смещение в PCM-данных для позиции, выровненное на сэмпл.
// Вызывается с удержанным мьютексом.
func (e *Engine) pcmOffset(pos time.Duration) int64 {
	if e.duration <= 0 {
		return 0
	}
	offset := int64(float64(len(e.pcm)) * float64(pos) / float64(e.duration))
	offset -= offset % audio.BytesPerSample
	if offset > int64(len(e.pcm)) {
		offset = int64(len(e.pcm))
	}
	return offset
}

// snapshot строит снимок состояния. Вызывается с удержанным мьютексом.
func (e *Engine) snapshot() services.PlaybackState {
	state := services.PlaybackState{
		IsLoaded:  e.loaded,
		IsPlaying: e.playing,
		Err:       e.loadErr,
	}
	if e.loaded {
		state.DurationMs = e.duration.Milliseconds()
		pos := e.position
		if e.playing {
			pos = e.currentPosition()
		}
		state.PositionMs = pos.Milliseconds()
	}
	return state
}
