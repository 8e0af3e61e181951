// Package capture реализует запись аудио с микрофона в локальный WAV-файл.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/audio"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// DefaultPollInterval - интервал отчета о прошедшем времени записи.
const DefaultPollInterval = 200 * time.Millisecond

// Константы для сообщений.
const (
	LogRecordingStarted  = "recording started"
	LogRecordingStopped  = "recording stopped"
	ErrRequestPermission = "failed to request microphone permission"
	ErrOpenMicrophone    = "failed to open microphone"
	ErrCreateLocalFile   = "failed to create local audio file"
	ErrFinalizeFile      = "failed to finalize audio file"
)

// FileRecorder реализует интерфейс services.Recorder: буферизует PCM-кадры
// микрофона в локальный WAV-файл и периодически сообщает прошедшее время.
// Микрофон удерживается эксклюзивно между Start и Stop.
type FileRecorder struct {
	prompter     services.PermissionPrompter
	mic          services.Microphone
	dir          string
	pollInterval time.Duration
	now          func() time.Time

	mu     sync.Mutex
	active *activeRecording
}

// activeRecording - состояние одной записи между Start и Stop.
type activeRecording struct {
	file       *os.File
	stream     services.MicrophoneStream
	sampleRate int
	startedAt  time.Time

	written      int64
	writtenMu    sync.Mutex
	captureDone  chan struct{}
	captureErr   error
	progressStop chan struct{}
}

// Option настраивает FileRecorder.
type Option func(*FileRecorder)

// WithPollInterval задает интервал отчета о длительности.
func WithPollInterval(interval time.Duration) Option {
	return func(r *FileRecorder) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *FileRecorder) {
		r.now = now
	}
}

// WithDir задает каталог для локальных файлов записи.
func WithDir(dir string) Option {
	return func(r *FileRecorder) {
		r.dir = dir
	}
}

// NewFileRecorder создает новый рекордер.
func NewFileRecorder(prompter services.PermissionPrompter, mic services.Microphone, opts ...Option) *FileRecorder {
	r := &FileRecorder{
		prompter:     prompter,
		mic:          mic,
		dir:          os.TempDir(),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start запрашивает доступ к микрофону и начинает буферизацию аудио.
// Отказ в доступе - ErrPermissionDenied, локальный файл при этом не создается.
// Повторный Start при активной записи - ErrRecordingActive.
func (r *FileRecorder) Start(ctx context.Context, onProgress services.ProgressFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logger.Log(ctx).With(zap.String("method", "FileRecorder.Start"))

	if r.active != nil {
		return services.ErrRecordingActive
	}

	granted, err := r.prompter.RequestMicrophone(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrRequestPermission, err)
	}
	if !granted {
		log.Debug(ctx, "microphone permission denied")
		return services.ErrPermissionDenied
	}

	stream, err := r.mic.Open(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrOpenMicrophone, err)
	}

	file, err := os.CreateTemp(r.dir, "voicenote-*.wav")
	if err != nil {
		_ = stream.Close()
		return fmt.Errorf("%s: %w", ErrCreateLocalFile, err)
	}

	// Заголовок с нулевым размером данных; реальные размеры
	// дописываются при финализации в Stop.
	if err := audio.WriteHeader(file, audio.NewHeader(stream.SampleRate(), 0)); err != nil {
		_ = stream.Close()
		_ = file.Close()
		_ = os.Remove(file.Name())
		return fmt.Errorf("%s: %w", ErrCreateLocalFile, err)
	}

	rec := &activeRecording{
		file:         file,
		stream:       stream,
		sampleRate:   stream.SampleRate(),
		startedAt:    r.now(),
		captureDone:  make(chan struct{}),
		progressStop: make(chan struct{}),
	}
	r.active = rec

	go rec.capture()
	if onProgress != nil {
		go rec.reportProgress(r.pollInterval, r.now, onProgress)
	}

	log.Debug(ctx, LogRecordingStarted, zap.String("file", file.Name()), zap.Int("sampleRate", rec.sampleRate))
	return nil
}

// Stop завершает запись, финализирует файл и возвращает его путь
// и суммарную длительность. Устройство освобождается на любом пути выхода.
func (r *FileRecorder) Stop() (*services.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.active
	if rec == nil {
		return nil, services.ErrNoActiveRecording
	}
	r.active = nil

	// Закрытие потока разблокирует цикл захвата; устройство
	// освобождается независимо от результата финализации.
	_ = rec.stream.Close()
	<-rec.captureDone
	close(rec.progressStop)

	rec.writtenMu.Lock()
	written := rec.written
	rec.writtenMu.Unlock()

	if err := rec.finalize(written); err != nil {
		_ = rec.file.Close()
		_ = os.Remove(rec.file.Name())
		return nil, fmt.Errorf("%s: %w", ErrFinalizeFile, err)
	}

	if err := rec.file.Close(); err != nil {
		_ = os.Remove(rec.file.Name())
		return nil, fmt.Errorf("%s: %w", ErrFinalizeFile, err)
	}

	durationMs := audio.PCMDuration(written, rec.sampleRate).Milliseconds()

	return &services.Recording{
		Path:       rec.file.Name(),
		DurationMs: durationMs,
	}, nil
}

// capture копирует PCM-кадры потока в файл до закрытия потока.
func (rec *activeRecording) capture() {
	defer close(rec.captureDone)

	buf := make([]byte, 4096)
	for {
		n, err := rec.stream.Read(buf)
		if n > 0 {
			if _, werr := rec.file.Write(buf[:n]); werr != nil {
				rec.captureErr = werr
				return
			}
			rec.writtenMu.Lock()
			rec.written += int64(n)
			rec.writtenMu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				rec.captureErr = err
			}
			return
		}
	}
}

// reportProgress сообщает прошедшее время записи с фиксированным интервалом.
func (rec *activeRecording) reportProgress(interval time.Duration, now func() time.Time, onProgress services.ProgressFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.progressStop:
			return
		case <-ticker.C:
			onProgress(now().Sub(rec.startedAt).Milliseconds())
		}
	}
}

// finalize дописывает фактические размеры в заголовок WAV.
func (rec *activeRecording) finalize(written int64) error {
	if rec.captureErr != nil {
		return rec.captureErr
	}
	if _, err := rec.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return audio.WriteHeader(rec.file, audio.NewHeader(rec.sampleRate, uint32(written)))
}
