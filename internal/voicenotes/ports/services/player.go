package services

import "context"

// PlaybackState - снимок состояния проигрывателя, рассылаемый с фиксированным
// интервалом, пока аудио загружено.
type PlaybackState struct {
	IsLoaded   bool
	IsPlaying  bool
	DurationMs int64
	PositionMs int64
	Err        error
}

// Player воспроизводит удаленное аудио с отслеживанием позиции.
// Play, Pause и Seek до успешной загрузки - безопасные no-op, не ошибки.
type Player interface {
	// Load подготавливает аудио по URL. Сбой не паникует и не прерывает
	// вызывающего: ошибка фиксируется в состоянии проигрывателя.
	Load(ctx context.Context, url string)
	Play()
	Pause()
	Seek(positionMs int64)
	// State возвращает текущий снимок состояния.
	State() PlaybackState
	// Updates - канал периодических снимков состояния.
	Updates() <-chan PlaybackState
	// Close освобождает ресурсы воспроизведения.
	Close()
}

// AudioSink принимает PCM-кадры воспроизводимого аудио. Реализация зависит
// от платформы (аудио-устройство, файл, сеть).
type AudioSink interface {
	Write(p []byte) (int, error)
	Close() error
}
