package services

import (
	"context"
	"errors"
	"io"
)

// Ошибки записи аудио.
var (
	// ErrPermissionDenied - доступ к микрофону отклонен; попытка завершена,
	// повтор возможен только по явному действию пользователя.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNoActiveRecording - Stop вызван без предшествующего успешного Start.
	ErrNoActiveRecording = errors.New("no active recording")
	// ErrRecordingActive - микрофон уже занят; вторая запись не ставится
	// в очередь, а немедленно отклоняется.
	ErrRecordingActive = errors.New("recording already active")
)

// Recording - результат завершенной записи: локальный файл и длительность.
type Recording struct {
	Path       string
	DurationMs int64
}

// ProgressFunc получает прошедшее время записи в миллисекундах.
type ProgressFunc func(elapsedMs int64)

// Recorder записывает аудио с микрофона в локальный файл.
// Конечный автомат: Idle -> Recording -> Idle (через Stop или ошибку);
// паузы и возобновления нет.
type Recorder interface {
	Start(ctx context.Context, onProgress ProgressFunc) error
	Stop() (*Recording, error)
}

// PermissionPrompter запрашивает у платформы доступ к микрофону.
type PermissionPrompter interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// MicrophoneStream - открытый поток PCM-16 кадров с устройства.
type MicrophoneStream interface {
	io.ReadCloser
	SampleRate() int
}

// Microphone открывает эксклюзивный поток захвата с устройства.
type Microphone interface {
	Open(ctx context.Context) (MicrophoneStream, error)
}
