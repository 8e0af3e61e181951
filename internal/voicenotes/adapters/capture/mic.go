package capture

import (
	"context"
	"io"

	"familyvoice/internal/voicenotes/ports/services"
)

// StaticPrompter - разрешение, определенное заранее (headless-окружения,
// где платформенного диалога нет).
type StaticPrompter bool

// RequestMicrophone возвращает заранее заданный ответ.
func (p StaticPrompter) RequestMicrophone(_ context.Context) (bool, error) {
	return bool(p), nil
}

// SourceMicrophone читает сырой PCM-16 поток из io.Reader: конвейер вида
// `arecord -f S16_LE | voicectl record` или файл с готовыми сэмплами.
type SourceMicrophone struct {
	Source io.ReadCloser
	Rate   int
}

// NewSourceMicrophone создает микрофон поверх источника PCM.
func NewSourceMicrophone(source io.ReadCloser, sampleRate int) *SourceMicrophone {
	return &SourceMicrophone{Source: source, Rate: sampleRate}
}

// Open возвращает поток захвата.
func (m *SourceMicrophone) Open(_ context.Context) (services.MicrophoneStream, error) {
	return &sourceStream{source: m.Source, rate: m.Rate}, nil
}

type sourceStream struct {
	source io.ReadCloser
	rate   int
}

func (s *sourceStream) Read(p []byte) (int, error) {
	return s.source.Read(p)
}

func (s *sourceStream) Close() error {
	return s.source.Close()
}

func (s *sourceStream) SampleRate() int {
	return s.rate
}
