// Package audio contains the RIFF/PCM-16 codec shared by capture and playback.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// HeaderSize - размер заголовка WAV в байтах.
const HeaderSize = 44

// BytesPerSample - PCM-16 моно, 2 байта на сэмпл.
const BytesPerSample = 2

// WAVHeader описывает заголовок WAV-файла.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // Размер файла - 8 байт
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 для PCM
	AudioFormat   uint16  // 1 для PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Размер данных в байтах
}

// NewHeader создает заголовок для моно PCM-16 потока указанной длины.
func NewHeader(sampleRate int, dataSize uint32) WAVHeader {
	const (
		numChannels   = uint16(1)
		bitsPerSample = uint16(16)
	)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WriteHeader записывает заголовок в поток.
func WriteHeader(w io.Writer, header WAVHeader) error {
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

// ParseHeader читает и проверяет заголовок WAV.
func ParseHeader(data []byte) (WAVHeader, error) {
	var header WAVHeader

	if len(data) < HeaderSize {
		return header, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	buf := bytes.NewReader(data)
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return header, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return header, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return header, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return header, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if header.AudioFormat != 1 {
		return header, fmt.Errorf("unsupported audio format %d: only PCM is supported", header.AudioFormat)
	}
	if header.SampleRate == 0 || header.ByteRate == 0 {
		return header, fmt.Errorf("invalid WAV file: zero sample rate")
	}
	// Канонический 44-байтный заголовок: chunk данных идет сразу за fmt.
	// Файлы с промежуточными чанками (LIST и т.п.) не поддерживаются.
	if string(header.Subchunk2ID[:]) != "data" {
		return header, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return header, nil
}

// Duration возвращает длительность аудио по размеру данных и байтрейту.
func (h WAVHeader) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(h.Subchunk2Size) / float64(h.ByteRate) * float64(time.Second))
}

// PCMDuration возвращает длительность сырого PCM-потока.
func PCMDuration(dataSize int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := dataSize / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
