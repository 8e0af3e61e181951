package capture_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvoice/internal/voicenotes/adapters/capture"
	"familyvoice/internal/voicenotes/audio"
	"familyvoice/internal/voicenotes/ports/services"
)

const testSampleRate = 16000

// pcmSource - закрываемый источник PCM для SourceMicrophone.
// Read блокируется после исчерпания данных до явного Close, как настоящий
// микрофон, который молчит, но остается открытым.
type pcmSource struct {
	data   *bytes.Reader
	closed chan struct{}
}

func newPCMSource(data []byte) *pcmSource {
	return &pcmSource{
		data:   bytes.NewReader(data),
		closed: make(chan struct{}),
	}
}

func (s *pcmSource) Read(p []byte) (int, error) {
	n, err := s.data.Read(p)
	if err == io.EOF {
		select {
		case <-s.closed:
			return n, io.EOF
		case <-time.After(5 * time.Millisecond):
			return n, nil
		}
	}
	return n, err
}

func (s *pcmSource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func TestFileRecorder_PermissionDenied(t *testing.T) {
	dir := t.TempDir()
	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(false),
		capture.NewSourceMicrophone(newPCMSource(nil), testSampleRate),
		capture.WithDir(dir),
	)

	err := recorder.Start(context.Background(), nil)

	require.ErrorIs(t, err, services.ErrPermissionDenied)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "denied permission must not leave a local file behind")
}

func TestFileRecorder_StopWithoutStart(t *testing.T) {
	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(newPCMSource(nil), testSampleRate),
	)

	recording, err := recorder.Stop()

	require.Nil(t, recording)
	require.ErrorIs(t, err, services.ErrNoActiveRecording)
}

func TestFileRecorder_DoubleStart(t *testing.T) {
	source := newPCMSource(make([]byte, 64))
	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(source, testSampleRate),
		capture.WithDir(t.TempDir()),
	)

	require.NoError(t, recorder.Start(context.Background(), nil))

	err := recorder.Start(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrRecordingActive, "second start must be rejected, not queued")

	_, err = recorder.Stop()
	require.NoError(t, err)
}

func TestFileRecorder_RecordsPCMToWAV(t *testing.T) {
	// One second of silence at 16kHz PCM-16.
	pcm := make([]byte, testSampleRate*audio.BytesPerSample)
	source := newPCMSource(pcm)

	dir := t.TempDir()
	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(source, testSampleRate),
		capture.WithDir(dir),
	)

	require.NoError(t, recorder.Start(context.Background(), nil))

	// Give the capture goroutine time to drain the source.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 1 {
			return false
		}
		info, err := entries[0].Info()
		return err == nil && info.Size() >= int64(audio.HeaderSize+len(pcm))
	}, 2*time.Second, 10*time.Millisecond)

	recording, err := recorder.Stop()
	require.NoError(t, err)

	assert.Equal(t, int64(1000), recording.DurationMs, "one second of samples")
	assert.Equal(t, filepath.Dir(recording.Path), dir)

	data, err := os.ReadFile(recording.Path)
	require.NoError(t, err)

	header, err := audio.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(testSampleRate), header.SampleRate)
	assert.Equal(t, uint32(len(pcm)), header.Subchunk2Size, "finalized header carries the real data size")
	assert.Len(t, data, audio.HeaderSize+len(pcm))

	// The device is released: a new recording can start immediately.
	second := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(newPCMSource(nil), testSampleRate),
		capture.WithDir(dir),
	)
	require.NoError(t, second.Start(context.Background(), nil))
	_, err = second.Stop()
	require.NoError(t, err)
}

func TestFileRecorder_ReportsProgress(t *testing.T) {
	source := newPCMSource(make([]byte, 1024))
	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(source, testSampleRate),
		capture.WithDir(t.TempDir()),
		capture.WithPollInterval(10*time.Millisecond),
	)

	var ticks atomic.Int64
	var lastElapsed atomic.Int64
	require.NoError(t, recorder.Start(context.Background(), func(elapsedMs int64) {
		ticks.Add(1)
		lastElapsed.Store(elapsedMs)
	}))

	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "progress must be reported on a fixed interval")

	_, err := recorder.Stop()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, lastElapsed.Load(), int64(20), "elapsed time grows monotonically")
}
