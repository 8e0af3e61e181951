package playback_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvoice/internal/voicenotes/adapters/playback"
	"familyvoice/internal/voicenotes/audio"
)

const testSampleRate = 8000

// wavPayload строит валидный WAV указанной длительности.
func wavPayload(t *testing.T, seconds int) []byte {
	t.Helper()

	pcm := make([]byte, seconds*testSampleRate*audio.BytesPerSample)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	var buf bytes.Buffer
	require.NoError(t, audio.WriteHeader(&buf, audio.NewHeader(testSampleRate, uint32(len(pcm)))))
	buf.Write(pcm)
	return buf.Bytes()
}

func audioServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

// collectSink копит PCM-кадры, отданные проигрывателем.
type collectSink struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (s *collectSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p...)
	return len(p), nil
}

func (s *collectSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func TestEngine_ControlsAreNoopsBeforeLoad(t *testing.T) {
	engine := playback.NewEngine()
	defer engine.Close()

	assert.NotPanics(t, func() {
		engine.Play()
		engine.Pause()
		engine.Seek(1000)
	})

	state := engine.State()
	assert.False(t, state.IsLoaded)
	assert.False(t, state.IsPlaying)
	assert.Zero(t, state.PositionMs)
}

func TestEngine_LoadFailureIsRecordedNotThrown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine := playback.NewEngine()
	defer engine.Close()

	assert.NotPanics(t, func() {
		engine.Load(context.Background(), server.URL+"/missing.wav")
	})

	state := engine.State()
	assert.False(t, state.IsLoaded)
	require.ErrorIs(t, state.Err, playback.ErrPlaybackLoad)

	// Playback controls remain safe after a failed load.
	engine.Play()
	assert.False(t, engine.State().IsPlaying)
}

func TestEngine_LoadExposesDuration(t *testing.T) {
	server := audioServer(t, wavPayload(t, 3))

	engine := playback.NewEngine()
	defer engine.Close()

	engine.Load(context.Background(), server.URL)

	state := engine.State()
	assert.True(t, state.IsLoaded)
	assert.NoError(t, state.Err)
	assert.Equal(t, int64(3000), state.DurationMs)
	assert.Zero(t, state.PositionMs)
	assert.False(t, state.IsPlaying, "loading must not auto-play")
}

func TestEngine_PlayAdvancesPosition(t *testing.T) {
	server := audioServer(t, wavPayload(t, 3))

	sink := &collectSink{}
	engine := playback.NewEngine(
		playback.WithSink(sink),
		playback.WithTickInterval(10*time.Millisecond),
	)
	defer engine.Close()

	engine.Load(context.Background(), server.URL)
	engine.Play()

	require.Eventually(t, func() bool {
		return engine.State().PositionMs > 0
	}, 2*time.Second, 5*time.Millisecond, "position advances while playing")

	require.Eventually(t, func() bool {
		return sink.Len() > 0
	}, 2*time.Second, 5*time.Millisecond, "PCM frames are streamed to the sink")

	engine.Pause()
	paused := engine.State()
	assert.False(t, paused.IsPlaying)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused.PositionMs, engine.State().PositionMs, "position freezes on pause")
}

func TestEngine_SeekClampsToTrackBounds(t *testing.T) {
	server := audioServer(t, wavPayload(t, 2))

	engine := playback.NewEngine()
	defer engine.Close()

	engine.Load(context.Background(), server.URL)

	engine.Seek(-500)
	assert.Zero(t, engine.State().PositionMs, "negative seek clamps to the start")

	engine.Seek(10_000)
	assert.Equal(t, int64(2000), engine.State().PositionMs, "seek past the end clamps to the duration")

	engine.Seek(1000)
	assert.Equal(t, int64(1000), engine.State().PositionMs)
}

func TestEngine_StopsAtEndOfTrack(t *testing.T) {
	server := audioServer(t, wavPayload(t, 1))

	engine := playback.NewEngine(playback.WithTickInterval(10 * time.Millisecond))
	defer engine.Close()

	engine.Load(context.Background(), server.URL)
	engine.Seek(950)
	engine.Play()

	require.Eventually(t, func() bool {
		state := engine.State()
		return !state.IsPlaying && state.PositionMs == state.DurationMs
	}, 2*time.Second, 10*time.Millisecond, "playback stops exactly at the end of the track")
}

func TestEngine_UpdatesStreamSnapshots(t *testing.T) {
	server := audioServer(t, wavPayload(t, 2))

	engine := playback.NewEngine(playback.WithTickInterval(10 * time.Millisecond))
	defer engine.Close()

	engine.Load(context.Background(), server.URL)
	engine.Play()

	select {
	case state := <-engine.Updates():
		assert.True(t, state.IsLoaded)
		assert.Equal(t, int64(2000), state.DurationMs)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a playback state snapshot")
	}
}

func TestEngine_CloseIsIdempotentAndClosesSink(t *testing.T) {
	sink := &collectSink{}
	engine := playback.NewEngine(playback.WithSink(sink))

	assert.NotPanics(t, func() {
		engine.Close()
		engine.Close()
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.closed)
}

func TestEngine_ReloadResetsState(t *testing.T) {
	server := audioServer(t, wavPayload(t, 2))

	engine := playback.NewEngine()
	defer engine.Close()

	engine.Load(context.Background(), server.URL)
	engine.Seek(1500)
	require.Equal(t, int64(1500), engine.State().PositionMs)

	engine.Load(context.Background(), server.URL)
	state := engine.State()
	assert.True(t, state.IsLoaded)
	assert.Zero(t, state.PositionMs, "reload starts from the beginning")
}
