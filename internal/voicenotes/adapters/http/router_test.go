package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "familyvoice/internal/voicenotes/adapters/http"
	"familyvoice/internal/voicenotes/app"
	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/repositories"
	"familyvoice/internal/voicenotes/ports/services"
)

const (
	validToken = "valid-token"
	basePath   = "/api/v1/voice-notes"
)

// fakeTokenService принимает единственный заранее известный токен.
type fakeTokenService struct{}

func (fakeTokenService) ValidateAccessToken(_ context.Context, token string) (*services.Identity, error) {
	if token != validToken {
		return nil, services.ErrInvalidJWTToken
	}
	return &services.Identity{UserID: "user-123", Username: "mom", Role: "parent"}, nil
}

// fakeStore - потокобезопасное хранилище заметок в памяти.
type fakeStore struct {
	mu    sync.Mutex
	seq   int
	notes map[string]*entities.VoiceNote
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: make(map[string]*entities.VoiceNote)}
}

func (s *fakeStore) Create(_ context.Context, draft *entities.VoiceNoteDraft) (*entities.VoiceNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	note := &entities.VoiceNote{
		ID:          fmt.Sprintf("note-%d", s.seq),
		FamilyID:    draft.FamilyID,
		Context:     draft.Context,
		ParentID:    draft.ParentID,
		UserID:      draft.UserID,
		Username:    draft.Username,
		Role:        draft.Role,
		StoragePath: draft.StoragePath,
		URL:         draft.URL,
		DurationMs:  draft.DurationMs,
		CreatedAt:   time.Now(),
		Reactions:   []entities.Reaction{},
	}
	s.notes[note.ID] = note
	return note, nil
}

func (s *fakeStore) GetByID(_ context.Context, noteID string) (*entities.VoiceNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	clone := *note
	clone.Reactions = append([]entities.Reaction(nil), note.Reactions...)
	return &clone, nil
}

func (s *fakeStore) ListByScope(_ context.Context, scope entities.Scope) ([]*entities.VoiceNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := make([]*entities.VoiceNote, 0)
	for _, note := range s.notes {
		if note.Scope() == scope {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (s *fakeStore) Delete(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[noteID]; !ok {
		return repositories.ErrRecordNotFound
	}
	delete(s.notes, noteID)
	return nil
}

func (s *fakeStore) ReplaceReactions(_ context.Context, noteID string, reactions []entities.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return repositories.ErrRecordNotFound
	}
	note.Reactions = reactions
	return nil
}

// fakeFeed считает публикации; живая доставка проверяется в пакете redisfeed.
type fakeFeed struct {
	mu     sync.Mutex
	events []repositories.ChangeEvent
}

func (f *fakeFeed) Publish(_ context.Context, _ entities.Scope, event repositories.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeFeed) Subscribe(_ context.Context, _ entities.Scope, _ func(repositories.ChangeEvent), _ func(error)) (repositories.Unsubscribe, error) {
	return func() {}, nil
}

type fakeBlobs struct{}

func (fakeBlobs) Upload(_ context.Context, _, objectPath string) (string, error) {
	return "http://storage/voice-notes/" + objectPath, nil
}

func (fakeBlobs) Remove(_ context.Context, _ string) error { return nil }

func newTestApp(t *testing.T) (*fiber.App, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	noteUseCase := app.NewVoiceNoteUseCase(store, &fakeFeed{}, fakeBlobs{})
	composer := app.NewComposerUseCase(nil, fakeBlobs{}, noteUseCase)

	fiberApp := fiber.New()
	httpadapter.SetupRouter(fiberApp, noteUseCase, composer, fakeTokenService{})
	return fiberApp, store
}

func authorized(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+validToken)
	return req
}

func scopeQuery() string {
	return "?family_id=family-1&context=task&parent_id=task-42"
}

func seedNote(t *testing.T, store *fakeStore) *entities.VoiceNote {
	t.Helper()

	draft := entities.NewDraft(
		entities.Scope{FamilyID: "family-1", Context: entities.ContextTask, ParentID: "task-42"},
		"user-123", "mom", "parent")
	draft.StoragePath = "family-1/task/task-42/rec.wav"
	draft.URL = "http://storage/rec.wav"
	draft.DurationMs = 3000

	note, err := store.Create(context.Background(), draft)
	require.NoError(t, err)
	return note
}

func TestRouterAuthorization(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	t.Run("missing authorization header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/"+scopeQuery(), nil)
		resp, err := fiberApp.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed token format", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/"+scopeQuery(), nil)
		req.Header.Set("Authorization", "Token abc")
		resp, err := fiberApp.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid bearer token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/"+scopeQuery(), nil)
		req.Header.Set("Authorization", "Bearer expired")
		resp, err := fiberApp.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
		resp, err := fiberApp.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestListVoiceNotes(t *testing.T) {
	fiberApp, store := newTestApp(t)
	seedNote(t, store)

	t.Run("returns notes of the scope", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/"+scopeQuery(), nil)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var notes []entities.VoiceNote
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&notes))
		require.Len(t, notes, 1)
		assert.Equal(t, "note-1", notes[0].ID)
	})

	t.Run("invalid scope is rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/?family_id=family-1&context=chat&parent_id=x", nil)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stream rejects invalid scope before upgrading", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, basePath+"/stream?family_id=&context=task&parent_id=x", nil)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestStreamVoiceNotes(t *testing.T) {
	fiberApp, store := newTestApp(t)
	note := seedNote(t, store)

	req, _ := http.NewRequest(http.MethodGet, basePath+"/stream"+scopeQuery(), nil)
	resp, err := fiberApp.Test(authorized(req), fiber.TestConfig{
		Timeout:       500 * time.Millisecond,
		FailOnTimeout: false,
	})
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "no-cache", resp.Header.Get(fiber.HeaderCacheControl))

	// Лента живет дольше теста, тело обрывается по его таймауту.
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "data: ", "initial snapshot frame expected")
	assert.Contains(t, string(body), note.ID, "seeded note must appear in the snapshot")
}

func TestPublishVoiceNote(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	buildRequest := func(t *testing.T, fields map[string]string, withAudio bool) *http.Request {
		t.Helper()

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		for key, value := range fields {
			require.NoError(t, writer.WriteField(key, value))
		}
		if withAudio {
			part, err := writer.CreateFormFile("audio", "note.wav")
			require.NoError(t, err)
			_, err = part.Write([]byte("RIFF-fake-audio"))
			require.NoError(t, err)
		}
		require.NoError(t, writer.Close())

		req, _ := http.NewRequest(http.MethodPost, basePath+"/", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return authorized(req)
	}

	validFields := func() map[string]string {
		return map[string]string{
			"family_id":   "family-1",
			"context":     "task",
			"parent_id":   "task-42",
			"duration_ms": "3000",
		}
	}

	t.Run("publishes uploaded audio", func(t *testing.T) {
		resp, err := fiberApp.Test(buildRequest(t, validFields(), true))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var note entities.VoiceNote
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&note))
		assert.NotEmpty(t, note.ID)
		assert.Equal(t, int64(3000), note.DurationMs)
		assert.Equal(t, "user-123", note.UserID, "author comes from the token, not the form")
		assert.Contains(t, note.URL, "family-1/task/task-42/", "object path is scoped")
	})

	t.Run("missing audio file", func(t *testing.T) {
		resp, err := fiberApp.Test(buildRequest(t, validFields(), false))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid duration", func(t *testing.T) {
		fields := validFields()
		fields["duration_ms"] = "-5"
		resp, err := fiberApp.Test(buildRequest(t, fields, true))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid scope", func(t *testing.T) {
		fields := validFields()
		fields["context"] = "chat"
		resp, err := fiberApp.Test(buildRequest(t, fields, true))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteVoiceNote(t *testing.T) {
	fiberApp, store := newTestApp(t)
	note := seedNote(t, store)

	t.Run("deletes existing note", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, basePath+"/"+note.ID, nil)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	})

	t.Run("second delete reports not found", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, basePath+"/"+note.ID, nil)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestReactionEndpoints(t *testing.T) {
	fiberApp, store := newTestApp(t)
	note := seedNote(t, store)

	toggle := func(t *testing.T, emoji string) *http.Response {
		t.Helper()

		payload, err := json.Marshal(map[string]string{"emoji": emoji})
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodPut, basePath+"/"+note.ID+"/reaction", bytes.NewReader(payload))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		return resp
	}

	t.Run("toggle sets the reaction", func(t *testing.T) {
		resp := toggle(t, "👍")
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

		stored, err := store.GetByID(context.Background(), note.ID)
		require.NoError(t, err)
		require.Len(t, stored.Reactions, 1)
		assert.Equal(t, "user-123", stored.Reactions[0].UserID)
		assert.Equal(t, "👍", stored.Reactions[0].Emoji)
	})

	t.Run("toggle again clears it", func(t *testing.T) {
		resp := toggle(t, "🎉")
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

		stored, err := store.GetByID(context.Background(), note.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Reactions, "a second toggle removes the user's reaction")
	})

	t.Run("empty emoji is rejected", func(t *testing.T) {
		resp := toggle(t, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("explicit clear endpoint", func(t *testing.T) {
		resp := toggle(t, "👍")
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

		req, _ := http.NewRequest(http.MethodDelete, basePath+"/"+note.ID+"/reaction", nil)
		clearResp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, clearResp.StatusCode)

		stored, err := store.GetByID(context.Background(), note.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Reactions)
	})

	t.Run("reaction on missing note", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"emoji": "👍"})
		req, _ := http.NewRequest(http.MethodPut, basePath+"/missing/reaction", bytes.NewReader(payload))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp, err := fiberApp.Test(authorized(req))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}
