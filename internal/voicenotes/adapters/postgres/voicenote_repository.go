// Package postgres provides PostgreSQL implementations of repositories.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/repositories"
	"familyvoice/pkg/logger"
)

// Querier - подмножество pgxpool.Pool, используемое репозиторием.
// Выделено в интерфейс для подмены пула в тестах.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VoiceNoteRepository реализует интерфейс repositories.NoteStore.
type VoiceNoteRepository struct {
	db Querier
}

// NewVoiceNoteRepository создает новый репозиторий голосовых заметок.
func NewVoiceNoteRepository(db Querier) repositories.NoteStore {
	return &VoiceNoteRepository{db: db}
}

const insertNoteQuery = `INSERT INTO voice_notes
         (family_id, context, parent_id, user_id, username, role, storage_path, url, duration_ms, reactions)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '[]'::jsonb)
         RETURNING id, created_at`

// Create сохраняет новую заметку с пустым набором реакций. Идентификатор
// и метка времени присваиваются сервером БД.
func (r *VoiceNoteRepository) Create(ctx context.Context, draft *entities.VoiceNoteDraft) (*entities.VoiceNote, error) {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteRepository.Create"))
	log.Debug(ctx, "creating voice note",
		zap.String("familyID", draft.FamilyID),
		zap.String("context", string(draft.Context)),
		zap.String("parentID", draft.ParentID))

	note := &entities.VoiceNote{
		FamilyID:    draft.FamilyID,
		Context:     draft.Context,
		ParentID:    draft.ParentID,
		UserID:      draft.UserID,
		Username:    draft.Username,
		Role:        draft.Role,
		StoragePath: draft.StoragePath,
		URL:         draft.URL,
		DurationMs:  draft.DurationMs,
		Reactions:   []entities.Reaction{},
	}

	err := r.db.QueryRow(ctx, insertNoteQuery,
		draft.FamilyID, string(draft.Context), draft.ParentID,
		draft.UserID, draft.Username, draft.Role,
		draft.StoragePath, draft.URL, draft.DurationMs,
	).Scan(&note.ID, &note.CreatedAt)

	if err != nil {
		log.Error(ctx, "failed to create voice note", zap.Error(err))
		return nil, fmt.Errorf("failed to create voice note: %w", err)
	}

	log.Debug(ctx, "voice note created", zap.String("noteID", note.ID))
	return note, nil
}

const selectNoteQuery = `SELECT id, family_id, context, parent_id, user_id, username, role,
                storage_path, url, duration_ms, created_at, reactions
         FROM voice_notes
         WHERE id = $1`

// GetByID получает заметку по идентификатору.
func (r *VoiceNoteRepository) GetByID(ctx context.Context, noteID string) (*entities.VoiceNote, error) {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteRepository.GetByID"))

	note, err := scanNote(r.db.QueryRow(ctx, selectNoteQuery, noteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug(ctx, "voice note not found", zap.String("noteID", noteID))
			return nil, repositories.ErrRecordNotFound
		}
		log.Error(ctx, "failed to get voice note", zap.Error(err))
		return nil, fmt.Errorf("failed to get voice note: %w", err)
	}

	return note, nil
}

const listByScopeQuery = `SELECT id, family_id, context, parent_id, user_id, username, role,
                storage_path, url, duration_ms, created_at, reactions
         FROM voice_notes
         WHERE family_id = $1 AND context = $2 AND parent_id = $3
         ORDER BY created_at DESC, id DESC`

// ListByScope возвращает заметки области в порядке убывания created_at.
func (r *VoiceNoteRepository) ListByScope(ctx context.Context, scope entities.Scope) ([]*entities.VoiceNote, error) {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteRepository.ListByScope"))
	log.Debug(ctx, "listing voice notes",
		zap.String("familyID", scope.FamilyID),
		zap.String("context", string(scope.Context)),
		zap.String("parentID", scope.ParentID))

	rows, err := r.db.Query(ctx, listByScopeQuery, scope.FamilyID, string(scope.Context), scope.ParentID)
	if err != nil {
		log.Error(ctx, "failed to list voice notes", zap.Error(err))
		return nil, fmt.Errorf("failed to list voice notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*entities.VoiceNote, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			log.Error(ctx, "failed to scan voice note", zap.Error(err))
			return nil, fmt.Errorf("failed to scan voice note: %w", err)
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		log.Error(ctx, "error iterating rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return notes, nil
}

// Delete удаляет метаданные заметки.
func (r *VoiceNoteRepository) Delete(ctx context.Context, noteID string) error {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteRepository.Delete"))
	log.Debug(ctx, "deleting voice note", zap.String("noteID", noteID))

	result, err := r.db.Exec(ctx, `DELETE FROM voice_notes WHERE id = $1`, noteID)
	if err != nil {
		log.Error(ctx, "failed to delete voice note", zap.Error(err))
		return fmt.Errorf("failed to delete voice note: %w", err)
	}

	if result.RowsAffected() == 0 {
		log.Debug(ctx, "voice note already removed", zap.String("noteID", noteID))
		return repositories.ErrRecordNotFound
	}

	return nil
}

// ReplaceReactions перезаписывает коллекцию реакций заметки целиком.
func (r *VoiceNoteRepository) ReplaceReactions(ctx context.Context, noteID string, reactions []entities.Reaction) error {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteRepository.ReplaceReactions"))

	if reactions == nil {
		reactions = []entities.Reaction{}
	}
	payload, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("failed to marshal reactions: %w", err)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE voice_notes SET reactions = $1 WHERE id = $2`,
		payload, noteID,
	)
	if err != nil {
		log.Error(ctx, "failed to update reactions", zap.Error(err))
		return fmt.Errorf("failed to update reactions: %w", err)
	}

	if result.RowsAffected() == 0 {
		log.Debug(ctx, "voice note not found", zap.String("noteID", noteID))
		return repositories.ErrRecordNotFound
	}

	return nil
}

// scanNote читает одну строку voice_notes, включая jsonb-колонку реакций.
func scanNote(row pgx.Row) (*entities.VoiceNote, error) {
	var (
		note         entities.VoiceNote
		contextValue string
		rawReactions []byte
	)

	err := row.Scan(&note.ID, &note.FamilyID, &contextValue, &note.ParentID,
		&note.UserID, &note.Username, &note.Role,
		&note.StoragePath, &note.URL, &note.DurationMs, &note.CreatedAt, &rawReactions)
	if err != nil {
		return nil, err
	}

	note.Context = entities.Context(contextValue)
	note.Reactions = []entities.Reaction{}
	if len(rawReactions) > 0 {
		if err := json.Unmarshal(rawReactions, &note.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
	}

	return &note, nil
}
