// Package repositories defines repository interfaces for the voice notes service.
package repositories

import (
	"context"
	"errors"

	"familyvoice/internal/voicenotes/domain/entities"
)

// ErrRecordNotFound возвращается при обращении к уже удаленной или несуществующей заметке.
var ErrRecordNotFound = errors.New("voice note not found")

// NoteStore определяет интерфейс хранилища метаданных голосовых заметок.
// Хранилище - единственный владелец состояния записей; подписчики получают
// только копии, замещаемые при каждой рассылке.
type NoteStore interface {
	// Create вставляет новую заметку с пустым набором реакций и серверной
	// меткой времени, возвращает присвоенный идентификатор.
	Create(ctx context.Context, draft *entities.VoiceNoteDraft) (*entities.VoiceNote, error)
	// GetByID возвращает заметку по идентификатору или ErrRecordNotFound.
	GetByID(ctx context.Context, noteID string) (*entities.VoiceNote, error)
	// ListByScope возвращает все заметки области, упорядоченные по убыванию created_at.
	ListByScope(ctx context.Context, scope entities.Scope) ([]*entities.VoiceNote, error)
	// Delete удаляет заметку; ErrRecordNotFound если запись уже удалена.
	Delete(ctx context.Context, noteID string) error
	// ReplaceReactions полностью перезаписывает коллекцию реакций заметки.
	// Чтение и запись не атомарны относительно других писателей (см. usecase).
	ReplaceReactions(ctx context.Context, noteID string, reactions []entities.Reaction) error
}
