// Package app implements application business logic for the voice notes service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/repositories"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// Ошибки уровня бизнес-логики.
var (
	ErrNotFound      = errors.New("voice note not found")
	ErrInvalidParams = errors.New("invalid parameters")
)

// Константы для сообщений.
const (
	msgBlobCleanupFailed   = "blob cleanup failed, metadata will be removed anyway"
	msgBroadcastFailed     = "change broadcast failed, subscribers will miss this update"
	msgSubscriptionRefresh = "failed to refresh subscription snapshot"
)

// VoiceNoteUseCase представляет собой бизнес-логику работы с голосовыми заметками:
// хранение метаданных, рассылка изменений и управление реакциями.
type VoiceNoteUseCase struct {
	store repositories.NoteStore
	feed  repositories.ChangeFeed
	blobs services.BlobStorage
	now   func() time.Time
}

// NewVoiceNoteUseCase создает новый экземпляр VoiceNoteUseCase.
func NewVoiceNoteUseCase(store repositories.NoteStore, feed repositories.ChangeFeed, blobs services.BlobStorage) *VoiceNoteUseCase {
	return &VoiceNoteUseCase{
		store: store,
		feed:  feed,
		blobs: blobs,
		now:   time.Now,
	}
}

// Create вставляет новую заметку и рассылает событие подписчикам области.
// Вызывается только после подтвержденной загрузки blob: читатели никогда
// не видят заметку, чей blob еще не существует.
func (uc *VoiceNoteUseCase) Create(ctx context.Context, draft *entities.VoiceNoteDraft) (*entities.VoiceNote, error) {
	if draft == nil || draft.FamilyID == "" || draft.ParentID == "" || !draft.Context.Valid() {
		return nil, ErrInvalidParams
	}
	if draft.URL == "" || draft.StoragePath == "" {
		return nil, fmt.Errorf("%w: draft has no uploaded blob", ErrInvalidParams)
	}

	note, err := uc.store.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice note: %w", err)
	}

	uc.broadcast(ctx, note.Scope(), repositories.ChangeEvent{Kind: repositories.ChangeCreated, NoteID: note.ID})
	return note, nil
}

// List возвращает заметки области в порядке убывания created_at.
func (uc *VoiceNoteUseCase) List(ctx context.Context, scope entities.Scope) ([]*entities.VoiceNote, error) {
	if !scope.Context.Valid() {
		return nil, ErrInvalidParams
	}
	notes, err := uc.store.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice notes: %w", err)
	}
	return notes, nil
}

// Subscribe устанавливает живую подписку на область: onChange получает полный
// упорядоченный набор заметок немедленно и затем при каждом серверном изменении.
// Возвращенный Unsubscribe идемпотентен; автоматического переподключения нет.
func (uc *VoiceNoteUseCase) Subscribe(ctx context.Context, scope entities.Scope, onChange func([]*entities.VoiceNote), onError func(error)) (repositories.Unsubscribe, error) {
	if !scope.Context.Valid() {
		return nil, ErrInvalidParams
	}

	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteUseCase.Subscribe"))

	refresh := func() {
		notes, err := uc.store.ListByScope(ctx, scope)
		if err != nil {
			log.Error(ctx, msgSubscriptionRefresh, zap.Error(err))
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(notes)
	}

	unsubscribe, err := uc.feed.Subscribe(ctx, scope, func(repositories.ChangeEvent) {
		// События одной области приходят последовательно, поэтому повторная
		// выборка сохраняет порядок фиксации изменений.
		refresh()
	}, onError)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// Начальный снимок - сразу после установки подписки.
	refresh()

	return unsubscribe, nil
}

// Delete удаляет заметку: blob убирается по принципу best-effort, сбой его
// удаления не блокирует удаление метаданных. Повторное удаление - ErrNotFound.
func (uc *VoiceNoteUseCase) Delete(ctx context.Context, noteID string) error {
	log := logger.Log(ctx).With(zap.String("method", "VoiceNoteUseCase.Delete"))

	note, err := uc.store.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get voice note: %w", err)
	}

	if note.StoragePath != "" {
		if err := uc.blobs.Remove(ctx, note.StoragePath); err != nil {
			log.Warn(ctx, msgBlobCleanupFailed, zap.Error(err), zap.String("storagePath", note.StoragePath))
		}
	}

	if err := uc.store.Delete(ctx, noteID); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete voice note: %w", err)
	}

	uc.broadcast(ctx, note.Scope(), repositories.ChangeEvent{Kind: repositories.ChangeDeleted, NoteID: noteID})
	return nil
}

// SetReaction заменяет реакцию пользователя на заметку: прежняя запись этого
// пользователя убирается, новая добавляется с текущей меткой времени.
//
// Операция - чтение-изменение-запись без транзакции: если два пользователя
// реагируют в пределах одного round-trip, чтение второго может не увидеть
// запись первого, и одна реакция будет молча потеряна. На масштабе семьи
// это принятый риск; починка требует атомарной операции над jsonb.
func (uc *VoiceNoteUseCase) SetReaction(ctx context.Context, noteID string, identity *services.Identity, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidParams)
	}
	return uc.mutateReactions(ctx, noteID, identity.UserID, func(rest []entities.Reaction) []entities.Reaction {
		return append(rest, entities.Reaction{
			UserID:    identity.UserID,
			Username:  identity.Username,
			Emoji:     emoji,
			CreatedAt: uc.now(),
		})
	})
}

// ClearReaction убирает реакцию пользователя. Разделяет неатомарную семантику
// SetReaction.
func (uc *VoiceNoteUseCase) ClearReaction(ctx context.Context, noteID string, identity *services.Identity) error {
	return uc.mutateReactions(ctx, noteID, identity.UserID, func(rest []entities.Reaction) []entities.Reaction {
		return rest
	})
}

// ToggleReaction - семантика карточки сообщения: если у пользователя уже есть
// реакция на заметку, она снимается; иначе устанавливается выбранный emoji.
// Локальной сверки нет - результат приходит со следующей рассылкой.
func (uc *VoiceNoteUseCase) ToggleReaction(ctx context.Context, noteID string, identity *services.Identity, emoji string) error {
	note, err := uc.store.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get voice note: %w", err)
	}

	if _, has := note.ReactionOf(identity.UserID); has {
		return uc.ClearReaction(ctx, noteID, identity)
	}
	return uc.SetReaction(ctx, noteID, identity, emoji)
}

// mutateReactions выполняет чтение-изменение-запись коллекции реакций:
// записи пользователя убираются, apply строит замещающую коллекцию.
func (uc *VoiceNoteUseCase) mutateReactions(ctx context.Context, noteID, userID string, apply func(rest []entities.Reaction) []entities.Reaction) error {
	note, err := uc.store.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get voice note: %w", err)
	}

	rest := make([]entities.Reaction, 0, len(note.Reactions))
	for _, r := range note.Reactions {
		if r.UserID != userID {
			rest = append(rest, r)
		}
	}

	if err := uc.store.ReplaceReactions(ctx, noteID, apply(rest)); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to replace reactions: %w", err)
	}

	uc.broadcast(ctx, note.Scope(), repositories.ChangeEvent{Kind: repositories.ChangeReaction, NoteID: noteID})
	return nil
}

// broadcast рассылает событие области. Метаданные к этому моменту уже
// зафиксированы, поэтому сбой рассылки логируется, но не отменяет операцию.
func (uc *VoiceNoteUseCase) broadcast(ctx context.Context, scope entities.Scope, event repositories.ChangeEvent) {
	if err := uc.feed.Publish(ctx, scope, event); err != nil {
		logger.Log(ctx).Warn(ctx, msgBroadcastFailed,
			zap.Error(err),
			zap.String("kind", string(event.Kind)),
			zap.String("noteID", event.NoteID))
	}
}
