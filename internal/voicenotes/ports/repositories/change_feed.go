package repositories

import (
	"context"
	"errors"

	"familyvoice/internal/voicenotes/domain/entities"
)

// ErrSubscriptionClosed возвращается при публикации в закрытый канал рассылки.
var ErrSubscriptionClosed = errors.New("change feed subscription closed")

// ChangeKind - тип серверного изменения в пределах области подписки.
type ChangeKind string

// Виды изменений.
const (
	ChangeCreated  ChangeKind = "created"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReaction ChangeKind = "reaction"
)

// ChangeEvent описывает одно зафиксированное изменение области.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	NoteID string     `json:"note_id"`
}

// Unsubscribe останавливает доставку событий и освобождает соединение.
// Повторные вызовы безопасны.
type Unsubscribe func()

// ChangeFeed - широковещательный канал изменений, разделяемый всеми членами семьи.
// События в пределах одной области доставляются в порядке фиксации бекендом;
// порядок между разными областями не гарантируется.
type ChangeFeed interface {
	// Publish рассылает событие всем подписчикам области.
	Publish(ctx context.Context, scope entities.Scope, event ChangeEvent) error
	// Subscribe устанавливает живую подписку на область. onEvent вызывается
	// для каждого события; onError - при сбое доставки (подписка при этом
	// не восстанавливается автоматически, переподключение - задача вызывающего).
	Subscribe(ctx context.Context, scope entities.Scope, onEvent func(ChangeEvent), onError func(error)) (Unsubscribe, error)
}
