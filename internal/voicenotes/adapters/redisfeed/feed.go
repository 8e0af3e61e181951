// Package redisfeed реализует широковещательный канал изменений поверх Redis pub/sub.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/repositories"
	"familyvoice/pkg/logger"
)

// Константы для сообщений об ошибках.
const (
	ErrMarshalEvent   = "failed to marshal change event"
	ErrPublishEvent   = "failed to publish change event"
	ErrSubscribeScope = "failed to subscribe to scope channel"
)

const channelPrefix = "voicenotes"

// Feed реализует интерфейс repositories.ChangeFeed.
type Feed struct {
	client *redis.Client
}

// NewFeed создает новый канал изменений на основе клиента Redis.
func NewFeed(client *redis.Client) repositories.ChangeFeed {
	return &Feed{client: client}
}

// channelName строит имя канала для области подписки.
func channelName(scope entities.Scope) string {
	return fmt.Sprintf("%s:%s:%s:%s", channelPrefix, scope.FamilyID, scope.Context, scope.ParentID)
}

// Publish рассылает событие всем подписчикам области.
func (f *Feed) Publish(ctx context.Context, scope entities.Scope, event repositories.ChangeEvent) error {
	log := logger.Log(ctx).With(zap.String("method", "Feed.Publish"))

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrMarshalEvent, err)
	}

	if err := f.client.Publish(ctx, channelName(scope), payload).Err(); err != nil {
		log.Error(ctx, ErrPublishEvent, zap.Error(err), zap.String("channel", channelName(scope)))
		return fmt.Errorf("%s: %w", ErrPublishEvent, err)
	}

	log.Debug(ctx, "change event published",
		zap.String("channel", channelName(scope)),
		zap.String("kind", string(event.Kind)),
		zap.String("noteID", event.NoteID))
	return nil
}

// Subscribe устанавливает живую подписку на область. События доставляются
// в порядке публикации в пределах одного канала. Возвращенный Unsubscribe
// идемпотентен и освобождает pub/sub соединение.
func (f *Feed) Subscribe(ctx context.Context, scope entities.Scope, onEvent func(repositories.ChangeEvent), onError func(error)) (repositories.Unsubscribe, error) {
	log := logger.Log(ctx).With(zap.String("method", "Feed.Subscribe"))

	channel := channelName(scope)
	pubsub := f.client.Subscribe(ctx, channel)

	// Дожидаемся подтверждения подписки, чтобы не потерять события,
	// опубликованные сразу после возврата из Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		log.Error(ctx, ErrSubscribeScope, zap.Error(err), zap.String("channel", channel))
		return nil, fmt.Errorf("%s: %w", ErrSubscribeScope, err)
	}

	log.Debug(ctx, "subscribed to scope", zap.String("channel", channel))

	messages := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					select {
					case <-done:
						// Закрытие по Unsubscribe - не ошибка.
					default:
						if onError != nil {
							onError(repositories.ErrSubscriptionClosed)
						}
					}
					return
				}

				// Unsubscribe мог закрыться, пока сообщение лежало в буфере канала;
				// после него коллбэки не вызываются.
				select {
				case <-done:
					return
				default:
				}

				var event repositories.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					if onError != nil {
						onError(fmt.Errorf("failed to decode change event: %w", err))
					}
					continue
				}
				onEvent(event)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	return unsubscribe, nil
}
