package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// ErrRecordingAborted - запись отменена до публикации.
var ErrRecordingAborted = errors.New("recording aborted")

// NoteCreator - часть VoiceNoteUseCase, нужная конвейеру публикации.
type NoteCreator interface {
	Create(ctx context.Context, draft *entities.VoiceNoteDraft) (*entities.VoiceNote, error)
}

// ComposerUseCase оркестрирует конвейер запись -> загрузка -> публикация
// как одно пользовательское действие. Метаданные создаются только после
// подтвержденной загрузки blob; при сбое любого шага частичной записи не остается.
type ComposerUseCase struct {
	recorder services.Recorder
	blobs    services.BlobStorage
	notes    NoteCreator
	now      func() time.Time
	newID    func() string
}

// NewComposerUseCase создает новый конвейер записи.
func NewComposerUseCase(recorder services.Recorder, blobs services.BlobStorage, notes NoteCreator) *ComposerUseCase {
	return &ComposerUseCase{
		recorder: recorder,
		blobs:    blobs,
		notes:    notes,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// StartRecording начинает захват аудио. onProgress получает прошедшее
// время записи в миллисекундах.
func (uc *ComposerUseCase) StartRecording(ctx context.Context, onProgress services.ProgressFunc) error {
	if err := uc.recorder.Start(ctx, onProgress); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	return nil
}

// FinishAndPublish останавливает запись, загружает файл и создает заметку.
// Сбой загрузки прерывает конвейер до вызова Create - осиротевших метаданных
// не бывает. Локальный файл удаляется на любом исходе.
func (uc *ComposerUseCase) FinishAndPublish(ctx context.Context, scope entities.Scope, identity *services.Identity) (*entities.VoiceNote, error) {
	recording, err := uc.recorder.Stop()
	if err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	defer uc.discardLocal(ctx, recording.Path)

	return uc.publish(ctx, recording, scope, identity)
}

// Publish загружает уже готовую запись и создает заметку. Используется
// шлюзом для аудио, записанного на устройстве клиента.
func (uc *ComposerUseCase) Publish(ctx context.Context, recording *services.Recording, scope entities.Scope, identity *services.Identity) (*entities.VoiceNote, error) {
	return uc.publish(ctx, recording, scope, identity)
}

// Abort останавливает активную запись и удаляет локальный файл,
// не публикуя заметку.
func (uc *ComposerUseCase) Abort(ctx context.Context) error {
	recording, err := uc.recorder.Stop()
	if err != nil {
		return fmt.Errorf("failed to abort recording: %w", err)
	}
	uc.discardLocal(ctx, recording.Path)
	return nil
}

// RecordAndPublish выполняет весь конвейер как одно действие: запись до
// сигнала stop (или отмены контекста), затем загрузка и публикация.
// Успех сообщается через onSaved, любой сбой - через onCancel; частичной
// записи не остается ни в одном из исходов.
func (uc *ComposerUseCase) RecordAndPublish(
	ctx context.Context,
	scope entities.Scope,
	identity *services.Identity,
	stop <-chan struct{},
	onProgress services.ProgressFunc,
	onSaved func(*entities.VoiceNote),
	onCancel func(error),
) {
	fail := func(err error) {
		if onCancel != nil {
			onCancel(err)
		}
	}

	if err := uc.StartRecording(ctx, onProgress); err != nil {
		fail(err)
		return
	}

	select {
	case <-ctx.Done():
		if err := uc.Abort(ctx); err != nil {
			logger.Log(ctx).Warn(ctx, "failed to abort recording", zap.Error(err))
		}
		fail(fmt.Errorf("%w: %w", ErrRecordingAborted, ctx.Err()))
		return
	case <-stop:
	}

	note, err := uc.FinishAndPublish(ctx, scope, identity)
	if err != nil {
		fail(err)
		return
	}

	if onSaved != nil {
		onSaved(note)
	}
}

// publish - общий хвост конвейера: загрузка blob, затем создание метаданных.
func (uc *ComposerUseCase) publish(ctx context.Context, recording *services.Recording, scope entities.Scope, identity *services.Identity) (*entities.VoiceNote, error) {
	log := logger.Log(ctx).With(zap.String("method", "ComposerUseCase.publish"))

	objectPath := uc.objectPath(scope)

	url, err := uc.blobs.Upload(ctx, recording.Path, objectPath)
	if err != nil {
		// Метаданные не создаются: конвейер либо публикует заметку целиком,
		// либо не оставляет следов.
		return nil, fmt.Errorf("failed to upload recording: %w", err)
	}

	draft := entities.NewDraft(scope, identity.UserID, identity.Username, identity.Role)
	draft.StoragePath = objectPath
	draft.URL = url
	draft.DurationMs = recording.DurationMs

	note, err := uc.notes.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	log.Debug(ctx, "voice note published",
		zap.String("noteID", note.ID),
		zap.Int64("durationMs", note.DurationMs),
		zap.String("url", note.URL))
	return note, nil
}

// objectPath строит детерминированный путь объекта: области разных семей
// и тредов не пересекаются, метка времени и uuid исключают коллизии
// одновременных загрузок.
func (uc *ComposerUseCase) objectPath(scope entities.Scope) string {
	return fmt.Sprintf("%s/%s/%s/%d-%s.wav",
		scope.FamilyID, scope.Context, scope.ParentID, uc.now().UnixNano(), uc.newID())
}

// discardLocal удаляет локальный файл записи.
func (uc *ComposerUseCase) discardLocal(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log(ctx).Warn(ctx, "failed to remove local recording", zap.Error(err), zap.String("path", path))
	}
}
