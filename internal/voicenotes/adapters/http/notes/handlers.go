// Package notes содержит HTTP-обработчики голосовых заметок.
package notes

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/adapters/http/middleware"
	"familyvoice/internal/voicenotes/app"
	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// Константы ошибок и сообщений для логирования.
const (
	LogHandlerPublish = "handling publish voice note request"
	LogHandlerList    = "handling list voice notes request"
	LogHandlerStream  = "handling stream voice notes request"
	LogHandlerDelete  = "handling delete voice note request"
	LogHandlerReact   = "handling reaction request"

	ErrMsgInvalidScope    = "invalid scope parameters"
	ErrMsgInvalidBody     = "invalid request body"
	ErrMsgMissingAudio    = "audio file is required"
	ErrMsgInvalidDuration = "invalid duration_ms"
)

// Handler обработчик HTTP-запросов голосовых заметок.
type Handler struct {
	notes    *app.VoiceNoteUseCase
	composer *app.ComposerUseCase
}

// NewHandler создает новый экземпляр обработчика.
func NewHandler(notes *app.VoiceNoteUseCase, composer *app.ComposerUseCase) *Handler {
	return &Handler{
		notes:    notes,
		composer: composer,
	}
}

// reactionRequest - тело запроса установки реакции.
type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// Publish принимает записанное на устройстве аудио и публикует заметку:
// загрузка в хранилище, затем создание метаданных.
func (h *Handler) Publish(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.Publish"))
	log.Debug(requestCtx, LogHandlerPublish)

	identity, err := middleware.IdentityFromCtx(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	scope, ok := scopeFromForm(ctx)
	if !ok {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgInvalidScope})
	}

	durationMs, err := strconv.ParseInt(ctx.FormValue("duration_ms"), 10, 64)
	if err != nil || durationMs < 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgInvalidDuration})
	}

	fileHeader, err := ctx.FormFile("audio")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgMissingAudio})
	}

	localPath := filepath.Join(os.TempDir(), fmt.Sprintf("upload-%s.wav", logger.GenerateRequestID()))
	if err := ctx.SaveFile(fileHeader, localPath); err != nil {
		log.Error(requestCtx, "failed to save uploaded audio", zap.Error(err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store upload"})
	}
	defer func() { _ = os.Remove(localPath) }()

	note, err := h.composer.Publish(requestCtx, &services.Recording{
		Path:       localPath,
		DurationMs: durationMs,
	}, scope, identity)
	if err != nil {
		log.Error(requestCtx, "failed to publish voice note", zap.Error(err))
		return handleError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(note)
}

// List возвращает заметки области в порядке убывания created_at.
func (h *Handler) List(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.List"))
	log.Debug(requestCtx, LogHandlerList)

	scope, ok := scopeFromQuery(ctx)
	if !ok {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgInvalidScope})
	}

	notes, err := h.notes.List(requestCtx, scope)
	if err != nil {
		log.Error(requestCtx, "failed to list voice notes", zap.Error(err))
		return handleError(ctx, err)
	}

	return ctx.JSON(notes)
}

// Stream отдает живую ленту области как server-sent events: полный
// упорядоченный снимок при подключении и после каждого изменения.
func (h *Handler) Stream(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.Stream"))
	log.Debug(requestCtx, LogHandlerStream)

	scope, ok := scopeFromQuery(ctx)
	if !ok {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgInvalidScope})
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	// Подписка живет дольше обработчика, поэтому получает собственный контекст.
	streamCtx := logger.NewRequestIDContext(context.Background(), "")

	ctx.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		snapshots := make(chan []byte, 8)
		feedErrs := make(chan error, 1)

		unsubscribe, err := h.notes.Subscribe(streamCtx, scope,
			func(notes []*entities.VoiceNote) {
				payload, merr := json.Marshal(notes)
				if merr != nil {
					return
				}
				// Медленный клиент получает только самые свежие снимки.
				for {
					select {
					case snapshots <- payload:
						return
					default:
						select {
						case <-snapshots:
						default:
						}
					}
				}
			},
			func(err error) {
				select {
				case feedErrs <- err:
				default:
				}
			})
		if err != nil {
			log.Error(streamCtx, "failed to subscribe to scope", zap.Error(err))
			return
		}
		defer unsubscribe()

		for {
			select {
			case payload := <-snapshots:
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case err := <-feedErrs:
				_, _ = fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
				_ = w.Flush()
				return
			}
		}
	}))

	return nil
}

// Delete удаляет заметку вместе с ее blob (best-effort).
func (h *Handler) Delete(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.Delete"))
	log.Debug(requestCtx, LogHandlerDelete)

	if err := h.notes.Delete(requestCtx, ctx.Params("id")); err != nil {
		log.Error(requestCtx, "failed to delete voice note", zap.Error(err))
		return handleError(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// ToggleReaction переключает реакцию текущего пользователя на заметку.
func (h *Handler) ToggleReaction(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.ToggleReaction"))
	log.Debug(requestCtx, LogHandlerReact)

	identity, err := middleware.IdentityFromCtx(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	var req reactionRequest
	if err := ctx.Bind().Body(&req); err != nil || req.Emoji == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrMsgInvalidBody})
	}

	if err := h.notes.ToggleReaction(requestCtx, ctx.Params("id"), identity, req.Emoji); err != nil {
		log.Error(requestCtx, "failed to toggle reaction", zap.Error(err))
		return handleError(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// ClearReaction снимает реакцию текущего пользователя с заметки.
func (h *Handler) ClearReaction(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.ClearReaction"))
	log.Debug(requestCtx, LogHandlerReact)

	identity, err := middleware.IdentityFromCtx(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.notes.ClearReaction(requestCtx, ctx.Params("id"), identity); err != nil {
		log.Error(requestCtx, "failed to clear reaction", zap.Error(err))
		return handleError(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// scopeFromQuery извлекает ключ подписки из query-параметров.
func scopeFromQuery(ctx fiber.Ctx) (entities.Scope, bool) {
	scope := entities.Scope{
		FamilyID: ctx.Query("family_id"),
		Context:  entities.Context(ctx.Query("context")),
		ParentID: ctx.Query("parent_id"),
	}
	return scope, scope.FamilyID != "" && scope.ParentID != "" && scope.Context.Valid()
}

// scopeFromForm извлекает ключ подписки из полей multipart-формы.
func scopeFromForm(ctx fiber.Ctx) (entities.Scope, bool) {
	scope := entities.Scope{
		FamilyID: ctx.FormValue("family_id"),
		Context:  entities.Context(ctx.FormValue("context")),
		ParentID: ctx.FormValue("parent_id"),
	}
	return scope, scope.FamilyID != "" && scope.ParentID != "" && scope.Context.Valid()
}

// handleError преобразует ошибки бизнес-логики в HTTP-статусы.
func handleError(ctx fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": app.ErrNotFound.Error()})
	case errors.Is(err, app.ErrInvalidParams):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrUploadFailed):
		return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": services.ErrUploadFailed.Error()})
	default:
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
