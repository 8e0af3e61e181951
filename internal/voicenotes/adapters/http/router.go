// Package http содержит компоненты для HTTP сервера голосовых заметок.
package http

import (
	"github.com/gofiber/fiber/v3"

	"familyvoice/internal/voicenotes/adapters/http/middleware"
	"familyvoice/internal/voicenotes/adapters/http/notes"
	"familyvoice/internal/voicenotes/app"
	"familyvoice/internal/voicenotes/ports/services"
)

// SetupRouter настраивает маршрутизацию для HTTP сервера.
func SetupRouter(fiberApp *fiber.App, notesUseCase *app.VoiceNoteUseCase, composer *app.ComposerUseCase, tokens services.TokenService) {
	handler := notes.NewHandler(notesUseCase, composer)

	// Middleware для всех запросов.
	fiberApp.Use(middleware.NewLoggerMiddleware())
	fiberApp.Use(middleware.NewRecoveryMiddleware())

	// API версии 1.
	apiV1 := fiberApp.Group("/api/v1")

	noteRoutes := apiV1.Group("/voice-notes")
	noteRoutes.Use(middleware.NewAuthMiddleware(tokens))
	noteRoutes.Post("/", handler.Publish)
	noteRoutes.Get("/", handler.List)
	noteRoutes.Get("/stream", handler.Stream)
	noteRoutes.Delete("/:id", handler.Delete)
	noteRoutes.Put("/:id/reaction", handler.ToggleReaction)
	noteRoutes.Delete("/:id/reaction", handler.ClearReaction)

	// Обработчик для несуществующих маршрутов.
	fiberApp.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Route not found",
		})
	})
}
