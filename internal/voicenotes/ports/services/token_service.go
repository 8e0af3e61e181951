package services

import (
	"context"
	"errors"
)

// Ошибки проверки токенов.
var (
	ErrInvalidJWTToken = errors.New("invalid jwt token")
	ErrExpiredJWTToken = errors.New("jwt token has expired")
)

// Identity - личность текущего пользователя, поставляемая службой аутентификации.
// Сервис заметок только читает эти данные и не управляет сессиями.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// TokenService проверяет токен доступа и извлекает личность пользователя.
type TokenService interface {
	ValidateAccessToken(ctx context.Context, token string) (*Identity, error)
}
