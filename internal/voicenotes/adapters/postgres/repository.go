package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"familyvoice/internal/voicenotes/ports/repositories"
)

// RepositoryFactory создает репозитории для работы с базой данных.
type RepositoryFactory struct {
	pool *pgxpool.Pool
}

// NewRepositoryFactory создает новую фабрику репозиториев.
func NewRepositoryFactory(pool *pgxpool.Pool) *RepositoryFactory {
	return &RepositoryFactory{pool: pool}
}

// NoteStore возвращает репозиторий голосовых заметок.
func (f *RepositoryFactory) NoteStore() repositories.NoteStore {
	return NewVoiceNoteRepository(f.pool)
}
