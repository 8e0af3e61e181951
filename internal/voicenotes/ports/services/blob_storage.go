// Package services defines service interfaces consumed by the voice notes use cases.
package services

import (
	"context"
	"errors"
)

// ErrUploadFailed возвращается при сбое передачи файла в объектное хранилище.
// Загрузчик не выполняет повторных попыток - политика повтора принадлежит вызывающему.
var ErrUploadFailed = errors.New("blob upload failed")

// BlobStorage определяет интерфейс объектного хранилища аудио-файлов.
// Объект либо целиком присутствует по указанному пути, либо отсутствует:
// частичной загрузки контракт не допускает.
type BlobStorage interface {
	// Upload передает локальный файл по пути objectPath и возвращает
	// постоянный URL для воспроизведения.
	Upload(ctx context.Context, localPath, objectPath string) (string, error)
	// Remove удаляет объект по пути.
	Remove(ctx context.Context, objectPath string) error
}
