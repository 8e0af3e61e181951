// Package miniostorage реализует объектное хранилище аудио-файлов на основе MinIO.
package miniostorage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/logger"
)

// Константы для сообщений.
const (
	LogBucketCreated = "bucket created"
	LogObjectStored  = "audio object stored"
	LogObjectRemoved = "audio object removed"

	ErrConnect      = "failed to connect to object storage"
	ErrEnsureBucket = "failed to ensure bucket"
	ErrRemoveObject = "failed to remove object"
)

const contentTypeWAV = "audio/wav"

// Config содержит настройки подключения к MinIO.
type Config struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Storage реализует интерфейс services.BlobStorage.
type Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New создает хранилище и при необходимости создает bucket с политикой
// публичного чтения: URL заметок должны разрешаться без подписи.
func New(ctx context.Context, cfg *Config) (*Storage, error) {
	log := logger.Log(ctx)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrConnect, err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrEnsureBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrEnsureBucket, err)
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, cfg.Bucket)
		_ = client.SetBucketPolicy(checkCtx, cfg.Bucket, policy)
		log.Info(ctx, LogBucketCreated, zap.String("bucket", cfg.Bucket))
	}

	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload передает локальный файл в хранилище и возвращает постоянный URL.
// Повторных попыток нет: политика повтора принадлежит вызывающему.
func (s *Storage) Upload(ctx context.Context, localPath, objectPath string) (string, error) {
	log := logger.Log(ctx).With(zap.String("method", "Storage.Upload"))

	_, err := s.client.FPutObject(ctx, s.bucket, objectPath, localPath, minio.PutObjectOptions{
		ContentType: contentTypeWAV,
	})
	if err != nil {
		log.Error(ctx, "upload failed", zap.Error(err), zap.String("objectPath", objectPath))
		return "", fmt.Errorf("%w: %w", services.ErrUploadFailed, err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, objectPath)
	log.Debug(ctx, LogObjectStored, zap.String("objectPath", objectPath), zap.String("url", url))
	return url, nil
}

// Remove удаляет объект по пути.
func (s *Storage) Remove(ctx context.Context, objectPath string) error {
	log := logger.Log(ctx).With(zap.String("method", "Storage.Remove"))

	if err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		log.Error(ctx, ErrRemoveObject, zap.Error(err), zap.String("objectPath", objectPath))
		return fmt.Errorf("%s: %w", ErrRemoveObject, err)
	}

	log.Debug(ctx, LogObjectRemoved, zap.String("objectPath", objectPath))
	return nil
}
