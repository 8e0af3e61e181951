// Package main реализует headless-клиент голосовых заметок: запись PCM
// со stdin с публикацией и воспроизведение опубликованной заметки.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"familyvoice/internal/voicenotes/adapters/capture"
	"familyvoice/internal/voicenotes/adapters/miniostorage"
	"familyvoice/internal/voicenotes/adapters/playback"
	"familyvoice/internal/voicenotes/adapters/postgres"
	"familyvoice/internal/voicenotes/adapters/redisfeed"
	"familyvoice/internal/voicenotes/app"
	"familyvoice/internal/voicenotes/config"
	"familyvoice/internal/voicenotes/db"
	"familyvoice/internal/voicenotes/domain/entities"
	"familyvoice/internal/voicenotes/ports/services"
	"familyvoice/pkg/db/redis"
	"familyvoice/pkg/logger"
)

// Константы для переменных окружения.
const (
	EnvLoggerMode  = "VOICE_LOGGER_MODE"
	EnvLoggerLevel = "VOICE_LOGGER_LEVEL"
)

// Константы для сообщений об ошибках.
const (
	ErrInitLogger  = "failed to initialize logger"
	ErrLoadConfig  = "failed to load configuration"
	ErrInitDB      = "failed to initialize database"
	ErrInitRedis   = "failed to initialize redis client"
	ErrInitStorage = "failed to initialize object storage"
)

const usage = `usage:
  voicectl record --family <id> --parent <id> [--context task|safe] [--user <id>] [--username <name>] [--role <role>]
      reads raw PCM-16 from stdin until SIGINT, then uploads and publishes the note
  voicectl play --url <url>
      fetches a published note, writes PCM to stdout and progress to stderr`

func main() {
	env := logger.Development
	if strings.ToLower(os.Getenv(EnvLoggerMode)) == "production" {
		env = logger.Production
	}

	log, err := logger.NewLogger(env, os.Getenv(EnvLoggerLevel))
	if err != nil {
		panic(ErrInitLogger + ": " + err.Error())
	}
	logger.SetGlobalLogger(log)

	ctx := logger.NewRequestIDContext(context.Background(), "")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var exitCode int
	switch os.Args[1] {
	case "record":
		exitCode = runRecord(ctx, os.Args[2:])
	case "play":
		exitCode = runPlay(ctx, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		exitCode = 2
	}

	_ = log.Sync()
	os.Exit(exitCode)
}

// runRecord записывает PCM со stdin до SIGINT и публикует заметку
// через тот же конвейер запись -> загрузка -> создание, что и сервис.
func runRecord(ctx context.Context, args []string) int {
	log := logger.Log(ctx)

	fs := flag.NewFlagSet("record", flag.ExitOnError)
	familyID := fs.String("family", "", "family identifier")
	parentID := fs.String("parent", "", "parent thread identifier")
	noteCtx := fs.String("context", string(entities.ContextTask), "note context: task or safe")
	userID := fs.String("user", "local", "author user identifier")
	username := fs.String("username", "local", "author display name")
	role := fs.String("role", "parent", "author family role")
	_ = fs.Parse(args)

	scope := entities.Scope{
		FamilyID: *familyID,
		Context:  entities.Context(*noteCtx),
		ParentID: *parentID,
	}
	if scope.FamilyID == "" || scope.ParentID == "" || !scope.Context.Valid() {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, ErrLoadConfig, zap.Error(err))
		return 1
	}

	database, err := db.New(ctx, &cfg.Postgres, "migrations/voicenotes")
	if err != nil {
		log.Error(ctx, ErrInitDB, zap.Error(err))
		return 1
	}
	defer database.Close(ctx)

	redisClient, err := redis.NewClient(&redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.GetTimeout(),
	})
	if err != nil {
		log.Error(ctx, ErrInitRedis, zap.Error(err))
		return 1
	}
	defer func() { _ = redisClient.Close() }()

	storage, err := miniostorage.New(ctx, &miniostorage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		PublicURL: cfg.Storage.PublicURL,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		log.Error(ctx, ErrInitStorage, zap.Error(err))
		return 1
	}

	noteStore := postgres.NewRepositoryFactory(database.Pool()).NoteStore()
	changeFeed := redisfeed.NewFeed(redisClient.RawClient())
	noteUseCase := app.NewVoiceNoteUseCase(noteStore, changeFeed, storage)

	recorder := capture.NewFileRecorder(
		capture.StaticPrompter(true),
		capture.NewSourceMicrophone(os.Stdin, cfg.Audio.SampleRate),
		capture.WithPollInterval(cfg.Audio.GetRecordPollInterval()),
	)
	composer := app.NewComposerUseCase(recorder, storage, noteUseCase)

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
	}()

	fmt.Fprintln(os.Stderr, "recording, press Ctrl-C to publish")

	var failed bool
	composer.RecordAndPublish(ctx, scope, &services.Identity{
		UserID:   *userID,
		Username: *username,
		Role:     *role,
	}, stop,
		func(elapsedMs int64) {
			fmt.Fprintf(os.Stderr, "\rrecording %6.1fs", float64(elapsedMs)/1000)
		},
		func(note *entities.VoiceNote) {
			fmt.Fprintf(os.Stderr, "\npublished note %s (%dms)\n%s\n", note.ID, note.DurationMs, note.URL)
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "\nrecording failed: %v\n", err)
			failed = true
		})

	if failed {
		return 1
	}
	return 0
}

// stdoutSink пишет PCM-кадры воспроизводимой заметки в stdout.
type stdoutSink struct{}

func (stdoutSink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdoutSink) Close() error                { return nil }

// runPlay загружает заметку по URL и проигрывает ее до конца дорожки,
// печатая позицию по снимкам состояния проигрывателя.
func runPlay(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	url := fs.String("url", "", "published note URL")
	_ = fs.Parse(args)

	if *url == "" {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	engine := playback.NewEngine(playback.WithSink(stdoutSink{}))
	defer engine.Close()

	engine.Load(ctx, *url)

	if state := engine.State(); state.Err != nil {
		fmt.Fprintf(os.Stderr, "load failed: %v\n", state.Err)
		return 1
	}

	engine.Play()

	for state := range engine.Updates() {
		fmt.Fprintf(os.Stderr, "\rplaying %6.1fs / %6.1fs",
			float64(state.PositionMs)/1000, float64(state.DurationMs)/1000)
		if !state.IsPlaying && state.PositionMs >= state.DurationMs {
			break
		}
	}

	fmt.Fprintln(os.Stderr)
	return 0
}
