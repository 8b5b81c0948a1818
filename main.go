package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/okarro/taskmaster/config"
	"github.com/okarro/taskmaster/internal/firebase"
	"github.com/okarro/taskmaster/internal/ratelimit"
	"github.com/okarro/taskmaster/internal/session"
	"github.com/okarro/taskmaster/internal/storage"
	"github.com/okarro/taskmaster/internal/tasks"
)

const (
	logFileName   = "taskmaster.log"
	cacheFileName = "tasks.db"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		log.Fatal().Strs("missing", missing).Msg("missing required config")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	// Log to both stderr and a file in the data dir.
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log file")
	}
	defer logFile.Close()
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

	// Session store, plain or encrypted.
	var store interface {
		session.Store
		SetGuestCleaner(session.GuestCleaner)
	}
	if cfg.EncryptSession {
		store, err = session.NewSecureStore(cfg.DataDir, nil)
	} else {
		store, err = session.NewFileStore(cfg.DataDir, nil)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}

	authClient := firebase.NewAuthClient(firebase.AuthClientOpts{APIKey: cfg.FirebaseAPIKey})
	dataClient := firebase.NewDataClient(firebase.DataClientOpts{DatabaseURL: cfg.FirebaseDatabaseURL})

	sessions := session.NewManager(store, authClient, cfg.TokenTTL)
	if err := sessions.Restore(); err != nil {
		log.Warn().Err(err).Msg("failed to restore session")
	}

	cache, err := storage.NewCache(filepath.Join(cfg.DataDir, cacheFileName))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open task cache")
	}
	defer cache.Close()

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
	executor := firebase.NewRateLimitedExecutor(sessions, limiter)
	taskService := tasks.NewService(dataClient, executor, limiter, sessions, cache)
	store.SetGuestCleaner(taskService)

	app := NewApp(sessions, taskService, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	runCtx, done := context.WithCancel(ctx)
	g.Go(func() error {
		defer done()
		return app.Run(runCtx, os.Args[1:])
	})
	g.Go(func() error {
		err := session.KeepAlive(runCtx, sessions, cfg.KeepAliveInterval)
		if runCtx.Err() != nil {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exiting with error")
		os.Exit(1)
	}
}
