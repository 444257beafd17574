package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/feed-platform/internal/platform/auth"
	"github.com/example/feed-platform/internal/platform/config"
	"github.com/example/feed-platform/internal/platform/httpserver"
	"github.com/example/feed-platform/internal/platform/logging"
	"github.com/example/feed-platform/internal/platform/natsconn"
	"github.com/example/feed-platform/internal/platform/run"
	"github.com/example/feed-platform/services/feedstub/internal/handlers"
	"github.com/example/feed-platform/services/feedstub/internal/store"
	"github.com/example/feed-platform/services/feedstub/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		// config.Load refuses an empty secret in production
		log.Warn("JWT_SECRET not set, using an insecure development secret")
		jwtSecret = "feedstub-dev-secret"
	}
	verifier := auth.JWTVerifier{Secret: []byte(jwtSecret)}

	comments := initComments(log)
	tally := worker.NewTally(100)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Logger: log})
	r.Group(func(r chi.Router) {
		// reads are public; mutations check the user inside the resolver
		r.Use(auth.OptionalUser(verifier))
		r.Post("/graphql", handlers.GraphQL(comments, log))
	})
	if !cfg.IsProduction() {
		r.Post("/v1/dev/token", handlers.IssueToken(verifier, 24*time.Hour))
		r.Get("/v1/dev/events", handlers.EventStats(tally))
	}

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		// audit consumer (non-fatal if NATS unavailable)
		nc, err := natsconn.Connect(natsconn.Options{Name: cfg.ServiceName})
		if err != nil {
			log.Warn("nats connect, event audit disabled", zap.Error(err))
		} else {
			worker.StartAuditConsumer(ctx, nc, tally, log)
			defer nc.Close()
		}

		go func() {
			<-ctx.Done()
			runner.Graceful(srv.Shutdown)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initComments builds the in-memory store and loads FEEDSTUB_SEED when set.
// A broken seed file is fatal so fixtures never silently go missing.
func initComments(log *zap.Logger) store.CommentStore {
	s := store.NewInMemoryCommentStore()

	path := strings.TrimSpace(os.Getenv("FEEDSTUB_SEED"))
	if path == "" {
		log.Info("FEEDSTUB_SEED not set, starting with an empty feed")
		return s
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Error("seed file not found", zap.String("path", path))
		} else {
			log.Error("open seed file", zap.String("path", path), zap.Error(err))
		}
		_ = log.Sync()
		os.Exit(1)
	}
	defer f.Close()

	n, err := s.Seed(f)
	if err != nil {
		log.Error("load seed file", zap.String("path", path), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("comments store: in-memory", zap.String("seed", path), zap.Int("comments", n))
	return s
}
