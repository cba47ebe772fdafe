package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"statchat/internal/archive"
	"statchat/internal/config"
	"statchat/internal/export"
	"statchat/internal/ragclient"
	"statchat/internal/ratelimit"
	"statchat/internal/server"
	"statchat/internal/session"
	"statchat/internal/store"
	"statchat/internal/util"
	"statchat/pkg/domain"
)

func main() {
	cfg, err := config.Load(os.Getenv("STATCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	answerClient := ragclient.NewClient(cfg.RAGBaseURL, cfg.TopK, config.Duration(cfg.AskTimeout))

	tokens := newTokenStore(cfg)

	var transcripts archive.TranscriptStore
	if cfg.DatabaseURL != "" {
		gormStore, err := archive.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to init transcript store", "err", err)
		}
		transcripts = gormStore
	}
	recorder := newRecorder(ctx, cfg, transcripts)

	var exporter *export.Exporter
	if cfg.MinioEndpoint != "" && cfg.MinioBucket != "" {
		objects, err := export.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init object store", "err", err)
		}
		exporter, err = export.NewExporter(objects, config.Duration(cfg.ExportURLTTL))
		if err != nil {
			util.Fatal("failed to init exporter", "err", err)
		}
	}

	var askLimiter *ratelimit.FixedWindowLimiter
	if cfg.AskRateLimitPerMinute > 0 {
		askLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "statchat:ratelimit:ask", cfg.AskRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	sessions := session.NewManager(session.ManagerConfig{
		Client:       answerClient,
		Recorder:     recorder,
		DefaultModel: domain.Model(cfg.DefaultModel),
		IdleAfter:    config.Duration(cfg.SessionIdleTime),
	})
	sessions.StartJanitor(ctx, time.Minute)

	httpServer, err := server.New(server.Config{
		Sessions:       sessions,
		Tokens:         tokens,
		History:        transcripts,
		Exporter:       exporter,
		AskLimiter:     askLimiter,
		Suggestions:    cfg.QuickQuestions,
		Models:         cfg.Models,
		TrustedProxies: trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "rag_base_url", cfg.RAGBaseURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newTokenStore(cfg config.FileConfig) store.TokenStore {
	ttl := config.Duration(cfg.SessionTTL)
	switch {
	case cfg.JWTSecret != "":
		return store.NewJWTTokenStore(cfg.JWTSecret, ttl)
	case cfg.RedisAddr != "":
		return store.NewRedisTokenStore(cfg.RedisAddr, cfg.RedisPassword, ttl)
	default:
		slog.Warn("no jwtSecret or redisAddr configured, session tokens are in-memory and lost on restart")
		return store.NewMemoryTokenStore()
	}
}

// newRecorder wires transcript archiving. With Redis available, exchanges go
// through the stream queue and a worker pool; otherwise writes are direct.
// Without a database there is nothing to archive into.
func newRecorder(ctx context.Context, cfg config.FileConfig, transcripts archive.TranscriptStore) session.Recorder {
	if transcripts == nil {
		return nil
	}
	if cfg.RedisAddr == "" {
		return archive.NewDirectRecorder(transcripts)
	}
	queue, err := archive.NewRedisExchangeQueue(archive.QueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.ArchiveStream,
	})
	if err != nil {
		util.Fatal("failed to init archive queue", "err", err)
	}
	go func() {
		if err := queue.Run(ctx, cfg.ArchiveWorkers, func(ctx context.Context, sessionID string, msgs []domain.Message) error {
			return transcripts.Append(ctx, sessionID, msgs...)
		}); err != nil {
			slog.Error("archive worker stopped", "err", err)
		}
	}()
	return archive.NewQueueRecorder(queue)
}
