package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"theduck/internal/app"
	"theduck/internal/config"
	"theduck/internal/server"
	"theduck/internal/usertoken"
	"theduck/internal/util"
	"theduck/pkg/ai"
	"theduck/pkg/queue"
	"theduck/pkg/storage"
	"theduck/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := newStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	var llm ai.ChatClient
	if cfg.OpenRouterAPIKey != "" {
		llm = ai.NewOpenRouterClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey)
	} else {
		slog.Warn("no OpenRouter API key configured; chat endpoints degrade to fallbacks")
	}

	appCore, err := app.New(app.Config{
		Store:        st,
		ChatClient:   llm,
		DefaultModel: cfg.ChatModel,
		TitleModel:   cfg.TitleModel,
		SummaryModel: cfg.SummaryModel,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jobs server.Enqueuer
	if cfg.RedisAddr != "" {
		stream := cfg.QueueStream
		if stream == "" {
			stream = "duck:summarize"
		}
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   stream,
			Group:    cfg.QueueGroup,
		})
		if err != nil {
			log.Fatalf("failed to init job queue: %v", err)
		}
		concurrency := cfg.QueueConcurrency
		if concurrency <= 0 {
			concurrency = 2
		}
		q.Start(ctx, concurrency, func(jobCtx context.Context, job queue.JobStatus) error {
			_, err := appCore.SummarizeSession(jobCtx, job.UserID, job.SessionID)
			return err
		})
		jobs = q
	} else {
		slog.Warn("no Redis configured; end-of-session summarization queue disabled")
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	var verifier server.TokenVerifier
	if cfg.AuthJWKSURL != "" {
		v, err := usertoken.NewVerifier(usertoken.Config{
			JWKSURL:  cfg.AuthJWKSURL,
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			Leeway:   time.Duration(cfg.AuthLeewaySeconds) * time.Second,
		})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
		verifier = v
	} else {
		slog.Warn("no JWKS URL configured; authenticated endpoints will reject all callers")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                    appCore,
		TokenVerifier:          verifier,
		Objects:                objects,
		Jobs:                   jobs,
		RedisAddr:              cfg.RedisAddr,
		RedisPassword:          cfg.RedisPassword,
		ChatRateLimitPerMinute: cfg.ChatRequestsPerMinute,
		APIRateLimitPerMinute:  cfg.APIRequestsPerMinute,
		MaxUploadBytes:         cfg.MaxUploadBytes,
		AllowedExtensions:      cfg.AllowedExtensions,
		TrustedProxies:         trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: SSE responses are open-ended.
		IdleTimeout: 60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("duck server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func newStore(cfg config.FileConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSupabase:
		return store.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewGormStore(cfg.DatabaseURL)
	}
}
