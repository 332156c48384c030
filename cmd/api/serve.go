package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uxnareal/audit-api/internal/application"
	aiapp "github.com/uxnareal/audit-api/internal/application/ai"
	appaudits "github.com/uxnareal/audit-api/internal/application/audits"
	"github.com/uxnareal/audit-api/internal/application/screenshots"
	"github.com/uxnareal/audit-api/internal/config"
	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/infra/ai/anthropic"
	"github.com/uxnareal/audit-api/internal/infra/ai/mock"
	"github.com/uxnareal/audit-api/internal/infra/ai/openai"
	"github.com/uxnareal/audit-api/internal/infra/ai/prompt"
	"github.com/uxnareal/audit-api/internal/infra/db/sqlstore"
	"github.com/uxnareal/audit-api/internal/infra/httpserver"
	"github.com/uxnareal/audit-api/internal/infra/identity"
	"github.com/uxnareal/audit-api/internal/infra/storage"
	"github.com/uxnareal/audit-api/internal/middleware"
)

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sqlstore.Open(ctx, dialect, cfg.DSN())
	if err != nil {
		return nil, "", err
	}
	return db, dialect, nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	db, dialect, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	zap.L().Info("schema migrated", zap.String("driver", string(dialect)))
	return nil
}

func newAIClient(cfg config.AIConfig) (ai.Client, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "mock":
		return mock.Client{}, nil
	}
	return nil, eris.Errorf("unknown ai provider %q", cfg.Provider)
}

func newVerifier(cfg config.AuthConfig) middleware.TokenVerifier {
	chain := identity.Chain{identity.NewStatic(cfg.TokenMap())}
	if cfg.IdentityURL != "" {
		chain = append(chain, identity.NewRemote(cfg.IdentityURL, cfg.IdentityAPIKey))
	}
	return chain
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// connect database
	db, dialect, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Store.AutoMigrate {
		if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
			return err
		}
	}

	// init minio
	store, err := storage.New(ctx, storage.Options{
		Endpoint:      cfg.Minio.Endpoint,
		Region:        cfg.Minio.Region,
		Bucket:        cfg.Minio.BucketName,
		AccessKey:     cfg.Minio.AccessKey,
		SecretKey:     cfg.Minio.SecretKey,
		UseSSL:        cfg.Minio.UseSSL,
		PublicBaseURL: cfg.Minio.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	client, err := newAIClient(cfg.AI)
	if err != nil {
		return err
	}

	shots := &screenshots.Service{
		Store:       store,
		MaxBytes:    cfg.Ingest.MaxBytes,
		Attempts:    cfg.Ingest.FetchAttempts,
		Backoff:     cfg.FetchBackoff(),
		Concurrency: cfg.Ingest.Concurrency,
	}

	// init service
	svc := &appaudits.Service{
		Repo:       sqlstore.NewAnalysisRepository(db, dialect),
		FailureLog: sqlstore.NewFailureRepository(db, dialect),
		Ingest:     shots,
		Composer:   prompt.Composer{},
		Analyzer: aiapp.NewService(client, aiapp.Options{
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AITimeout(),
			MaxAttempts: cfg.AI.MaxAttempts,
		}),
		Clock:   application.SystemClock{},
		Metrics: middleware.AnalysisRecorder{},
	}

	var ready atomic.Bool
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Close()

	handler := httpserver.NewRouter(httpserver.Options{
		Analyses:    svc,
		Screenshots: shots,
		Verifier:    newVerifier(cfg.Auth),
		Limiter:     limiter,
		Health: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"storage":  middleware.CheckFunc(store.Check),
		},
		Ready:          &ready,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		MaxUploadBytes: cfg.Ingest.MaxBytes,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("server listening",
			zap.String("addr", addr),
			zap.String("driver", string(dialect)),
			zap.String("ai_provider", client.Name()),
		)
		ready.Store(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return eris.Wrap(err, "server")
		}
		return nil
	case <-ctx.Done():
	}

	// graceful shutdown
	zap.L().Info("shutting down server...")
	ready.Store(false)
	grace := time.Duration(cfg.Server.ShutdownGraceSecs) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("shutdown error", zap.Error(err))
	}

	// running pipelines finish on their own context
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		zap.L().Warn("pipelines still running at exit")
	}
	return nil
}
