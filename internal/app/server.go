package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/sentilens/internal/analysis"
	"github.com/hitoshi/sentilens/internal/auth"
	"github.com/hitoshi/sentilens/internal/config"
	"github.com/hitoshi/sentilens/internal/handler"
	"github.com/hitoshi/sentilens/internal/metrics"
	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/repository"
	"github.com/hitoshi/sentilens/internal/security"
	"github.com/hitoshi/sentilens/internal/user"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// newRegistry はプロセスとGoランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// newAnalysisService はソースごとの分析サービスを組み立てる。
func newAnalysisService(db *sql.DB, source analysis.Source, schema repository.SourceSchema, collector *metrics.Collector, log *slog.Logger) *analysis.Service {
	return analysis.NewService(
		source,
		repository.NewPostgresAnalysisRepo(db, schema),
		repository.NewPostgresPredictionRepo(db, schema),
		security.NewTextSanitizer(),
		collector,
		log,
	)
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 返されたRateLimiterはシャットダウン時にStopすること。
func buildRouter(cfg *config.Config, db *sql.DB, log *slog.Logger, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter, error) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリとサービスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:    []byte(cfg.JWTSecret),
		ExpiresIn: cfg.JWTExpiresIn,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	authService := auth.NewService(userRepo, hasher, tokens, log)
	userService := user.NewService(userRepo, hasher, log)

	twitterService := newAnalysisService(db, analysis.TwitterSource{}, repository.TwitterSchema(), collector, log)
	youtubeService := newAnalysisService(db, analysis.YouTubeSource{}, repository.YouTubeSchema(), collector, log)

	// 2. ルーターの構築（configのレート制限はreq/min単位）
	limiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
		log,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		TokenVerifier:      authService,
		Metrics:            collector,
		Gatherer:           reg,
		AuthService:        authService,
		UserService:        userService,
		TwitterService:     twitterService,
		YouTubeService:     youtubeService,
		DB:                 db,
	})
	return router, limiter, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	router, limiter, err := buildRouter(cfg, db, log, newRegistry())
	if err != nil {
		return err
	}
	defer limiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}
