package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/sentilens/internal/analysis"
	"github.com/hitoshi/sentilens/internal/config"
	"github.com/hitoshi/sentilens/internal/metrics"
	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
	"github.com/hitoshi/sentilens/internal/security"
	"github.com/hitoshi/sentilens/internal/worker/reaper"
	"github.com/hitoshi/sentilens/internal/youtube"
)

// youtubeTimeout はYouTube Data API呼び出しのタイムアウト。
const youtubeTimeout = 10 * time.Second

// cronLogger はcronの内部ログをslogに流すアダプタ。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}

// newScheduler はワーカーの定期ジョブを登録したcronスケジューラを生成する。
// 放置分析の失敗扱いは常に登録し、動画詳細の補完はYOUTUBE_API_KEYがある場合のみ登録する。
// ジョブは前回の実行が終わるまで重ねて起動しない。
func newScheduler(ctx context.Context, cfg *config.Config, db *sql.DB, collector *metrics.Collector, log *slog.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	twitterSchema, youtubeSchema := repository.TwitterSchema(), repository.YouTubeSchema()
	youtubeService := newAnalysisService(db, analysis.YouTubeSource{}, youtubeSchema, collector, log)

	// 1. 放置された分析の失敗扱い（ステータスは分析サービス経由で遷移させる）
	job := reaper.NewJob([]reaper.Target{
		{
			Source:  model.SourceTwitter,
			Finder:  repository.NewPostgresAnalysisRepo(db, twitterSchema),
			Updater: newAnalysisService(db, analysis.TwitterSource{}, twitterSchema, collector, log),
		},
		{
			Source:  model.SourceYouTube,
			Finder:  repository.NewPostgresAnalysisRepo(db, youtubeSchema),
			Updater: youtubeService,
		},
	}, collector, log)
	job.StaleAfter = cfg.StaleAnalysisAfter
	if _, err := c.AddFunc(cfg.ReaperSchedule, func() {
		if err := job.Run(ctx); err != nil {
			log.Error("放置分析の失敗扱いジョブが失敗しました", slog.String("error", err.Error()))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid REAPER_SCHEDULE %q: %w", cfg.ReaperSchedule, err)
	}

	// 2. YouTube動画詳細の補完
	if !cfg.EnrichEnabled() {
		log.Info("YOUTUBE_API_KEYが未設定のため動画詳細の補完は無効です")
		return c, nil
	}

	endpoint, err := url.Parse(cfg.YouTubeAPIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid YOUTUBE_API_ENDPOINT: %w", err)
	}
	guard := security.NewEndpointGuard(endpoint.Hostname())
	if err := guard.Validate(cfg.YouTubeAPIEndpoint); err != nil {
		return nil, fmt.Errorf("invalid YOUTUBE_API_ENDPOINT: %w", err)
	}

	client := youtube.NewClient(guard.NewClient(youtubeTimeout), cfg.YouTubeAPIKey, cfg.YouTubeAPIEndpoint, log)
	enricher := youtube.NewEnricher(
		repository.NewPostgresAnalysisRepo(db, youtubeSchema),
		client,
		youtubeService,
		collector,
		log,
		youtube.EnricherConfig{
			BatchSize:    cfg.EnrichBatchSize,
			APIInterval:  cfg.YouTubeAPIInterval,
			RecheckAfter: cfg.EnrichRecheckAfter,
		},
	)
	if _, err := c.AddFunc(cfg.EnrichSchedule, func() {
		if err := enricher.RunOnce(ctx); err != nil {
			log.Error("動画詳細の補完ジョブが失敗しました", slog.String("error", err.Error()))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid ENRICH_SCHEDULE %q: %w", cfg.EnrichSchedule, err)
	}

	return c, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、cronスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信すると実行中のジョブの完了を待って終了する。
func runWorker(cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	scheduler, err := newScheduler(ctx, cfg, db, metrics.NewCollector(reg), log)
	if err != nil {
		return err
	}

	// ジョブのメトリクスはワーカー専用のポートで公開する
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	log.Info("worker starting",
		slog.String("reaper_schedule", cfg.ReaperSchedule),
		slog.String("enrich_schedule", cfg.EnrichSchedule),
		slog.Bool("enrich_enabled", cfg.EnrichEnabled()),
		slog.Int("jobs", len(scheduler.Entries())),
	)
	scheduler.Start()

	<-ctx.Done()
	log.Info("shutting down worker...")

	// 実行中のジョブの完了を待つ
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("worker stopped gracefully")
	return nil
}
