package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// DetailsFetcher は動画詳細取得のインターフェース。
type DetailsFetcher interface {
	GetVideoDetails(ctx context.Context, videoIDs []string) (map[string]model.VideoDetails, error)
}

// DetailsUpdater は分析への動画詳細の書き込み先。analysis.Serviceが満たす。
type DetailsUpdater interface {
	UpdateDetails(ctx context.Context, id string, details model.VideoDetails) (*model.Analysis, error)
}

// Recorder は補完結果の記録先。resultはupdated、not_found、errorのいずれか。
type Recorder interface {
	VideoDetailsFetched(result string, count int)
}

// 補完結果の種別。
const (
	ResultUpdated  = "updated"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// EnricherConfig は補完ジョブの設定。
type EnricherConfig struct {
	// BatchSize は1サイクルで処理する分析の上限（デフォルト: 50）。
	BatchSize int
	// APIInterval はAPI呼び出しの最低間隔（デフォルト: 1秒）。
	APIInterval time.Duration
	// RecheckAfter は詳細を取得できなかった分析を再確認するまでの間隔（デフォルト: 24時間）。
	RecheckAfter time.Duration
}

// DefaultEnricherConfig はデフォルトの設定を返す。
func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		BatchSize:    50,
		APIInterval:  time.Second,
		RecheckAfter: 24 * time.Hour,
	}
}

// Enricher はタイトル未取得のYouTube分析へ動画詳細を補完するジョブ。
// 問い合わせた分析には確認日時を記録し、見つからない動画の分析は
// RecheckAfterが過ぎるまで対象から外す。未確認の分析が常に優先される。
type Enricher struct {
	repo     repository.VideoDetailsRepository
	fetcher  DetailsFetcher
	updater  DetailsUpdater
	recorder Recorder
	logger   *slog.Logger
	config   EnricherConfig
	limiter  *rate.Limiter

	consecutiveErrors int
	backoffUntil      time.Time
	now               func() time.Time
}

// NewEnricher はEnricherを生成する。recorderはnilでもよい。
func NewEnricher(
	repo repository.VideoDetailsRepository,
	fetcher DetailsFetcher,
	updater DetailsUpdater,
	recorder Recorder,
	logger *slog.Logger,
	config EnricherConfig,
) *Enricher {
	defaults := DefaultEnricherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.APIInterval <= 0 {
		config.APIInterval = defaults.APIInterval
	}
	if config.RecheckAfter <= 0 {
		config.RecheckAfter = defaults.RecheckAfter
	}
	return &Enricher{
		repo:     repo,
		fetcher:  fetcher,
		updater:  updater,
		recorder: recorder,
		logger:   logger,
		config:   config,
		limiter:  rate.NewLimiter(rate.Every(config.APIInterval), 1),
		now:      time.Now,
	}
}

// RunOnce は1回の補完サイクルを実行する。
// 対象を50件単位でAPIに問い合わせ、取得できた詳細をUpdateDetailsで書き込む。
func (e *Enricher) RunOnce(ctx context.Context) error {
	start := e.now()

	if !e.backoffUntil.IsZero() && start.Before(e.backoffUntil) {
		e.logger.Info("動画詳細の補完ジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", e.backoffUntil),
		)
		return nil
	}

	analyses, err := e.repo.ListMissingDetails(ctx, start.Add(-e.config.RecheckAfter), e.config.BatchSize)
	if err != nil {
		return fmt.Errorf("補完対象の分析の取得に失敗しました: %w", err)
	}
	if len(analyses) == 0 {
		e.logger.Info("動画詳細の補完対象はありません")
		return nil
	}

	// 同じ動画を複数の分析が参照する場合がある
	byVideo := make(map[string][]string)
	var videoIDs []string
	// checked は確認日時を記録する分析。APIエラーと書き込み失敗の分析は含めず次回に再試行する
	var checked []string
	for _, a := range analyses {
		if a.YouTube == nil || a.YouTube.VideoID == "" {
			checked = append(checked, a.ID)
			continue
		}
		id := a.YouTube.VideoID
		if _, ok := byVideo[id]; !ok {
			videoIDs = append(videoIDs, id)
		}
		byVideo[id] = append(byVideo[id], a.ID)
	}

	e.logger.Info("動画詳細の補完サイクルを開始します",
		slog.Int("target_analyses", len(analyses)),
		slog.Int("unique_videos", len(videoIDs)),
	)

	var apiCallCount, updatedCount, notFoundCount int
	hadError := false

	for i := 0; i < len(videoIDs); i += maxIDsPerRequest {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		end := min(i+maxIDsPerRequest, len(videoIDs))
		chunk := videoIDs[i:end]
		apiCallCount++

		details, err := e.fetcher.GetVideoDetails(ctx, chunk)
		if err != nil {
			e.logger.Error("動画詳細の取得に失敗しました",
				slog.String("error", err.Error()),
				slog.Int("chunk_size", len(chunk)),
			)
			e.record(ResultError, len(chunk))
			hadError = true
			e.consecutiveErrors++
			if backoff := calculateErrorBackoff(e.consecutiveErrors); backoff > 0 {
				e.backoffUntil = e.now().Add(backoff)
				e.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", e.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
			continue
		}

		for _, videoID := range chunk {
			d, ok := details[videoID]
			if !ok {
				notFoundCount += len(byVideo[videoID])
				checked = append(checked, byVideo[videoID]...)
				e.logger.Warn("動画が見つかりません",
					slog.String("video_id", videoID),
				)
				continue
			}
			for _, analysisID := range byVideo[videoID] {
				if _, err := e.updater.UpdateDetails(ctx, analysisID, d); err != nil {
					e.logger.Error("動画詳細の書き込みに失敗しました",
						slog.String("analysis_id", analysisID),
						slog.String("video_id", videoID),
						slog.String("error", err.Error()),
					)
					e.record(ResultError, 1)
					continue
				}
				updatedCount++
				checked = append(checked, analysisID)
			}
		}
	}

	if err := e.repo.MarkDetailsChecked(ctx, checked); err != nil {
		// 記録できなくても次回同じ分析を再確認するだけ
		e.logger.Error("動画詳細の確認日時の記録に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("analysis_count", len(checked)),
		)
	}

	if !hadError {
		e.consecutiveErrors = 0
		e.backoffUntil = time.Time{}
	}
	e.record(ResultUpdated, updatedCount)
	e.record(ResultNotFound, notFoundCount)

	e.logger.Info("動画詳細の補完サイクルが完了しました",
		slog.Int("api_call_count", apiCallCount),
		slog.Int("updated_analyses", updatedCount),
		slog.Int("not_found_analyses", notFoundCount),
		slog.Float64("duration_ms", float64(e.now().Sub(start).Milliseconds())),
	)
	return nil
}

func (e *Enricher) record(result string, count int) {
	if e.recorder != nil && count > 0 {
		e.recorder.VideoDetailsFetched(result, count)
	}
}

// calculateErrorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
