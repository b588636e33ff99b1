// Package reaper は処理が止まった分析をfailedに移すジョブを提供する。
// 非終端ステータスのままupdated_atがStaleAfterより古い分析が対象。
// ステータスの変更は分析サービスのUpdateStatusを通すため、遷移規則はサービス側で守られる。
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// DefaultStaleAfter は放置とみなすまでの既定の期間。
const DefaultStaleAfter = 7 * 24 * time.Hour

// DefaultBatchSize は1回の実行で1ソースあたりに処理する上限件数。
const DefaultBatchSize = 500

// StatusUpdater は分析のステータスを遷移させる。analysis.Serviceが満たす。
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, next model.AnalysisStatus) (*model.Analysis, error)
}

// Recorder は失敗扱いにした件数の記録先。
type Recorder interface {
	AnalysesReaped(source model.Source, count int)
}

// Target は1ソース分の処理対象。
type Target struct {
	Source  model.Source
	Finder  repository.StaleAnalysisRepository
	Updater StatusUpdater
}

// Job は放置された分析をfailedにする定期ジョブ。
type Job struct {
	targets    []Target
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
	StaleAfter time.Duration
	BatchSize  int
}

// NewJob はJobを生成する。recorderはnilでもよい。
func NewJob(targets []Target, recorder Recorder, logger *slog.Logger) *Job {
	return &Job{
		targets:    targets,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
		StaleAfter: DefaultStaleAfter,
		BatchSize:  DefaultBatchSize,
	}
}

// Run は各ソースを順に処理する。
// 1ソースが失敗しても残りは処理し、最初のエラーを返す。
// 対象がない場合もエラーにはならない。
func (j *Job) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.StaleAfter)

	var firstErr error
	var total int
	for _, target := range j.targets {
		n, err := j.reap(ctx, target, before)
		if n > 0 {
			total += n
			if j.recorder != nil {
				j.recorder.AnalysesReaped(target.Source, n)
			}
		}
		if err != nil {
			j.logger.Error("放置分析の失敗処理に失敗しました",
				slog.String("source", string(target.Source)),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	j.logger.Info("放置分析の失敗処理が完了しました",
		slog.Int("reaped_count", total),
		slog.Duration("stale_after", j.StaleAfter),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return firstErr
}

// reap は1ソース分の放置分析をfailedにし、遷移できた件数を返す。
// 一覧取得後に他の更新で状態が変わった分析は読み飛ばす。
func (j *Job) reap(ctx context.Context, target Target, before time.Time) (int, error) {
	ids, err := target.Finder.ListStale(ctx, before, j.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%s の放置分析の取得に失敗: %w", target.Source, err)
	}

	var reaped int
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return reaped, ctx.Err()
		}
		if _, err := target.Updater.UpdateStatus(ctx, id, model.StatusFailed); err != nil {
			if isRaced(err) {
				j.logger.Debug("状態が変わったため失敗扱いを見送りました",
					slog.String("analysis_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%s の分析 %s の更新に失敗: %w", target.Source, id, err)
			}
			continue
		}
		reaped++
	}
	return reaped, firstErr
}

// isRaced は一覧取得後に終端へ進んだか削除された分析のエラーかどうかを返す。
func isRaced(err error) bool {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == model.ErrCodeInvalidStatusTransition || apiErr.Code == model.ErrCodeAnalysisNotFound
}
