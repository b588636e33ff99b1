// Package analysis は分析の登録、予測データの取り込み、感情の集計を提供する。
// TwitterとYouTubeは同じServiceをSourceアダプタで切り替えて使う。
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
	"github.com/hitoshi/sentilens/internal/security"
)

const (
	// DefaultPage はページ番号の既定値。
	DefaultPage = 1
	// DefaultLimit は1ページあたりの件数の既定値。
	DefaultLimit = 10
	// MaxLimit は1ページあたりの件数の上限。
	MaxLimit = 100
)

// Page はページング指定。
type Page struct {
	Page  int
	Limit int
}

// Offset は(page-1)*limitを返す。
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p Page) validate() error {
	if p.Page < 1 {
		return model.NewInvalidRequestError("page は1以上を指定してください")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return model.NewInvalidRequestError(fmt.Sprintf("limit は1以上%d以下を指定してください", MaxLimit))
	}
	return nil
}

// AnalysisPage は分析一覧の1ページ分。
type AnalysisPage struct {
	Data  []*model.Analysis
	Total int
	Page  int
	Limit int
}

// Recorder はドメインイベントのメトリクス記録インターフェース。
type Recorder interface {
	AnalysisCreated(source model.Source)
	PredictionIngested(source model.Source, sentiment model.Sentiment)
}

type noopRecorder struct{}

func (noopRecorder) AnalysisCreated(model.Source)                     {}
func (noopRecorder) PredictionIngested(model.Source, model.Sentiment) {}

// Service は1ソース分の分析、予測、集計のビジネスロジックを提供する。
type Service struct {
	source      Source
	analyses    repository.AnalysisRepository
	predictions repository.PredictionRepository
	sanitizer   security.TextSanitizer
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	source Source,
	analyses repository.AnalysisRepository,
	predictions repository.PredictionRepository,
	sanitizer security.TextSanitizer,
	recorder Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		source:      source,
		analyses:    analyses,
		predictions: predictions,
		sanitizer:   sanitizer,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// Source は対象ソースの種別を返す。
func (s *Service) Source() model.Source {
	return s.source.Kind()
}

// CreateAnalysis はstatus=collectingの分析を作成する。
// 外部の収集処理の起動は行わない。
func (s *Service) CreateAnalysis(ctx context.Context, userID string, params CreateAnalysisParams) (*model.Analysis, error) {
	now := s.now().UTC()
	a := &model.Analysis{
		ID:        uuid.New().String(),
		UserID:    userID,
		Source:    s.source.Kind(),
		Status:    model.StatusCollecting,
		Topic:     strings.TrimSpace(params.Topic),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.source.BuildAnalysis(a, params, now); err != nil {
		return nil, err
	}

	if err := s.analyses.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, model.NewUserNotFoundError(userID)
		}
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	s.recorder.AnalysisCreated(a.Source)
	s.logger.Info("analysis created",
		slog.String("analysis_id", a.ID),
		slog.String("user_id", userID),
		slog.String("source", string(a.Source)),
	)
	return a, nil
}

// ListAnalyses は全ユーザーの分析を新しい順に返す。
func (s *Service) ListAnalyses(ctx context.Context, page Page) (*AnalysisPage, error) {
	return s.list(ctx, "", page)
}

// ListUserAnalyses は指定ユーザーの分析を新しい順に返す。
func (s *Service) ListUserAnalyses(ctx context.Context, userID string, page Page) (*AnalysisPage, error) {
	return s.list(ctx, userID, page)
}

func (s *Service) list(ctx context.Context, userID string, page Page) (*AnalysisPage, error) {
	if err := page.validate(); err != nil {
		return nil, err
	}
	data, total, err := s.analyses.List(ctx, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return &AnalysisPage{Data: data, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// GetAnalysis は分析を取得する。
// requesterIDが空でなく所有者と異なる場合はForbiddenを返す。ロールによる例外はない。
func (s *Service) GetAnalysis(ctx context.Context, id, requesterID string) (*model.Analysis, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && a.UserID != requesterID {
		return nil, model.NewAnalysisForbiddenError()
	}
	return a, nil
}

// ListPredictions は分析に紐づく予測をソースごとの順位で返す。
func (s *Service) ListPredictions(ctx context.Context, id, requesterID string) ([]*model.Prediction, error) {
	if _, err := s.GetAnalysis(ctx, id, requesterID); err != nil {
		return nil, err
	}
	predictions, err := s.predictions.ListByHistoryID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return predictions, nil
}

// CountSentiments は分析に紐づく予測の感情別件数を返す。
func (s *Service) CountSentiments(ctx context.Context, id, requesterID string) (*model.SentimentCount, error) {
	if _, err := s.GetAnalysis(ctx, id, requesterID); err != nil {
		return nil, err
	}
	count, err := s.predictions.CountSentiments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count sentiments: %w", err)
	}
	return count, nil
}

// Summarize は投稿日（UTC）ごとの感情別件数を日付昇順で返す。
func (s *Service) Summarize(ctx context.Context, id, requesterID string) ([]model.DailySentiment, error) {
	if _, err := s.GetAnalysis(ctx, id, requesterID); err != nil {
		return nil, err
	}
	summary, err := s.predictions.DailySummary(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sentiments: %w", err)
	}
	return summary, nil
}

// ListTopics は予測に含まれるトピックを重複なく昇順で返す。
func (s *Service) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := s.predictions.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

// CreatePrediction は予測を登録する。
// 参照先の分析が同じソースに存在しない場合はNotFoundを返す。
// 本文はタグを含む場合だけ無害化し、それ以外はそのまま保存する。
func (s *Service) CreatePrediction(ctx context.Context, params CreatePredictionParams) (*model.Prediction, error) {
	if !params.Sentiment.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("sentiment は Positive, Neutral, Negative のいずれかを指定してください: %s", params.Sentiment))
	}
	if params.LikeCount < 0 {
		return nil, model.NewInvalidRequestError("like_count は0以上を指定してください")
	}
	postedAt, err := parseDate("posted_at", params.PostedAt)
	if err != nil {
		return nil, err
	}
	content := s.sanitizer.Sanitize(params.Content)
	if strings.TrimSpace(content) == "" {
		return nil, model.NewInvalidRequestError("content は必須です")
	}

	if _, err := s.find(ctx, params.HistoryID); err != nil {
		return nil, err
	}

	p := &model.Prediction{
		ID:        uuid.New().String(),
		HistoryID: params.HistoryID,
		Source:    s.source.Kind(),
		Content:   content,
		Author:    strings.TrimSpace(params.Author),
		PostedAt:  postedAt,
		LikeCount: params.LikeCount,
		Sentiment: params.Sentiment,
		Topic:     strings.TrimSpace(params.Topic),
		CreatedAt: s.now().UTC(),
	}
	if err := s.source.BuildPrediction(p, params); err != nil {
		return nil, err
	}

	if err := s.predictions.Create(ctx, p); err != nil {
		// 存在確認の後に分析が削除された場合
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, model.NewAnalysisNotFoundError(s.source.Kind(), params.HistoryID)
		}
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	s.recorder.PredictionIngested(p.Source, p.Sentiment)
	return p, nil
}

// UpdateStatus は分析のステータスを遷移させる。
// 許可されていない遷移と終端状態からの変更はINVALID_STATUS_TRANSITIONを返す。
func (s *Service) UpdateStatus(ctx context.Context, id string, next model.AnalysisStatus) (*model.Analysis, error) {
	if !next.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("未定義のステータスです: %s", next))
	}
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, model.NewInvalidStatusTransitionError(a.Status, next)
	}

	updated, err := s.analyses.UpdateStatus(ctx, id, a.Status, next)
	if err != nil {
		return nil, fmt.Errorf("failed to update analysis status: %w", err)
	}
	if !updated {
		// 他の更新が先に反映された
		return nil, model.NewInvalidStatusTransitionError(a.Status, next)
	}

	s.logger.Info("analysis status changed",
		slog.String("analysis_id", id),
		slog.String("from", string(a.Status)),
		slog.String("to", string(next)),
	)
	a.Status = next
	a.UpdatedAt = s.now().UTC()
	return a, nil
}

// UpdateDetails は動画の詳細を上書きする。YouTubeのみ対応する。
func (s *Service) UpdateDetails(ctx context.Context, id string, details model.VideoDetails) (*model.Analysis, error) {
	if !s.source.SupportsDetails() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("%s の分析は詳細の更新に対応していません", s.source.Kind().Label()))
	}
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.analyses.UpdateDetails(ctx, id, details)
	if err != nil {
		return nil, fmt.Errorf("failed to update analysis details: %w", err)
	}
	if !updated {
		return nil, model.NewAnalysisNotFoundError(s.source.Kind(), id)
	}

	a.YouTube.Title = details.Title
	a.YouTube.ChannelName = details.ChannelName
	a.YouTube.VideoDate = details.VideoDate
	a.UpdatedAt = s.now().UTC()
	return a, nil
}

// find は分析を取得する。UUIDとして不正なIDは存在しないものとして扱う。
func (s *Service) find(ctx context.Context, id string) (*model.Analysis, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewAnalysisNotFoundError(s.source.Kind(), id)
	}
	a, err := s.analyses.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis: %w", err)
	}
	if a == nil {
		return nil, model.NewAnalysisNotFoundError(s.source.Kind(), id)
	}
	return a, nil
}
