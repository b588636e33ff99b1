package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sentilens/internal/analysis"
	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/model"
)

// dateLayout は検索期間の日付の書式。
const dateLayout = "2006-01-02"

// AnalysisServiceInterface は分析ハンドラーが必要とするサービスインターフェース。
// analysis.Serviceが満たす。
type AnalysisServiceInterface interface {
	Source() model.Source
	CreateAnalysis(ctx context.Context, userID string, params analysis.CreateAnalysisParams) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, page analysis.Page) (*analysis.AnalysisPage, error)
	ListUserAnalyses(ctx context.Context, userID string, page analysis.Page) (*analysis.AnalysisPage, error)
	GetAnalysis(ctx context.Context, id, requesterID string) (*model.Analysis, error)
	ListPredictions(ctx context.Context, id, requesterID string) ([]*model.Prediction, error)
	CountSentiments(ctx context.Context, id, requesterID string) (*model.SentimentCount, error)
	Summarize(ctx context.Context, id, requesterID string) ([]model.DailySentiment, error)
	ListTopics(ctx context.Context) ([]string, error)
	CreatePrediction(ctx context.Context, params analysis.CreatePredictionParams) (*model.Prediction, error)
}

// AnalysisHandler は1ソース分の分析・予測エンドポイントのHTTPハンドラー。
type AnalysisHandler struct {
	service AnalysisServiceInterface
}

// NewAnalysisHandler はAnalysisHandlerを生成する。
func NewAnalysisHandler(service AnalysisServiceInterface) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
	}
}

// --- リクエスト ---

// createAnalysisRequest は分析作成リクエストのボディ。
// 必須項目の組み合わせはソースごとに異なるため、サービス層で検証する。
type createAnalysisRequest struct {
	Topic     string `json:"topic" validate:"max=255"`
	Keyword   string `json:"keyword" validate:"max=255"`
	SinceDate string `json:"since_date"`
	UntilDate string `json:"until_date"`
	VideoID   string `json:"video_id" validate:"max=64"`
}

// createPredictionRequest は予測登録リクエストのボディ。
type createPredictionRequest struct {
	HistoryID string `json:"history_id" validate:"required,uuid"`
	Content   string `json:"content" validate:"required"`
	Author    string `json:"author" validate:"max=255"`
	PostedAt  string `json:"posted_at" validate:"required"`
	LikeCount int    `json:"like_count" validate:"gte=0"`
	Sentiment string `json:"sentiment" validate:"required,oneof=Positive Neutral Negative"`
	Topic     string `json:"topic" validate:"max=255"`

	Keyword         string  `json:"keyword" validate:"max=255"`
	RetweetCount    int     `json:"retweet_count" validate:"gte=0"`
	ReplyCount      int     `json:"reply_count" validate:"gte=0"`
	PopularityScore float64 `json:"popularity_score"`

	Title       string `json:"title" validate:"max=255"`
	ChannelName string `json:"channel_name" validate:"max=255"`
	VideoDate   string `json:"video_date"`
}

// --- レスポンス ---

type twitterFields struct {
	Keyword   string `json:"keyword"`
	SinceDate string `json:"since_date"`
	UntilDate string `json:"until_date"`
}

type youtubeFields struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	ChannelName string    `json:"channel_name"`
	VideoDate   time.Time `json:"video_date"`
}

// analysisResponse は分析のレスポンス。ソース固有の項目は同じ階層に展開する。
type analysisResponse struct {
	ID     string               `json:"id"`
	UserID string               `json:"user_id"`
	Source model.Source         `json:"source"`
	Status model.AnalysisStatus `json:"status"`
	Topic  string               `json:"topic"`
	*twitterFields
	*youtubeFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type analysisListResponse struct {
	Data  []analysisResponse `json:"data"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

type tweetFields struct {
	Keyword         string  `json:"keyword"`
	RetweetCount    int     `json:"retweet_count"`
	ReplyCount      int     `json:"reply_count"`
	PopularityScore float64 `json:"popularity_score"`
}

type videoFields struct {
	Title       string    `json:"title"`
	ChannelName string    `json:"channel_name"`
	VideoDate   time.Time `json:"video_date"`
}

// predictionResponse は予測のレスポンス。
type predictionResponse struct {
	ID        string          `json:"id"`
	HistoryID string          `json:"history_id"`
	Content   string          `json:"content"`
	Author    string          `json:"author"`
	PostedAt  time.Time       `json:"posted_at"`
	LikeCount int             `json:"like_count"`
	Sentiment model.Sentiment `json:"sentiment"`
	Topic     string          `json:"topic"`
	*tweetFields
	*videoFields
	CreatedAt time.Time `json:"created_at"`
}

func toAnalysisResponse(a *model.Analysis) analysisResponse {
	resp := analysisResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Source:    a.Source,
		Status:    a.Status,
		Topic:     a.Topic,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Twitter != nil {
		resp.twitterFields = &twitterFields{
			Keyword:   a.Twitter.Keyword,
			SinceDate: a.Twitter.SinceDate.UTC().Format(dateLayout),
			UntilDate: a.Twitter.UntilDate.UTC().Format(dateLayout),
		}
	}
	if a.YouTube != nil {
		resp.youtubeFields = &youtubeFields{
			VideoID:     a.YouTube.VideoID,
			Title:       a.YouTube.Title,
			ChannelName: a.YouTube.ChannelName,
			VideoDate:   a.YouTube.VideoDate,
		}
	}
	return resp
}

func toPredictionResponse(p *model.Prediction) predictionResponse {
	resp := predictionResponse{
		ID:        p.ID,
		HistoryID: p.HistoryID,
		Content:   p.Content,
		Author:    p.Author,
		PostedAt:  p.PostedAt,
		LikeCount: p.LikeCount,
		Sentiment: p.Sentiment,
		Topic:     p.Topic,
		CreatedAt: p.CreatedAt,
	}
	if p.Tweet != nil {
		resp.tweetFields = &tweetFields{
			Keyword:         p.Tweet.Keyword,
			RetweetCount:    p.Tweet.RetweetCount,
			ReplyCount:      p.Tweet.ReplyCount,
			PopularityScore: p.Tweet.PopularityScore,
		}
	}
	if p.Video != nil {
		resp.videoFields = &videoFields{
			Title:       p.Video.Title,
			ChannelName: p.Video.ChannelName,
			VideoDate:   p.Video.VideoDate,
		}
	}
	return resp
}

func toAnalysisListResponse(page *analysis.AnalysisPage) analysisListResponse {
	data := make([]analysisResponse, 0, len(page.Data))
	for _, a := range page.Data {
		data = append(data, toAnalysisResponse(a))
	}
	return analysisListResponse{Data: data, Total: page.Total, Page: page.Page, Limit: page.Limit}
}

// --- ハンドラー ---

// CreateAnalysis は分析を作成する。
// POST /api/{source}/analysis
func (h *AnalysisHandler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createAnalysisRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	a, err := h.service.CreateAnalysis(r.Context(), userID, analysis.CreateAnalysisParams{
		Topic:     req.Topic,
		Keyword:   req.Keyword,
		SinceDate: req.SinceDate,
		UntilDate: req.UntilDate,
		VideoID:   req.VideoID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAnalysisResponse(a))
}

// ListAnalyses は全ユーザーの分析を新しい順に返す。
// GET /api/{source}/analysis
func (h *AnalysisHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	page, apiErr := parsePage(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ListAnalyses(r.Context(), page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisListResponse(result))
}

// ListMyAnalyses は呼び出し元の分析を新しい順に返す。
// GET /api/{source}/analysis/my
func (h *AnalysisHandler) ListMyAnalyses(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	page, apiErr := parsePage(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ListUserAnalyses(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisListResponse(result))
}

// GetAnalysis は分析を1件返す。
// GET /api/{source}/analysis/{id}
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAnalysis(r.Context(), chi.URLParam(r, "id"), requesterID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisResponse(a))
}

// ListPredictions は分析に紐づく予測を返す。
// GET /api/{source}/analysis/{id}/data
func (h *AnalysisHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	predictions, err := h.service.ListPredictions(r.Context(), chi.URLParam(r, "id"), requesterID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]predictionResponse, 0, len(predictions))
	for _, p := range predictions {
		resp = append(resp, toPredictionResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CountSentiments は感情別件数を返す。
// GET /api/{source}/analysis/{id}/count
func (h *AnalysisHandler) CountSentiments(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountSentiments(r.Context(), chi.URLParam(r, "id"), requesterID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

// Summarize は日次の感情別件数を返す。
// GET /api/{source}/analysis/{id}/summary
func (h *AnalysisHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize(r.Context(), chi.URLParam(r, "id"), requesterID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListTopics は予測に含まれるトピックの一覧を返す。
// GET /api/{source}/topics
func (h *AnalysisHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.service.ListTopics(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// CreatePrediction は予測エンジンの判定結果を登録する。
// POST /api/{source}/predictions
func (h *AnalysisHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req createPredictionRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	p, err := h.service.CreatePrediction(r.Context(), analysis.CreatePredictionParams{
		HistoryID:       req.HistoryID,
		Content:         req.Content,
		Author:          req.Author,
		PostedAt:        req.PostedAt,
		LikeCount:       req.LikeCount,
		Sentiment:       model.Sentiment(req.Sentiment),
		Topic:           req.Topic,
		Keyword:         req.Keyword,
		RetweetCount:    req.RetweetCount,
		ReplyCount:      req.ReplyCount,
		PopularityScore: req.PopularityScore,
		Title:           req.Title,
		ChannelName:     req.ChannelName,
		VideoDate:       req.VideoDate,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPredictionResponse(p))
}

// requesterID は認証済みの場合に呼び出し元のユーザーIDを返す。
// 公開エンドポイントでは空文字列となり、所有者の確認は行われない。
func requesterID(r *http.Request) string {
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}
