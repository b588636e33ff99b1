package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/hitoshi/sentilens/internal/model"
)

// CreateAnalysisParams は分析作成の入力。
// ソースに関係しない項目は無視される。日付は文字列のまま受け取り、ソースが解釈する。
type CreateAnalysisParams struct {
	Topic string

	// Twitter
	Keyword   string
	SinceDate string
	UntilDate string

	// YouTube
	VideoID string
}

// CreatePredictionParams は予測登録の入力。
type CreatePredictionParams struct {
	HistoryID string
	Content   string
	Author    string
	PostedAt  string
	LikeCount int
	Sentiment model.Sentiment
	Topic     string

	// Twitter
	Keyword         string
	RetweetCount    int
	ReplyCount      int
	PopularityScore float64

	// YouTube
	Title       string
	ChannelName string
	VideoDate   string
}

// Source はソースごとに異なる振る舞いをまとめたアダプタ。
// 並び順や集計キーの違いはrepository.SourceSchema側が持つ。
type Source interface {
	Kind() model.Source
	// BuildAnalysis はソース固有の検索条件を分析に設定する。
	BuildAnalysis(a *model.Analysis, params CreateAnalysisParams, now time.Time) error
	// BuildPrediction はソース固有の項目を予測に設定する。
	BuildPrediction(p *model.Prediction, params CreatePredictionParams) error
	// SupportsDetails は動画詳細の更新に対応するかを返す。
	SupportsDetails() bool
}

// TwitterSource はTwitterキーワード分析のアダプタ。
type TwitterSource struct{}

func (TwitterSource) Kind() model.Source { return model.SourceTwitter }

func (TwitterSource) SupportsDetails() bool { return false }

// BuildAnalysis はキーワードと期間を設定する。期間は日付単位に丸める。
func (TwitterSource) BuildAnalysis(a *model.Analysis, params CreateAnalysisParams, _ time.Time) error {
	keyword := strings.TrimSpace(params.Keyword)
	if keyword == "" {
		return model.NewInvalidRequestError("keyword は必須です")
	}
	since, err := parseDate("since_date", params.SinceDate)
	if err != nil {
		return err
	}
	until, err := parseDate("until_date", params.UntilDate)
	if err != nil {
		return err
	}
	since, until = truncateDay(since), truncateDay(until)
	if since.After(until) {
		return model.NewInvalidRequestError("since_date は until_date 以前の日付を指定してください")
	}

	a.Twitter = &model.TwitterQuery{Keyword: keyword, SinceDate: since, UntilDate: until}
	return nil
}

// BuildPrediction はツイート固有の項目を設定する。
func (TwitterSource) BuildPrediction(p *model.Prediction, params CreatePredictionParams) error {
	if params.RetweetCount < 0 || params.ReplyCount < 0 {
		return model.NewInvalidRequestError("retweet_count と reply_count は0以上を指定してください")
	}
	p.Tweet = &model.TweetMetrics{
		Keyword:         strings.TrimSpace(params.Keyword),
		RetweetCount:    params.RetweetCount,
		ReplyCount:      params.ReplyCount,
		PopularityScore: params.PopularityScore,
	}
	return nil
}

// YouTubeSource はYouTube動画コメント分析のアダプタ。
type YouTubeSource struct{}

func (YouTubeSource) Kind() model.Source { return model.SourceYouTube }

func (YouTubeSource) SupportsDetails() bool { return true }

// BuildAnalysis は動画IDを設定する。タイトルとチャンネル名は空、動画日時は作成日時で初期化する。
func (YouTubeSource) BuildAnalysis(a *model.Analysis, params CreateAnalysisParams, now time.Time) error {
	videoID := strings.TrimSpace(params.VideoID)
	if videoID == "" {
		return model.NewInvalidRequestError("video_id は必須です")
	}
	a.YouTube = &model.YouTubeVideo{VideoID: videoID, VideoDate: now}
	return nil
}

// BuildPrediction は動画情報を設定する。
func (YouTubeSource) BuildPrediction(p *model.Prediction, params CreatePredictionParams) error {
	videoDate, err := parseDate("video_date", params.VideoDate)
	if err != nil {
		return err
	}
	p.Video = &model.VideoInfo{
		Title:       strings.TrimSpace(params.Title),
		ChannelName: strings.TrimSpace(params.ChannelName),
		VideoDate:   videoDate,
	}
	return nil
}

// parseDate は日付文字列をUTCとして解釈する。
// ISO 8601以外の一般的な表記も受け付ける。
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, model.NewInvalidRequestError(fmt.Sprintf("%s は必須です", field))
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, model.NewInvalidRequestError(fmt.Sprintf("%s の日付形式が不正です: %s", field, value))
	}
	return t.UTC(), nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	_ Source = TwitterSource{}
	_ Source = YouTubeSource{}
)
