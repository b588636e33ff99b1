package repository

import (
	"strconv"
	"strings"

	"github.com/hitoshi/sentilens/internal/model"
)

// SourceSchema はソースごとのテーブル構成を表す。
// 共通カラムはリポジトリ側で扱い、ソース固有のカラムだけをここで定義する。
type SourceSchema struct {
	Source          model.Source
	HistoryTable    string
	PredictionTable string

	// RankColumn は予測一覧の並び順に使うカラム（降順）。
	RankColumn string

	historyColumns []string
	historyValues  func(a *model.Analysis) []any
	historyTargets func(a *model.Analysis) []any

	predictionColumns []string
	predictionValues  func(p *model.Prediction) []any
	predictionTargets func(p *model.Prediction) []any

	// hasVideoDetails は動画詳細（title, channel_name, video_date）を持つかどうか。
	hasVideoDetails bool
}

// TwitterSchema はTwitter分析のテーブル構成を返す。
func TwitterSchema() SourceSchema {
	return SourceSchema{
		Source:          model.SourceTwitter,
		HistoryTable:    "twitter_history",
		PredictionTable: "twitter_predicted",
		RankColumn:      "popularity_score",

		historyColumns: []string{"keyword", "since_date", "until_date"},
		historyValues: func(a *model.Analysis) []any {
			q := twitterQuery(a)
			return []any{q.Keyword, q.SinceDate, q.UntilDate}
		},
		historyTargets: func(a *model.Analysis) []any {
			q := twitterQuery(a)
			return []any{&q.Keyword, &q.SinceDate, &q.UntilDate}
		},

		predictionColumns: []string{"keyword", "retweet_count", "reply_count", "popularity_score"},
		predictionValues: func(p *model.Prediction) []any {
			m := tweetMetrics(p)
			return []any{m.Keyword, m.RetweetCount, m.ReplyCount, m.PopularityScore}
		},
		predictionTargets: func(p *model.Prediction) []any {
			m := tweetMetrics(p)
			return []any{&m.Keyword, &m.RetweetCount, &m.ReplyCount, &m.PopularityScore}
		},
	}
}

// YouTubeSchema はYouTube分析のテーブル構成を返す。
func YouTubeSchema() SourceSchema {
	return SourceSchema{
		Source:          model.SourceYouTube,
		HistoryTable:    "youtube_history",
		PredictionTable: "youtube_predicted",
		RankColumn:      "like_count",

		historyColumns: []string{"video_id", "title", "channel_name", "video_date"},
		historyValues: func(a *model.Analysis) []any {
			v := youtubeVideo(a)
			return []any{v.VideoID, v.Title, v.ChannelName, v.VideoDate}
		},
		historyTargets: func(a *model.Analysis) []any {
			v := youtubeVideo(a)
			return []any{&v.VideoID, &v.Title, &v.ChannelName, &v.VideoDate}
		},

		predictionColumns: []string{"title", "channel_name", "video_date"},
		predictionValues: func(p *model.Prediction) []any {
			v := videoInfo(p)
			return []any{v.Title, v.ChannelName, v.VideoDate}
		},
		predictionTargets: func(p *model.Prediction) []any {
			v := videoInfo(p)
			return []any{&v.Title, &v.ChannelName, &v.VideoDate}
		},

		hasVideoDetails: true,
	}
}

var (
	historyBaseColumns    = []string{"id", "user_id", "status", "topic", "created_at", "updated_at"}
	predictionBaseColumns = []string{"id", "history_id", "content", "author", "posted_at", "like_count", "sentiment", "topic", "created_at"}
)

func (s SourceSchema) historySelectList() string {
	return strings.Join(append(append([]string{}, historyBaseColumns...), s.historyColumns...), ", ")
}

func (s SourceSchema) predictionSelectList() string {
	return strings.Join(append(append([]string{}, predictionBaseColumns...), s.predictionColumns...), ", ")
}

// placeholders は "$1, $2, ..., $n" を返す。
func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString("$")
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

func twitterQuery(a *model.Analysis) *model.TwitterQuery {
	if a.Twitter == nil {
		a.Twitter = &model.TwitterQuery{}
	}
	return a.Twitter
}

func youtubeVideo(a *model.Analysis) *model.YouTubeVideo {
	if a.YouTube == nil {
		a.YouTube = &model.YouTubeVideo{}
	}
	return a.YouTube
}

func tweetMetrics(p *model.Prediction) *model.TweetMetrics {
	if p.Tweet == nil {
		p.Tweet = &model.TweetMetrics{}
	}
	return p.Tweet
}

func videoInfo(p *model.Prediction) *model.VideoInfo {
	if p.Video == nil {
		p.Video = &model.VideoInfo{}
	}
	return p.Video
}
