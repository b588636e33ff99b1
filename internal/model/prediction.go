// Package model はドメインモデルを定義する。
package model

import "time"

// Sentiment は予測結果の感情ラベル。
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// Valid は感情ラベルが定義済みの値かを返す。
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Prediction は外部の予測エンジンが判定した1件のコンテンツと感情ラベル。
// 作成後は変更しない。
type Prediction struct {
	ID        string
	HistoryID string
	Source    Source
	Content   string    // ツイート本文またはコメント本文
	Author    string    // 投稿者のユーザー名またはコメント投稿者
	PostedAt  time.Time // 投稿日時。日次サマリの集計キー
	LikeCount int
	Sentiment Sentiment
	Topic     string
	Tweet     *TweetMetrics
	Video     *VideoInfo
	CreatedAt time.Time
}

// TweetMetrics はTwitter予測に固有の項目。
type TweetMetrics struct {
	Keyword         string
	RetweetCount    int
	ReplyCount      int
	PopularityScore float64
}

// VideoInfo はYouTube予測に固有の項目。
type VideoInfo struct {
	Title       string
	ChannelName string
	VideoDate   time.Time
}

// SentimentCount は分析に紐づく予測の感情別件数。
// Total は Positive + Neutral + Negative と常に一致する。
type SentimentCount struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// DailySentiment は1日分の感情別件数。
type DailySentiment struct {
	Date     string `json:"date"` // YYYY-MM-DD（UTC）
	Positive int    `json:"positive"`
	Neutral  int    `json:"neutral"`
	Negative int    `json:"negative"`
}
