// Package model はドメインモデルを定義する。
package model

import "time"

// Source は分析対象のソース種別を表す。
type Source string

const (
	// SourceTwitter はTwitterのキーワード検索分析。
	SourceTwitter Source = "twitter"
	// SourceYouTube はYouTube動画のコメント分析。
	SourceYouTube Source = "youtube"
)

// Label はメッセージ表示用のソース名を返す。
func (s Source) Label() string {
	switch s {
	case SourceTwitter:
		return "Twitter"
	case SourceYouTube:
		return "YouTube"
	default:
		return string(s)
	}
}

// AnalysisStatus は分析ジョブの進行状態を表す。
type AnalysisStatus string

const (
	StatusCollecting AnalysisStatus = "collecting"
	StatusProcessing AnalysisStatus = "processing"
	StatusPredicting AnalysisStatus = "predicting"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// statusTransitions は許可されたステータス遷移。
// completed と failed は終端状態で、failed は全ての非終端状態から遷移できる。
var statusTransitions = map[AnalysisStatus][]AnalysisStatus{
	StatusCollecting: {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusPredicting, StatusFailed},
	StatusPredicting: {StatusCompleted, StatusFailed},
	StatusCompleted:  nil,
	StatusFailed:     nil,
}

// Valid はステータスが定義済みの値かを返す。
func (s AnalysisStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal は終端状態かを返す。
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo は現在のステータスから指定ステータスへ遷移できるかを返す。
func (s AnalysisStatus) CanTransitionTo(next AnalysisStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Analysis はユーザーが登録したデータ収集・感情分析ジョブを表す。
// ソースごとの検索条件はTwitterまたはYouTubeのどちらか一方に入る。
type Analysis struct {
	ID        string
	UserID    string
	Source    Source
	Status    AnalysisStatus
	Topic     string
	Twitter   *TwitterQuery
	YouTube   *YouTubeVideo
	CreatedAt time.Time // 取得日時。一覧の新しい順ソートに使う
	UpdatedAt time.Time
}

// TwitterQuery はTwitter分析のキーワードと期間。
type TwitterQuery struct {
	Keyword   string
	SinceDate time.Time
	UntilDate time.Time
}

// YouTubeVideo はYouTube分析の対象動画。
// Title、ChannelNameは詳細取得まで空文字列のまま。
type YouTubeVideo struct {
	VideoID     string
	Title       string
	ChannelName string
	VideoDate   time.Time
}

// VideoDetails はYouTube分析の動画詳細の更新内容。
type VideoDetails struct {
	Title       string
	ChannelName string
	VideoDate   time.Time
}
