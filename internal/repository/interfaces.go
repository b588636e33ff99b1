// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/sentilens/internal/model"
)

var (
	// ErrDuplicate は一意制約違反（23505）を表す。
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrForeignKey は外部キー制約違反（23503）を表す。参照先が存在しない。
	ErrForeignKey = errors.New("repository: foreign key violation")
	// ErrUnsupported はソースが対応していない操作を表す。
	ErrUnsupported = errors.New("repository: operation not supported for source")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー名、メールアドレス、パスワードハッシュ、ロールを更新する。
	// 一意制約違反の場合はErrDuplicateを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有する分析と予測はCASCADE削除される。存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// AnalysisRepository は1ソース分の分析データの永続化インターフェース。
type AnalysisRepository interface {
	// Create は分析を作成する。所有ユーザーが存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, analysis *model.Analysis) error

	// FindByID は指定IDの分析を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Analysis, error)

	// List は分析をcreated_at降順で取得し、条件に一致する総件数とともに返す。
	// userIDが空の場合は全ユーザーが対象。
	List(ctx context.Context, userID string, limit, offset int) ([]*model.Analysis, int, error)

	// UpdateStatus は現在のステータスがfromの場合のみtoに更新する。
	// 更新されなかった場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, from, to model.AnalysisStatus) (bool, error)

	// UpdateDetails は動画の詳細を上書きする。対応しないソースではErrUnsupportedを返す。
	UpdateDetails(ctx context.Context, id string, details model.VideoDetails) (bool, error)
}

// VideoDetailsRepository は動画詳細の取得が必要な分析を検索するインターフェース。
type VideoDetailsRepository interface {
	// ListMissingDetails はタイトル未取得かつ失敗していない分析を取得する。
	// 未確認の分析を先に返し、確認済みの分析はcheckedBeforeより前に確認したものだけを返す。
	ListMissingDetails(ctx context.Context, checkedBefore time.Time, limit int) ([]*model.Analysis, error)

	// MarkDetailsChecked は動画詳細の取得を試みた時刻を記録する。
	MarkDetailsChecked(ctx context.Context, ids []string) error
}

// StaleAnalysisRepository は処理が止まった分析を検索するインターフェース。
type StaleAnalysisRepository interface {
	// ListStale は非終端ステータスのままupdated_atがbeforeより古い分析のIDを古い順に返す。
	ListStale(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// PredictionRepository は1ソース分の予測データの永続化インターフェース。
type PredictionRepository interface {
	// Create は予測を作成する。参照先の分析が存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, prediction *model.Prediction) error

	// ListByHistoryID は分析に紐づく予測をソースごとの順位付けで取得する。
	ListByHistoryID(ctx context.Context, historyID string) ([]*model.Prediction, error)

	// CountSentiments は分析に紐づく予測の感情別件数を1クエリで集計する。
	CountSentiments(ctx context.Context, historyID string) (*model.SentimentCount, error)

	// DailySummary は投稿日（UTC）ごとの感情別件数を日付昇順で返す。
	DailySummary(ctx context.Context, historyID string) ([]model.DailySentiment, error)

	// ListTopics は予測に含まれるトピックを重複なく昇順で返す。
	ListTopics(ctx context.Context) ([]string, error)
}
