package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/sentilens/internal/model"
)

// summaryDateLayout は日次サマリの日付キーの書式。
const summaryDateLayout = "2006-01-02"

// PostgresPredictionRepo はPostgreSQLを使用した予測リポジトリ。
// 1インスタンスが1ソース分のテーブルを扱う。
type PostgresPredictionRepo struct {
	db     *sql.DB
	schema SourceSchema
}

// NewPostgresPredictionRepo はPostgresPredictionRepoを生成する。
func NewPostgresPredictionRepo(db *sql.DB, schema SourceSchema) *PostgresPredictionRepo {
	return &PostgresPredictionRepo{db: db, schema: schema}
}

// Create は予測を作成する。
func (r *PostgresPredictionRepo) Create(ctx context.Context, p *model.Prediction) error {
	cols := append(append([]string{}, predictionBaseColumns...), r.schema.predictionColumns...)
	args := []any{
		p.ID, p.HistoryID, p.Content, p.Author, p.PostedAt, p.LikeCount, p.Sentiment, p.Topic, p.CreatedAt,
	}
	args = append(args, r.schema.predictionValues(p)...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.schema.PredictionTable, joinColumns(cols), placeholders(len(cols)))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPQError(err, "failed to insert prediction")
	}
	return nil
}

// ListByHistoryID は分析に紐づく予測をRankColumn降順で取得する。
// 同順位はcreated_at、idの昇順で並べる。
func (r *PostgresPredictionRepo) ListByHistoryID(ctx context.Context, historyID string) ([]*model.Prediction, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE history_id = $1 ORDER BY %s DESC, created_at ASC, id ASC`,
		r.schema.predictionSelectList(), r.schema.PredictionTable, r.schema.RankColumn)
	rows, err := r.db.QueryContext(ctx, query, historyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	predictions := []*model.Prediction{}
	for rows.Next() {
		p := &model.Prediction{Source: r.schema.Source}
		dest := []any{&p.ID, &p.HistoryID, &p.Content, &p.Author, &p.PostedAt, &p.LikeCount, &p.Sentiment, &p.Topic, &p.CreatedAt}
		dest = append(dest, r.schema.predictionTargets(p)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return predictions, nil
}

// CountSentiments は分析に紐づく予測の感情別件数を1クエリで集計する。
// totalは3ラベルの合計と一致する（sentimentはCHECK制約で3値に限定）。
func (r *PostgresPredictionRepo) CountSentiments(ctx context.Context, historyID string) (*model.SentimentCount, error) {
	query := fmt.Sprintf(`SELECT
			count(*),
			count(*) FILTER (WHERE sentiment = $2),
			count(*) FILTER (WHERE sentiment = $3),
			count(*) FILTER (WHERE sentiment = $4)
		FROM %s WHERE history_id = $1`, r.schema.PredictionTable)

	c := &model.SentimentCount{}
	err := r.db.QueryRowContext(ctx, query, historyID,
		model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative,
	).Scan(&c.Total, &c.Positive, &c.Neutral, &c.Negative)
	if err != nil {
		return nil, fmt.Errorf("failed to count sentiments: %w", err)
	}
	return c, nil
}

// DailySummary は投稿日（UTC）ごとの感情別件数を日付昇順で返す。
func (r *PostgresPredictionRepo) DailySummary(ctx context.Context, historyID string) ([]model.DailySentiment, error) {
	query := fmt.Sprintf(`SELECT
			(posted_at AT TIME ZONE 'UTC')::date AS day,
			count(*) FILTER (WHERE sentiment = $2),
			count(*) FILTER (WHERE sentiment = $3),
			count(*) FILTER (WHERE sentiment = $4)
		FROM %s WHERE history_id = $1
		GROUP BY day
		ORDER BY day ASC`, r.schema.PredictionTable)

	rows, err := r.db.QueryContext(ctx, query, historyID,
		model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sentiments: %w", err)
	}
	defer rows.Close()

	summary := []model.DailySentiment{}
	for rows.Next() {
		var day time.Time
		var d model.DailySentiment
		if err := rows.Scan(&day, &d.Positive, &d.Neutral, &d.Negative); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		d.Date = day.UTC().Format(summaryDateLayout)
		summary = append(summary, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily summary: %w", err)
	}
	return summary, nil
}

// ListTopics は予測に含まれるトピックを重複なく昇順で返す。
func (r *PostgresPredictionRepo) ListTopics(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT topic FROM %s ORDER BY topic ASC`, r.schema.PredictionTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

// compile-time interface check
var _ PredictionRepository = (*PostgresPredictionRepo)(nil)
