package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/sentilens/internal/model"
)

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresAnalysisRepo はPostgreSQLを使用した分析リポジトリ。
// 1インスタンスが1ソース分のテーブルを扱う。
type PostgresAnalysisRepo struct {
	db     *sql.DB
	schema SourceSchema
}

// NewPostgresAnalysisRepo はPostgresAnalysisRepoを生成する。
func NewPostgresAnalysisRepo(db *sql.DB, schema SourceSchema) *PostgresAnalysisRepo {
	return &PostgresAnalysisRepo{db: db, schema: schema}
}

// Create は分析を作成する。
func (r *PostgresAnalysisRepo) Create(ctx context.Context, analysis *model.Analysis) error {
	cols := append(append([]string{}, historyBaseColumns...), r.schema.historyColumns...)
	args := []any{
		analysis.ID, analysis.UserID, analysis.Status, analysis.Topic, analysis.CreatedAt, analysis.UpdatedAt,
	}
	args = append(args, r.schema.historyValues(analysis)...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.schema.HistoryTable, joinColumns(cols), placeholders(len(cols)))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPQError(err, "failed to insert analysis")
	}
	return nil
}

// FindByID は指定IDの分析を取得する。見つからない場合はnilを返す。
func (r *PostgresAnalysisRepo) FindByID(ctx context.Context, id string) (*model.Analysis, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.schema.historySelectList(), r.schema.HistoryTable)

	analysis, err := r.scanAnalysis(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis by ID: %w", err)
	}
	return analysis, nil
}

// List は分析をcreated_at降順で取得する。userIDが空の場合は全ユーザーが対象。
func (r *PostgresAnalysisRepo) List(ctx context.Context, userID string, limit, offset int) ([]*model.Analysis, int, error) {
	where := ""
	var filterArgs []any
	if userID != "" {
		where = " WHERE user_id = $1"
		filterArgs = append(filterArgs, userID)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM %s%s`, r.schema.HistoryTable, where)
	if err := r.db.QueryRowContext(ctx, countQuery, filterArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	n := len(filterArgs)
	listQuery := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		r.schema.historySelectList(), r.schema.HistoryTable, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(filterArgs, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]*model.Analysis, 0, limit)
	for rows.Next() {
		analysis, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return analyses, total, nil
}

// UpdateStatus は現在のステータスがfromの場合のみtoに更新する。
// 同時更新で先に遷移された場合はfalseを返す。
func (r *PostgresAnalysisRepo) UpdateStatus(ctx context.Context, id string, from, to model.AnalysisStatus) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`, r.schema.HistoryTable)
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update analysis status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateDetails は動画の詳細を上書きする。
func (r *PostgresAnalysisRepo) UpdateDetails(ctx context.Context, id string, details model.VideoDetails) (bool, error) {
	if !r.schema.hasVideoDetails {
		return false, ErrUnsupported
	}

	query := fmt.Sprintf(`UPDATE %s SET title = $1, channel_name = $2, video_date = $3, updated_at = now() WHERE id = $4`,
		r.schema.HistoryTable)
	result, err := r.db.ExecContext(ctx, query, details.Title, details.ChannelName, details.VideoDate, id)
	if err != nil {
		return false, fmt.Errorf("failed to update analysis details: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListMissingDetails はタイトル未取得かつ失敗していない分析を取得する。
// 取得を試みたことがない分析を先に、その後は確認日時の古い順に並べる。
func (r *PostgresAnalysisRepo) ListMissingDetails(ctx context.Context, checkedBefore time.Time, limit int) ([]*model.Analysis, error) {
	if !r.schema.hasVideoDetails {
		return nil, ErrUnsupported
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE title = '' AND status <> $1 AND (details_checked_at IS NULL OR details_checked_at < $2)
		ORDER BY details_checked_at ASC NULLS FIRST, created_at ASC LIMIT $3`,
		r.schema.historySelectList(), r.schema.HistoryTable)
	rows, err := r.db.QueryContext(ctx, query, model.StatusFailed, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses missing details: %w", err)
	}
	defer rows.Close()

	var analyses []*model.Analysis
	for rows.Next() {
		analysis, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

// MarkDetailsChecked は動画詳細の取得を試みた時刻を記録する。
// updated_atは変更しない（放置判定に影響させない）。
func (r *PostgresAnalysisRepo) MarkDetailsChecked(ctx context.Context, ids []string) error {
	if !r.schema.hasVideoDetails {
		return ErrUnsupported
	}
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET details_checked_at = now() WHERE id = ANY($1)`, r.schema.HistoryTable)
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark details checked: %w", err)
	}
	return nil
}

// ListStale は非終端ステータスのままupdated_atがbeforeより古い分析のIDを返す。
func (r *PostgresAnalysisRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s
		WHERE status NOT IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC LIMIT $4`, r.schema.HistoryTable)
	rows, err := r.db.QueryContext(ctx, query, model.StatusCompleted, model.StatusFailed, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale analyses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan analysis id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale analyses: %w", err)
	}
	return ids, nil
}

func (r *PostgresAnalysisRepo) scanAnalysis(row rowScanner) (*model.Analysis, error) {
	a := &model.Analysis{Source: r.schema.Source}
	dest := []any{&a.ID, &a.UserID, &a.Status, &a.Topic, &a.CreatedAt, &a.UpdatedAt}
	dest = append(dest, r.schema.historyTargets(a)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return a, nil
}

// compile-time interface check
var (
	_ AnalysisRepository      = (*PostgresAnalysisRepo)(nil)
	_ VideoDetailsRepository  = (*PostgresAnalysisRepo)(nil)
	_ StaleAnalysisRepository = (*PostgresAnalysisRepo)(nil)
)
