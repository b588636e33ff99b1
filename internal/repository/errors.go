package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     pq.ErrorCode = "23505"
	pqForeignKeyViolation pq.ErrorCode = "23503"
)

// mapPQError はPostgreSQLの制約違反をリポジトリのセンチネルエラーに変換する。
// それ以外のエラーはmsgを付けてラップする。
func mapPQError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", msg, ErrDuplicate, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s)", msg, ErrForeignKey, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
