package store

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const internalErrorDetail = "internal error"

// ErrorDetail returns the part of a store error that is safe to show a
// client. Errors reported by the database server about a statement (unknown
// column, constraint violation, bad value) keep their message; transport and
// connection failures collapse to a generic detail.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strings.TrimSpace(myErr.Message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Message)
	}
	return internalErrorDetail
}
