package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	pgUndefinedTable     = "42P01"
	pgConnectionFailure  = "08006"
	pgQueryCanceled      = "57014"
	pgAdminShutdown      = "57P01"
	pgCannotConnectNow   = "57P03"
	pgConnectionNotExist = "08003"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if code := pgCode(err); code != "" {
		return code == pgUniqueViolation
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsMissingTableErr reports a query against a table that does not exist,
// e.g. a host CMS table when the tracker runs against its own database.
func IsMissingTableErr(err error) bool {
	if err == nil {
		return false
	}
	if code := pgCode(err); code != "" {
		return code == pgUndefinedTable
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "Error 1146")
}

// IsUnavailableErr reports connection-level failures and cancelled statements.
func IsUnavailableErr(err error) bool {
	if err == nil {
		return false
	}
	switch pgCode(err) {
	case pgConnectionFailure, pgConnectionNotExist, pgQueryCanceled, pgAdminShutdown, pgCannotConnectNow:
		return true
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
