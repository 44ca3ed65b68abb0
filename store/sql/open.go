package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// OpenPostgres opens a bun db over lib/pq.
func OpenPostgres(dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// OpenSQLite opens a bun db over go-sqlite3. Foreign keys are enabled when the
// dsn does not say otherwise.
func OpenSQLite(dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "_foreign_keys=on"
	}
	sqlDB, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// Open picks the dialect for driver.
func Open(driver string, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "pg", "postgresql":
		return OpenPostgres(dsn)
	case DriverSQLite, "sqlite":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isContention(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// writeError maps a revision write failure. A duplicate (id, rev) means a
// concurrent writer claimed the revision first.
func writeError(err error, id fmt.Stringer, expected int, actual int) error {
	if isUniqueViolation(err) || isContention(err) {
		return core.ConflictingUpdateError(id, expected, actual)
	}
	return core.IOError(err, "sqlstore: write revision")
}

func commitError(err error) error {
	if isUniqueViolation(err) || isContention(err) {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "sqlstore: commit lost to a concurrent transaction").
			WithCode(http.StatusConflict).
			WithTextCode(core.ErrorConflictingUpdate)
	}
	return core.IOError(err, "sqlstore: commit")
}
