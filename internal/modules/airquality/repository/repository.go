package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyolum/home-monitor/internal/migrate"
	"github.com/wyolum/home-monitor/internal/modules/airquality/types"

	"github.com/mattn/go-sqlite3"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/tail-readings.sql
var tailReadingsSQL string

//go:embed sql/get-readings.sql
var getReadingsSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

// AppendResult is the outcome of one Append.
type AppendResult int

const (
	Failed AppendResult = iota
	Inserted
	Duplicate
)

func (r AppendResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

type ReadingRepository interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, r types.Reading) (AppendResult, error)
	Tail(ctx context.Context, limit int) ([]types.Reading, error)
	Range(ctx context.Context, from, to time.Time, limit int) ([]types.Reading, error)
	Count(ctx context.Context) (int, error)
}

type repositoryImpl struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRepository(db *sql.DB, logger *slog.Logger) ReadingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &repositoryImpl{db: db, logger: logger}
}

func (r *repositoryImpl) EnsureSchema(ctx context.Context) error {
	if err := migrate.Run(ctx, r.db, r.logger); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", types.ErrStorage, err)
	}
	return nil
}

// Append inserts one reading. A reading whose timestamp is already stored is
// reported as Duplicate with a nil error and leaves the table unchanged.
func (r *repositoryImpl) Append(ctx context.Context, rd types.Reading) (AppendResult, error) {
	args := make([]any, 0, len(types.Metrics)+1)
	args = append(args, rd.Time.UTC().Format(types.TimeLayout))
	for _, v := range rd.Values() {
		if v == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, *v)
	}

	if _, err := r.db.ExecContext(ctx, insertReadingSQL, args...); err != nil {
		if isUniqueViolation(err) {
			return Duplicate, nil
		}
		return Failed, fmt.Errorf("%w: insert reading: %w", types.ErrStorage, err)
	}
	return Inserted, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Tail returns up to limit of the most recent readings, oldest first.
func (r *repositoryImpl) Tail(ctx context.Context, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		return []types.Reading{}, nil
	}
	rows, err := r.db.QueryContext(ctx, tailReadingsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: tail readings: %w", types.ErrStorage, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("close tail rows", "error", err)
		}
	}()

	out, err := scanReadings(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: tail readings: %w", types.ErrStorage, err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Range returns readings with from <= time <= to, oldest first.
func (r *repositoryImpl) Range(ctx context.Context, from, to time.Time, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		return []types.Reading{}, nil
	}
	fromStr := from.UTC().Format(types.TimeLayout)
	toStr := to.UTC().Format(types.TimeLayout)
	rows, err := r.db.QueryContext(ctx, getReadingsSQL, fromStr, toStr, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: range readings: %w", types.ErrStorage, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("close range rows", "error", err)
		}
	}()

	out, err := scanReadings(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: range readings: %w", types.ErrStorage, err)
	}
	return out, nil
}

func (r *repositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countReadingsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count readings: %w", types.ErrStorage, err)
	}
	return n, nil
}

func scanReadings(rows *sql.Rows) ([]types.Reading, error) {
	out := []types.Reading{}
	for rows.Next() {
		var ts string
		cols := make([]*float64, len(types.Metrics))
		dest := make([]any, 0, len(cols)+1)
		dest = append(dest, &ts)
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t, err := time.Parse(types.TimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse measurement_time %q: %w", ts, err)
		}
		out = append(out, types.FromColumns(t, cols))
	}
	return out, rows.Err()
}
