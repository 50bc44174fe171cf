package postgres

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/pkg/errors"
)

const stagingTable = "exchange_rates_staging"

var columns = []string{"date", "from_currency", "to_currency", "exchange_rate"}

type Storage struct {
	db     *pgxpool.Pool
	schema string
}

func NewStorage(pool *pgxpool.Pool, schema string) *Storage {
	if schema == "" {
		schema = "public"
	}
	return &Storage{
		db:     pool,
		schema: schema,
	}
}

func InitStorage(ctx context.Context, dsn, schema string, timeout time.Duration) (*Storage, error) {
	const op = "storage.postgres.InitStorage"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 10 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(pool, schema), nil
}

func (s *Storage) Close() {
	s.db.Close()
}

func (s *Storage) ident(table string) pgx.Identifier {
	return pgx.Identifier{s.schema, table}
}

// EnsureTable creates the rates table unless it already exists.
func (s *Storage) EnsureTable(ctx context.Context, table string) error {
	const op = "storage.postgres.EnsureTable"

	if _, err := s.db.Exec(ctx, createTableSQL(s.ident(table))); err != nil {
		return errors.Wrap(err, op)
	}

	slog.Debug("table ensured", "op", op, "table", table)

	return nil
}

// UpsertRows copies rows into a staging table and merges them into table in
// one transaction. Existing (date, from_currency, to_currency) keys get the
// new rate, so running the same load twice leaves the table unchanged.
func (s *Storage) UpsertRows(ctx context.Context, table string, rows iter.Seq[entities.Row]) (int64, error) {
	const op = "storage.postgres.UpsertRows"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, createStagingSQL(s.ident(table))); err != nil {
		return 0, errors.Wrap(err, op)
	}

	next, stop := iter.Pull(rows)
	defer stop()

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, columns, pgx.CopyFromFunc(func() ([]any, error) {
		row, ok := next()
		if !ok {
			return nil, nil
		}
		return rowValues(row), nil
	}))
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	tag, err := tx.Exec(ctx, mergeSQL(s.ident(table)))
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, op)
	}

	slog.Info("rows upserted", "op", op, "table", table, "copied", copied, "affected", tag.RowsAffected())

	return copied, nil
}

func rowValues(row entities.Row) []any {
	return []any{row.Date.Time(), row.BaseCurrency, row.TargetCurrency, row.ExchangeRate}
}

func createTableSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			date DATE NOT NULL,
			from_currency VARCHAR NOT NULL,
			to_currency VARCHAR NOT NULL,
			exchange_rate DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (date, from_currency, to_currency)
		)`, table.Sanitize())
}

func createStagingSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`
		CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP`,
		pgx.Identifier{stagingTable}.Sanitize(), table.Sanitize())
}

func mergeSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`
		INSERT INTO %s (date, from_currency, to_currency, exchange_rate)
		SELECT date, from_currency, to_currency, exchange_rate FROM %s
		ON CONFLICT (date, from_currency, to_currency)
		DO UPDATE SET exchange_rate = EXCLUDED.exchange_rate`,
		table.Sanitize(), pgx.Identifier{stagingTable}.Sanitize())
}
