package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/pkg/errors"
)

// Storage reads the rates table written by the ETL.
type Storage struct {
	db    *pgxpool.Pool
	table pgx.Identifier
}

func NewStorage(pool *pgxpool.Pool, schema, table string) *Storage {
	if schema == "" {
		schema = "public"
	}
	return &Storage{
		db:    pool,
		table: pgx.Identifier{schema, table},
	}
}

func InitStorage(ctx context.Context, dsn, schema, table string, timeout time.Duration) (*Storage, error) {
	const op = "storage.postgres.InitStorage"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 10 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(pool, schema, table), nil
}

func (s *Storage) Close() {
	s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// LatestDate returns the most recent day stored for base.
func (s *Storage) LatestDate(ctx context.Context, base string) (date.Date, error) {
	const op = "storage.postgres.LatestDate"

	var latest *time.Time
	if err := s.db.QueryRow(ctx, latestDateSQL(s.table), base).Scan(&latest); err != nil {
		return date.Date{}, errors.Wrap(err, op)
	}
	if latest == nil {
		return date.Date{}, errors.Wrapf(entities.ErrNotFound, "%s: no rates for base %s", op, base)
	}

	return date.FromTime(*latest), nil
}

// GetDayRates returns every rate of base on day.
func (s *Storage) GetDayRates(ctx context.Context, base string, day date.Date) (entities.DayRates, error) {
	const op = "storage.postgres.GetDayRates"

	rows, err := s.db.Query(ctx, dayRatesSQL(s.table), base, day.Time())
	if err != nil {
		return entities.DayRates{}, errors.Wrap(err, op)
	}
	defer rows.Close()

	out := entities.DayRates{
		Base:  base,
		Date:  day,
		Rates: make(map[string]float64),
	}

	for rows.Next() {
		var (
			currency string
			rate     float64
		)
		if err := rows.Scan(&currency, &rate); err != nil {
			return entities.DayRates{}, errors.Wrap(err, op)
		}
		out.Rates[currency] = rate
	}

	if err := rows.Err(); err != nil {
		return entities.DayRates{}, errors.Wrap(err, op)
	}

	if len(out.Rates) == 0 {
		return entities.DayRates{}, errors.Wrapf(entities.ErrNotFound, "%s: no rates for base %s on %s", op, base, day)
	}

	return out, nil
}

func latestDateSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`
		SELECT MAX(date)
		FROM %s
		WHERE from_currency = $1`, table.Sanitize())
}

func dayRatesSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`
		SELECT to_currency, exchange_rate
		FROM %s
		WHERE from_currency = $1 AND date = $2
		ORDER BY to_currency`, table.Sanitize())
}
