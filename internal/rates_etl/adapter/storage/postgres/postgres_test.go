package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/stretchr/testify/assert"
)

func TestSQLQuotesIdentifiers(t *testing.T) {
	table := pgx.Identifier{"dev", `rates"; DROP TABLE x; --`}

	for _, query := range []string{createTableSQL(table), createStagingSQL(table), mergeSQL(table)} {
		assert.Contains(t, query, `"dev"."rates""; DROP TABLE x; --"`)
	}
}

func TestMergeSQL(t *testing.T) {
	query := mergeSQL(pgx.Identifier{"public", "exchange_rates"})

	assert.Contains(t, query, `INSERT INTO "public"."exchange_rates"`)
	assert.Contains(t, query, `FROM "exchange_rates_staging"`)
	assert.Contains(t, query, "ON CONFLICT (date, from_currency, to_currency)")
	assert.Contains(t, query, "exchange_rate = EXCLUDED.exchange_rate")
}

func TestCreateTableSQL(t *testing.T) {
	query := createTableSQL(pgx.Identifier{"public", "exchange_rates"})

	assert.Contains(t, query, `CREATE TABLE IF NOT EXISTS "public"."exchange_rates"`)
	assert.Contains(t, query, "PRIMARY KEY (date, from_currency, to_currency)")
}

func TestRowValues(t *testing.T) {
	row := entities.Row{
		Date:           date.MustParse("2023-08-04"),
		BaseCurrency:   "USD",
		TargetCurrency: "EUR",
		ExchangeRate:   0.91,
	}

	assert.Equal(t,
		[]any{time.Date(2023, 8, 4, 0, 0, 0, 0, time.UTC), "USD", "EUR", 0.91},
		rowValues(row))
}

func TestNewStorageDefaultsSchema(t *testing.T) {
	s := NewStorage(nil, "")
	assert.Equal(t, pgx.Identifier{"public", "rates"}, s.ident("rates"))
}
