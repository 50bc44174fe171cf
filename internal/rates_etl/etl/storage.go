package etl

import (
	"context"
	"iter"

	"github.com/langowen/fxledger/internal/entities"
)

// Storage persists ledger rows with an upsert keyed by
// (date, base currency, target currency).
type Storage interface {
	EnsureTable(ctx context.Context, table string) error
	UpsertRows(ctx context.Context, table string, rows iter.Seq[entities.Row]) (int64, error)
}
