package etl

import (
	"context"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
)

// Extractor lists the observations of one currency against the provider's
// pivot from start through today. Transient upstream failures are retried by
// the implementation; a returned error is final.
type Extractor interface {
	ListRates(ctx context.Context, currency string, start date.Date) ([]entities.RateObservation, error)
	Pivot() string
}
