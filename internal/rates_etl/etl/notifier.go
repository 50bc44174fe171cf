package etl

import (
	"context"

	"github.com/langowen/fxledger/internal/entities"
)

type Notifier interface {
	SaveLatest(ctx context.Context, latest entities.DayRates) error
	PublishUpdated(ctx context.Context, event entities.RatesUpdated) error
}
