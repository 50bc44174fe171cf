package service

import (
	"context"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
)

type Storage interface {
	GetDayRates(ctx context.Context, base string, day date.Date) (entities.DayRates, error)
	LatestDate(ctx context.Context, base string) (date.Date, error)
}

// Cache is the latest-rates cache the ETL fills after every load.
type Cache interface {
	GetLatest(ctx context.Context, base string) (entities.DayRates, error)
	ListenUpdates(ctx context.Context, handle func(entities.RatesUpdated)) error
}
