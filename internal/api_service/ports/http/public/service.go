package public

import (
	"context"

	"github.com/langowen/fxledger/internal/api_service/service"
)

type Service interface {
	FetchRates(ctx context.Context, base string, opts ...service.Option) (*service.RatesView, error)
	FetchPair(ctx context.Context, base, target string, opts ...service.Option) (*service.PairView, error)
}

// Pinger reports whether the backing storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
