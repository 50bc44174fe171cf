package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultPrecision int32 = 6
	MaxPrecision     int32 = 12

	SourceCache   = "cache"
	SourceStorage = "storage"
)

type Options struct {
	Day       date.Date
	Precision int32
}

type Option func(o *Options)

// WithDate asks for a given day instead of the latest stored one.
func WithDate(day date.Date) Option {
	return func(o *Options) {
		o.Day = day
	}
}

func WithPrecision(precision int32) Option {
	return func(o *Options) {
		o.Precision = precision
	}
}

// RatesView is every rate of a base on a day, rounded for presentation.
type RatesView struct {
	Base   string                     `json:"base"`
	Date   date.Date                  `json:"date"`
	Source string                     `json:"source"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

type PairView struct {
	Base   string          `json:"base"`
	Target string          `json:"target"`
	Date   date.Date       `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
}

type dayKey struct {
	base string
	day  date.Date
}

type memoEntry struct {
	rates   entities.DayRates
	expires time.Time
}

type Service struct {
	storage Storage
	cache   Cache
	memoTTL time.Duration
	now     func() time.Time

	mu   sync.RWMutex
	days map[dayKey]memoEntry
}

// NewService builds the read service; cache may be nil. Days requested by
// date are memoized for memoTTL; a non-positive memoTTL disables the memo.
func NewService(storage Storage, cache Cache, memoTTL time.Duration) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("service.NewService: storage is nil")
	}
	return &Service{
		storage: storage,
		cache:   cache,
		memoTTL: memoTTL,
		now:     time.Now,
		days:    make(map[dayKey]memoEntry),
	}, nil
}

func newOptions(opts []Option) (Options, error) {
	o := Options{Precision: DefaultPrecision}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Precision < 0 || o.Precision > MaxPrecision {
		return o, fmt.Errorf("%w: precision %d out of range 0..%d", entities.ErrValidation, o.Precision, MaxPrecision)
	}
	return o, nil
}

// FetchRates returns all rates of base on the requested day, or on the
// latest stored day when no date is given.
func (s *Service) FetchRates(ctx context.Context, base string, opts ...Option) (*RatesView, error) {
	const op = "service.FetchRates"

	o, err := newOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, errors.Wrap(entities.ErrInvalidBaseCurrency, op)
	}

	rates, source, err := s.dayRates(ctx, base, o.Day)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	view := &RatesView{
		Base:   rates.Base,
		Date:   rates.Date,
		Source: source,
		Rates:  make(map[string]decimal.Decimal, len(rates.Rates)),
	}
	for currency, rate := range rates.Rates {
		view.Rates[currency] = round(rate, o.Precision)
	}

	return view, nil
}

// FetchPair returns the rate of one base/target pair.
func (s *Service) FetchPair(ctx context.Context, base, target string, opts ...Option) (*PairView, error) {
	const op = "service.FetchPair"

	o, err := newOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	base = strings.ToUpper(strings.TrimSpace(base))
	target = strings.ToUpper(strings.TrimSpace(target))
	if base == "" {
		return nil, errors.Wrap(entities.ErrInvalidBaseCurrency, op)
	}

	rates, _, err := s.dayRates(ctx, base, o.Day)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	rate, ok := rates.Rates[target]
	if !ok {
		return nil, errors.Wrapf(entities.ErrNotFound, "%s: %s/%s on %s", op, base, target, rates.Date)
	}

	return &PairView{
		Base:   base,
		Target: target,
		Date:   rates.Date,
		Rate:   round(rate, o.Precision),
	}, nil
}

func (s *Service) dayRates(ctx context.Context, base string, day date.Date) (entities.DayRates, string, error) {
	if day.IsZero() {
		return s.latestRates(ctx, base)
	}

	key := dayKey{base: base, day: day}

	s.mu.RLock()
	entry, ok := s.days[key]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		return entry.rates, SourceStorage, nil
	}

	rates, err := s.storage.GetDayRates(ctx, base, day)
	if err != nil {
		return entities.DayRates{}, "", err
	}

	if s.memoTTL > 0 {
		s.mu.Lock()
		s.days[key] = memoEntry{rates: rates, expires: s.now().Add(s.memoTTL)}
		s.mu.Unlock()
	}

	return rates, SourceStorage, nil
}

// latestRates is never memoized: the latest stored day is forward-filled
// and gets overwritten by the next ETL run.
func (s *Service) latestRates(ctx context.Context, base string) (entities.DayRates, string, error) {
	if latest, ok := s.cachedLatest(ctx, base); ok {
		return latest, SourceCache, nil
	}

	day, err := s.storage.LatestDate(ctx, base)
	if err != nil {
		return entities.DayRates{}, "", err
	}

	rates, err := s.storage.GetDayRates(ctx, base, day)
	if err != nil {
		return entities.DayRates{}, "", err
	}

	return rates, SourceStorage, nil
}

// cachedLatest reads the redis cache. A miss or a cache failure falls back
// to postgres.
func (s *Service) cachedLatest(ctx context.Context, base string) (entities.DayRates, bool) {
	if s.cache == nil {
		return entities.DayRates{}, false
	}

	latest, err := s.cache.GetLatest(ctx, base)
	if err != nil {
		if !errors.Is(err, entities.ErrNotFound) {
			slog.Warn("latest rates cache unavailable", "base", base, "error", err)
		}
		return entities.DayRates{}, false
	}

	return latest, true
}

// Invalidate drops memoized days of the given bases, or of every base when
// none is given.
func (s *Service) Invalidate(bases ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(bases) == 0 {
		clear(s.days)
		return
	}

	maps.DeleteFunc(s.days, func(k dayKey, _ memoEntry) bool {
		for _, base := range bases {
			if strings.EqualFold(k.base, base) {
				return true
			}
		}
		return false
	})
}

// WatchUpdates invalidates memoized days whenever the ETL announces a load.
// It returns when ctx is done.
func (s *Service) WatchUpdates(ctx context.Context) error {
	const op = "service.WatchUpdates"

	if s.cache == nil {
		<-ctx.Done()
		return nil
	}

	for {
		err := s.cache.ListenUpdates(ctx, func(event entities.RatesUpdated) {
			slog.Info("rates updated", "op", op, "table", event.Table, "bases", event.Bases,
				"through", event.Through, "rows", event.Rows)
			s.Invalidate(event.Bases...)
		})
		if ctx.Err() != nil {
			return nil
		}

		slog.Error("update listener stopped", "op", op, "error", err)

		// Anything may have been missed while disconnected.
		s.Invalidate()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func round(rate float64, precision int32) decimal.Decimal {
	return decimal.NewFromFloat(rate).Round(precision)
}
