package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetDayRates(ctx context.Context, base string, day date.Date) (entities.DayRates, error) {
	args := m.Called(ctx, base, day)
	return args.Get(0).(entities.DayRates), args.Error(1)
}

func (m *MockStorage) LatestDate(ctx context.Context, base string) (date.Date, error) {
	args := m.Called(ctx, base)
	return args.Get(0).(date.Date), args.Error(1)
}

type MockCache struct {
	mock.Mock
	events []entities.RatesUpdated
}

func (m *MockCache) GetLatest(ctx context.Context, base string) (entities.DayRates, error) {
	args := m.Called(ctx, base)
	return args.Get(0).(entities.DayRates), args.Error(1)
}

func (m *MockCache) ListenUpdates(ctx context.Context, handle func(entities.RatesUpdated)) error {
	for _, event := range m.events {
		handle(event)
	}
	return m.Called(ctx).Error(0)
}

var (
	aug4 = date.MustParse("2023-08-04")
	aug7 = date.MustParse("2023-08-07")
)

func usdRates(day date.Date) entities.DayRates {
	return entities.DayRates{
		Base: "USD",
		Date: day,
		Rates: map[string]float64{
			"EUR": 1 / 1.1,
			"USD": 1,
			"CZK": 24.2 / 1.1,
		},
	}
}

func TestNewServiceRequiresStorage(t *testing.T) {
	_, err := NewService(nil, nil, time.Minute)
	assert.Error(t, err)
}

func TestFetchRatesFromStorage(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil).Once()

	s, err := NewService(storage, nil, time.Minute)
	require.NoError(t, err)

	view, err := s.FetchRates(context.Background(), " usd", WithDate(aug4), WithPrecision(4))
	require.NoError(t, err)

	assert.Equal(t, "USD", view.Base)
	assert.Equal(t, aug4, view.Date)
	assert.Equal(t, SourceStorage, view.Source)
	assert.Equal(t, "0.9091", view.Rates["EUR"].String())
	assert.Equal(t, "22", view.Rates["CZK"].String())
	assert.Equal(t, "1", view.Rates["USD"].String())

	// memoized: the storage expectation is Once
	_, err = s.FetchRates(context.Background(), "USD", WithDate(aug4))
	require.NoError(t, err)

	storage.AssertExpectations(t)
}

func TestFetchRatesDefaultPrecision(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil)

	s, _ := NewService(storage, nil, time.Minute)

	view, err := s.FetchRates(context.Background(), "USD", WithDate(aug4))
	require.NoError(t, err)
	assert.Equal(t, "0.909091", view.Rates["EUR"].String())
}

func TestFetchRatesLatestFromCache(t *testing.T) {
	storage := new(MockStorage)
	cache := new(MockCache)
	cache.On("GetLatest", mock.Anything, "USD").Return(usdRates(aug7), nil).Once()

	s, _ := NewService(storage, cache, time.Minute)

	view, err := s.FetchRates(context.Background(), "USD")
	require.NoError(t, err)

	assert.Equal(t, SourceCache, view.Source)
	assert.Equal(t, aug7, view.Date)
	storage.AssertNotCalled(t, "LatestDate", mock.Anything, mock.Anything)
}

func TestFetchRatesLatestFallsBackToStorage(t *testing.T) {
	storage := new(MockStorage)
	storage.On("LatestDate", mock.Anything, "USD").Return(aug7, nil).Once()
	storage.On("GetDayRates", mock.Anything, "USD", aug7).Return(usdRates(aug7), nil).Once()

	cache := new(MockCache)
	cache.On("GetLatest", mock.Anything, "USD").Return(entities.DayRates{}, errors.New("i/o timeout")).Once()

	s, _ := NewService(storage, cache, time.Minute)

	view, err := s.FetchRates(context.Background(), "USD")
	require.NoError(t, err)

	assert.Equal(t, SourceStorage, view.Source)
	assert.Equal(t, aug7, view.Date)
	storage.AssertExpectations(t)
}

func TestFetchRatesLatestIsReadEveryTime(t *testing.T) {
	forwardFilled := usdRates(aug7)
	published := usdRates(aug7)
	published.Rates["EUR"] = 1 / 1.12

	storage := new(MockStorage)
	storage.On("LatestDate", mock.Anything, "USD").Return(aug7, nil)
	storage.On("GetDayRates", mock.Anything, "USD", aug7).Return(forwardFilled, nil).Once()
	storage.On("GetDayRates", mock.Anything, "USD", aug7).Return(published, nil).Once()

	s, _ := NewService(storage, nil, time.Hour)

	first, err := s.FetchRates(context.Background(), "USD")
	require.NoError(t, err)
	second, err := s.FetchRates(context.Background(), "USD")
	require.NoError(t, err)

	assert.Equal(t, "0.909091", first.Rates["EUR"].String())
	assert.Equal(t, "0.892857", second.Rates["EUR"].String())
	storage.AssertNumberOfCalls(t, "GetDayRates", 2)
}

func TestFetchRatesMemoExpires(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil)

	s, _ := NewService(storage, nil, time.Minute)
	clock := time.Date(2023, time.August, 7, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()

	_, err := s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)
	_, err = s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)
	storage.AssertNumberOfCalls(t, "GetDayRates", 1)

	clock = clock.Add(time.Minute)
	_, err = s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)
	storage.AssertNumberOfCalls(t, "GetDayRates", 2)
}

func TestFetchRatesWithoutMemo(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil)

	s, _ := NewService(storage, nil, 0)

	for range 3 {
		_, err := s.FetchRates(context.Background(), "USD", WithDate(aug4))
		require.NoError(t, err)
	}
	storage.AssertNumberOfCalls(t, "GetDayRates", 3)
}

func TestFetchRatesErrors(t *testing.T) {
	storage := new(MockStorage)
	storage.On("LatestDate", mock.Anything, "XYZ").Return(date.Date{}, entities.ErrNotFound)

	s, _ := NewService(storage, nil, time.Minute)

	_, err := s.FetchRates(context.Background(), "XYZ")
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = s.FetchRates(context.Background(), "  ")
	assert.ErrorIs(t, err, entities.ErrInvalidBaseCurrency)

	_, err = s.FetchRates(context.Background(), "USD", WithPrecision(13))
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = s.FetchRates(context.Background(), "USD", WithPrecision(-1))
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestFetchPair(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil).Once()

	s, _ := NewService(storage, nil, time.Minute)

	pair, err := s.FetchPair(context.Background(), "usd", "eur", WithDate(aug4), WithPrecision(2))
	require.NoError(t, err)
	assert.Equal(t, "USD", pair.Base)
	assert.Equal(t, "EUR", pair.Target)
	assert.Equal(t, "0.91", pair.Rate.String())

	_, err = s.FetchPair(context.Background(), "USD", "GBP", WithDate(aug4))
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestInvalidate(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil).Twice()

	s, _ := NewService(storage, nil, time.Minute)
	ctx := context.Background()

	_, err := s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)

	s.Invalidate("CZK")
	_, err = s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)

	s.Invalidate("usd")
	_, err = s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)

	storage.AssertNumberOfCalls(t, "GetDayRates", 2)
}

func TestWatchUpdatesInvalidates(t *testing.T) {
	storage := new(MockStorage)
	storage.On("GetDayRates", mock.Anything, "USD", aug4).Return(usdRates(aug4), nil)

	ctx, cancel := context.WithCancel(context.Background())

	cache := &MockCache{events: []entities.RatesUpdated{{Table: "exchange_rates", Bases: []string{"USD"}}}}
	cache.On("ListenUpdates", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)

	s, _ := NewService(storage, cache, time.Minute)

	_, err := s.FetchRates(ctx, "USD", WithDate(aug4))
	require.NoError(t, err)

	require.NoError(t, s.WatchUpdates(ctx))

	s.mu.RLock()
	assert.Empty(t, s.days)
	s.mu.RUnlock()
}
