package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "rates:latest:USD", LatestKey("USD"))
}

func TestUpdatedPayload(t *testing.T) {
	payload, err := json.Marshal(entities.RatesUpdated{
		Table:   "exchange_rates",
		Bases:   []string{"EUR", "USD"},
		From:    date.MustParse("2023-08-04"),
		Through: date.MustParse("2023-08-07"),
		Rows:    24,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"table": "exchange_rates",
		"bases": ["EUR", "USD"],
		"from": "2023-08-04",
		"through": "2023-08-07",
		"rows": 24
	}`, string(payload))
}

func newTestStorage(t *testing.T, ttl time.Duration) (*Storage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := InitStorage(context.Background(), &redis.Options{Addr: mr.Addr()}, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestSaveLatestReplacesHash(t *testing.T) {
	s, mr := newTestStorage(t, 24*time.Hour)
	key := LatestKey("USD")

	mr.HSet(key, "GBP", "0.78", DateField, "2023-08-04")

	err := s.SaveLatest(context.Background(), entities.DayRates{
		Base:  "USD",
		Date:  date.MustParse("2023-08-07"),
		Rates: map[string]float64{"EUR": 0.5, "USD": 1},
	})
	require.NoError(t, err)

	fields, err := mr.HKeys(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{DateField, "EUR", "USD"}, fields)
	assert.Equal(t, "2023-08-07", mr.HGet(key, DateField))
	assert.Equal(t, "0.5", mr.HGet(key, "EUR"))
	assert.Equal(t, "1", mr.HGet(key, "USD"))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
}

func TestSaveLatestWithoutTTL(t *testing.T) {
	s, mr := newTestStorage(t, 0)

	err := s.SaveLatest(context.Background(), entities.DayRates{
		Base:  "EUR",
		Date:  date.MustParse("2023-08-07"),
		Rates: map[string]float64{"EUR": 1},
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists(LatestKey("EUR")))
	assert.Zero(t, mr.TTL(LatestKey("EUR")))
}

func TestPublishUpdated(t *testing.T) {
	s, mr := newTestStorage(t, time.Hour)
	ctx := context.Background()

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()

	pubsub := subscriber.Subscribe(ctx, UpdatedChannel)
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	event := entities.RatesUpdated{
		Table:   "exchange_rates",
		Bases:   []string{"EUR", "USD"},
		From:    date.MustParse("2023-08-04"),
		Through: date.MustParse("2023-08-07"),
		Rows:    24,
	}
	require.NoError(t, s.PublishUpdated(ctx, event))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got entities.RatesUpdated
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, event, got)
}

func TestInitStorageUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := InitStorage(context.Background(), &redis.Options{Addr: addr}, time.Hour)
	assert.Error(t, err)
}
