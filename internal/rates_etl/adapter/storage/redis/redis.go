package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/langowen/fxledger/internal/entities"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	UpdatedChannel = "rates_updated"
	latestPrefix   = "rates:latest:"
	// DateField holds the day of the cached rates inside a latest hash.
	DateField = "_date"
)

// LatestKey is the hash holding the most recent rates of one base currency.
func LatestKey(base string) string { return latestPrefix + base }

type Storage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStorage(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{
		rdb: client,
		ttl: ttl,
	}
}

func InitStorage(ctx context.Context, options *redis.Options, ttl time.Duration) (*Storage, error) {
	const op = "storage.redis.InitStorage"

	redisClient := redis.NewClient(options)

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(redisClient, ttl), nil
}

func (s *Storage) Close() error {
	return s.rdb.Close()
}

// PublishUpdated announces a finished load on UpdatedChannel.
func (s *Storage) PublishUpdated(ctx context.Context, event entities.RatesUpdated) error {
	const op = "storage.redis.PublishUpdated"

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, op)
	}

	receivers, err := s.rdb.Publish(ctx, UpdatedChannel, payload).Result()
	if err != nil {
		return errors.Wrap(err, op)
	}

	slog.Debug("update published", "op", op, "receivers", receivers)

	return nil
}

// SaveLatest replaces the latest-rates hash of a base currency.
func (s *Storage) SaveLatest(ctx context.Context, latest entities.DayRates) error {
	const op = "storage.redis.SaveLatest"

	key := LatestKey(latest.Base)

	fields := make(map[string]any, len(latest.Rates)+1)
	fields[DateField] = latest.Date.String()
	for currency, rate := range latest.Rates {
		fields[currency] = strconv.FormatFloat(rate, 'g', -1, 64)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}
