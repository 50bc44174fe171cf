package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strconv"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	etlRedis "github.com/langowen/fxledger/internal/rates_etl/adapter/storage/redis"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Storage struct {
	rdb *redis.Client
}

func NewStorage(client *redis.Client) *Storage {
	return &Storage{
		rdb: client,
	}
}

func InitStorage(ctx context.Context, options *redis.Options) (*Storage, error) {
	const op = "storage.redis.InitStorage"

	redisClient := redis.NewClient(options)

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(redisClient), nil
}

func (s *Storage) Close() error {
	return s.rdb.Close()
}

// GetLatest reads the latest-rates hash the ETL keeps for base.
func (s *Storage) GetLatest(ctx context.Context, base string) (entities.DayRates, error) {
	const op = "storage.redis.GetLatest"

	fields, err := s.rdb.HGetAll(ctx, etlRedis.LatestKey(base)).Result()
	if err != nil {
		return entities.DayRates{}, errors.Wrap(err, op)
	}
	if len(fields) == 0 {
		return entities.DayRates{}, errors.Wrapf(entities.ErrNotFound, "%s: %s", op, base)
	}

	return parseLatest(base, fields)
}

func parseLatest(base string, fields map[string]string) (entities.DayRates, error) {
	const op = "storage.redis.parseLatest"

	day, err := date.Parse(fields[etlRedis.DateField])
	if err != nil {
		return entities.DayRates{}, errors.Wrap(err, op)
	}

	out := entities.DayRates{
		Base:  base,
		Date:  day,
		Rates: make(map[string]float64, len(fields)-1),
	}
	for currency, raw := range fields {
		if currency == etlRedis.DateField {
			continue
		}
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return entities.DayRates{}, errors.Wrapf(err, "%s: %s", op, currency)
		}
		out.Rates[currency] = rate
	}

	return out, nil
}

// ListenUpdates calls handle for every load the ETL announces until ctx is
// done or the subscription breaks.
func (s *Storage) ListenUpdates(ctx context.Context, handle func(entities.RatesUpdated)) error {
	const op = "storage.redis.ListenUpdates"

	pubsub := s.rdb.Subscribe(ctx, etlRedis.UpdatedChannel)

	// ReceiveMessage only honours deadlines, so cancellation closes the
	// subscription to unblock it.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer func() {
		if stop() {
			_ = pubsub.Close()
		}
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) {
				if netErr.Timeout() {
					return entities.ErrRedisTimeout
				}
				return entities.ErrRedisCanceled
			}
			return errors.Wrap(err, op)
		}

		var event entities.RatesUpdated
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			slog.Warn("malformed update skipped", "op", op, "payload", msg.Payload, "error", err)
			continue
		}

		slog.Debug("Received message", "op", op, "bases", event.Bases)

		handle(event)
	}
}
