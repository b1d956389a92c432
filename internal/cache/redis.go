package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/transfer-analytics/internal/models"
)

type Redis struct {
	cli *redis.Client
}

func NewRedis(addr string, db int) *Redis {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Redis{cli: cli}
}

func (r *Redis) Ping(ctx context.Context) error { return r.cli.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.cli.Close() }

func (r *Redis) GetStats(ctx context.Context, chain string, w models.Window) (*models.TransferStats, bool, error) {
	raw, err := r.cli.Get(ctx, statsKey(chain, w)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stats models.TransferStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		// stale layout, treat as a miss
		return nil, false, nil
	}
	return &stats, true, nil
}

func (r *Redis) SetStats(ctx context.Context, chain string, w models.Window, stats *models.TransferStats, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.cli.Set(ctx, statsKey(chain, w), raw, ttl).Err()
}

func (r *Redis) GetTokenMetadata(ctx context.Context, chain string) (models.TokenMetadata, bool, error) {
	m, err := r.cli.HGetAll(ctx, metadataKey(chain)).Result()
	if err != nil {
		return models.TokenMetadata{}, false, err
	}
	if len(m) == 0 {
		return models.TokenMetadata{}, false, nil
	}
	dec, _ := strconv.ParseInt(m["decimals"], 10, 32)
	return models.TokenMetadata{
		TokenAddress: m["token_address"],
		Name:         m["name"],
		Symbol:       m["symbol"],
		Decimals:     int32(dec),
	}, true, nil
}

func (r *Redis) SetTokenMetadata(ctx context.Context, chain string, md models.TokenMetadata, ttl time.Duration) error {
	key := metadataKey(chain)
	pipe := r.cli.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"token_address", md.TokenAddress,
		"name", md.Name,
		"symbol", md.Symbol,
		"decimals", strconv.FormatInt(int64(md.Decimals), 10),
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
