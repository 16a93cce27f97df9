package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/model"
)

// ComputeStats summarises records for userID.  Averages are rounded to two
// decimals and are zero for an empty list.
func ComputeStats(userID string, records []model.AnalysisRecord) model.UserStats {
	st := model.UserStats{UserID: userID, Total: len(records)}
	if len(records) == 0 {
		return st
	}
	n := float64(len(records))
	st.AverageBMI = clinical.Round(lo.SumBy(records, func(r model.AnalysisRecord) float64 { return r.BMI })/n, 2)
	st.AverageEGFR = clinical.Round(lo.SumBy(records, func(r model.AnalysisRecord) float64 { return r.Result.EGFR })/n, 2)
	last := lo.MaxBy(records, func(a, b model.AnalysisRecord) bool { return a.CreatedAt.After(b.CreatedAt) }).CreatedAt
	st.LastAnalysisDate = &last
	return st
}

// StatsCache holds the per-user stats projection.
type StatsCache interface {
	Get(ctx context.Context, userID string) (model.UserStats, bool)
	Put(ctx context.Context, st model.UserStats)
	Invalidate(ctx context.Context, userID string)
}

// RedisStatsCache keeps the projection in Redis as JSON with a TTL.  A nil
// client turns every call into a no-op miss.
type RedisStatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStatsCache{rdb: rdb, ttl: ttl, prefix: "stats", log: log}
}

func (c *RedisStatsCache) key(userID string) string { return c.prefix + ":" + userID }

func (c *RedisStatsCache) Get(ctx context.Context, userID string) (model.UserStats, bool) {
	if c == nil || c.rdb == nil {
		return model.UserStats{}, false
	}
	b, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("user_id", userID).Msg("stats cache get")
		}
		return model.UserStats{}, false
	}
	var st model.UserStats
	if err := json.Unmarshal(b, &st); err != nil {
		return model.UserStats{}, false
	}
	return st, true
}

func (c *RedisStatsCache) Put(ctx context.Context, st model.UserStats) {
	if c == nil || c.rdb == nil {
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.rdb.SetEx(ctx, c.key(st.UserID), b, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", st.UserID).Msg("stats cache put")
	}
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("stats cache invalidate")
	}
}
