package config

// This file defines the Redis client constructor.  Redis backs the rate
// limiter, the response cache and the stats projection.  When Redis is not
// reachable at startup the constructor returns nil and those features
// degrade to pass-through.

import (
	"context"
	"crypto/tls"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient builds a client from the environment:
//   REDIS_URL               – full redis:// or rediss:// URL (wins over the rest)
//   REDIS_ADDR              – host:port, or REDIS_HOST and REDIS_PORT
//   REDIS_PASSWORD, REDIS_DB
//   REDIS_TLS               – enable TLS
//   REDIS_ENABLED=false     – skip Redis entirely
// It returns nil when Redis is disabled or does not answer a ping.
func NewRedisClient(log zerolog.Logger) *redis.Client {
	if !envBool("REDIS_ENABLED", true) {
		log.Info().Msg("redis disabled")
		return nil
	}
	var opts *redis.Options
	if u := os.Getenv("REDIS_URL"); u != "" {
		o, err := redis.ParseURL(u)
		if err != nil {
			log.Warn().Err(err).Msg("invalid REDIS_URL, redis disabled")
			return nil
		}
		opts = o
	} else {
		addr := getenv("REDIS_ADDR", "localhost:6379")
		if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
			addr = host + ":" + port
		}
		opts = &redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		}
		if envBool("REDIS_TLS", false) {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("redis unreachable, caching and rate limiting disabled")
		_ = client.Close()
		return nil
	}
	return client
}
