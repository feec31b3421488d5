package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caresignal/adherence/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyIngestDevice   = "events:ingest:device:%s"
	keyIngestEndpoint = "events:ingest:endpoint"
)

// LimitError signals that a bucket denied the request, with an estimate of
// how long the caller should back off.
type LimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// IngestLimiter throttles the batch ingest endpoint with two buckets: one per
// submitting device and one for the endpoint as a whole. A nil limiter allows
// everything.
type IngestLimiter struct {
	bucket *TokenBucket

	deviceRate    float64
	deviceBurst   int
	endpointRate  float64
	endpointBurst int
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestDeviceRate <= 0 || limitCfg.IngestDeviceBurst <= 0 {
		return nil, errors.New("ingest device rate limit must be positive")
	}
	if limitCfg.IngestEndpointRate <= 0 || limitCfg.IngestEndpointBurst <= 0 {
		return nil, errors.New("ingest endpoint rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		bucket:        NewTokenBucket(client),
		deviceRate:    limitCfg.IngestDeviceRate,
		deviceBurst:   limitCfg.IngestDeviceBurst,
		endpointRate:  limitCfg.IngestEndpointRate,
		endpointBurst: limitCfg.IngestEndpointBurst,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil
}

// AllowEndpoint checks the endpoint-wide bucket. It returns a *LimitError
// when the bucket is exhausted and a transport error when Redis is
// unreachable; callers decide whether transport errors fail open.
func (l *IngestLimiter) AllowEndpoint(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.allow(ctx, keyIngestEndpoint, "endpoint", l.endpointRate, l.endpointBurst)
}

// AllowDevice checks the per-device bucket.
func (l *IngestLimiter) AllowDevice(ctx context.Context, deviceID string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyIngestDevice, strings.TrimSpace(deviceID))
	return l.allow(ctx, key, "device "+strings.TrimSpace(deviceID), l.deviceRate, l.deviceBurst)
}

func (l *IngestLimiter) allow(ctx context.Context, key, scope string, rate float64, burst int) error {
	res, err := l.bucket.Allow(ctx, key, rate, burst)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &LimitError{Scope: scope, RetryAfter: res.RetryAfter}
	}
	return nil
}
