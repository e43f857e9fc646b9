package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
)

// ResilientProvider wraps a provider with circuit breaking, concurrency
// limiting and outbound rate limiting. There is deliberately no retry
// layer: a failed tutor turn surfaces to the student instead of silently
// replaying, so the transcript never contains duplicate attempts.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

// ResilientConfig tunes the wrapper.
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxConcurrent bounds in-flight non-streaming calls (default: 4).
	MaxConcurrent int

	// RatePerSecond bounds outbound calls to the upstream API
	// (default: 2). This is separate from the per-client gateway
	// limit; it protects the provider account.
	RatePerSecond int

	Logger *slog.Logger
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxConcurrent:        4,
		RatePerSecond:        2,
	}
}

func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   cfg.Logger,
		name:     provider.Name(),
	}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rp.logger != nil {
					rp.logger.Warn("circuit breaker state change",
						"provider", rp.name,
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 4
		}
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string { return p.name }

func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.rateLimit != nil && !p.rateLimit.Allow(ctx, p.name) {
		return nil, fmt.Errorf("rate limit exceeded for provider %s", p.name)
	}

	operation := func(ctx context.Context) (*Response, error) {
		return p.provider.Generate(ctx, req)
	}
	if p.bulkhead != nil {
		inner := operation
		operation = func(ctx context.Context) (*Response, error) {
			return p.bulkhead.Execute(ctx, inner)
		}
	}
	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, operation)
	}
	return operation(ctx)
}

func (p *ResilientProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	if p.rateLimit != nil && !p.rateLimit.Allow(ctx, p.name) {
		return nil, fmt.Errorf("rate limit exceeded for provider %s", p.name)
	}

	// Streams bypass the bulkhead and breaker: they hold their slot for
	// the lifetime of the response, and a half-delivered stream is not a
	// failure the breaker should count.
	return p.provider.GenerateStream(ctx, req)
}

// Close releases the rate limiter's background resources.
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}
