package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/xeptore/zotify/config"
)

const minRateFactor = 0.25

type Limits struct {
	RequestsPerSecond float64
	Burst             int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

func LimitsFromConfig(conf config.RateLimit) Limits {
	return Limits{
		RequestsPerSecond: conf.RequestsPerSecond,
		Burst:             conf.Burst,
		InitialBackoff:    conf.RetryBaseDelay.Duration,
		MaxBackoff:        conf.RetryMaxDelay.Duration,
	}
}

// Governor throttles every upstream request issued by the process. When the
// backend signals throttling, all callers are paused and the request rate is
// reduced until requests start succeeding again.
type Governor struct {
	logger    zerolog.Logger
	limiter   *rate.Limiter
	baseLimit rate.Limit

	mux       sync.Mutex
	backoff   *backoff.ExponentialBackOff
	resumeAt  time.Time
	throttles int
}

func NewGovernor(logger zerolog.Logger, limits Limits) *Governor {
	limit := lo.Ternary(limits.RequestsPerSecond > 0, rate.Limit(limits.RequestsPerSecond), rate.Inf)
	burst := lo.Ternary(limits.Burst > 0, limits.Burst, 1)
	initial := lo.Ternary(limits.InitialBackoff > 0, limits.InitialBackoff, 1*time.Second)
	maxInterval := lo.Ternary(limits.MaxBackoff > initial, limits.MaxBackoff, initial)

	return &Governor{
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
		baseLimit: limit,
		mux:       sync.Mutex{},
		backoff: backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initial),
			backoff.WithMaxInterval(maxInterval),
			backoff.WithMaxElapsedTime(0),
		),
		resumeAt:  time.Time{},
		throttles: 0,
	}
}

// Wait blocks until a new upstream request may be issued.
func (g *Governor) Wait(ctx context.Context) error {
	g.mux.Lock()
	resumeAt := g.resumeAt
	g.mux.Unlock()

	if d := time.Until(resumeAt); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return context.Cause(ctx)
		case <-timer.C:
		}
	}

	return g.limiter.Wait(ctx)
}

// Throttled records a throttling response and returns how long new requests
// are held back. retryAfter is the delay suggested by the backend, if any.
func (g *Governor) Throttled(retryAfter time.Duration) time.Duration {
	g.mux.Lock()
	defer g.mux.Unlock()

	g.throttles++

	d := g.backoff.NextBackOff()
	if d == backoff.Stop {
		d = g.backoff.MaxInterval
	}
	if retryAfter > d {
		d = retryAfter
	}

	if until := time.Now().Add(d); until.After(g.resumeAt) {
		g.resumeAt = until
	}

	if g.baseLimit != rate.Inf {
		g.limiter.SetLimit(g.baseLimit * rate.Limit(rateFactor(g.throttles)))
	}

	g.logger.
		Warn().
		Dur("pause", d).
		Int("consecutive_throttles", g.throttles).
		Float64("rate", float64(g.limiter.Limit())).
		Msg("Upstream throttled requests")

	return d
}

// Succeeded records a successful request. Every success cancels out one
// throttle; the original rate is restored once none are left.
func (g *Governor) Succeeded() {
	g.mux.Lock()
	defer g.mux.Unlock()

	if g.throttles == 0 {
		return
	}

	g.throttles--
	if g.throttles == 0 {
		g.backoff.Reset()
		g.limiter.SetLimit(g.baseLimit)
		g.logger.Debug().Msg("Upstream request rate restored")

		return
	}

	if g.baseLimit != rate.Inf {
		g.limiter.SetLimit(g.baseLimit * rate.Limit(rateFactor(g.throttles)))
	}
}

func (g *Governor) Paused() bool {
	g.mux.Lock()
	defer g.mux.Unlock()

	return time.Now().Before(g.resumeAt)
}

func rateFactor(throttles int) float64 {
	switch {
	case throttles >= 3:
		return minRateFactor
	case throttles == 2:
		return 0.5
	case throttles == 1:
		return 0.75
	default:
		return 1
	}
}
