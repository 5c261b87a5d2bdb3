package ratelimit

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/samber/lo"
	"github.com/sethvargo/go-retry"

	"github.com/xeptore/zotify/config"
)

// Policy bounds how often a failed upstream operation is attempted.
type Policy struct {
	MaxAttempts   uint64
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

func PolicyFromConfig(conf config.RateLimit) Policy {
	return Policy{
		MaxAttempts:   conf.RetryAttempts,
		BaseDelay:     conf.RetryBaseDelay.Duration,
		MaxDelay:      conf.RetryMaxDelay.Duration,
		JitterPercent: conf.RetryJitterPercent,
	}
}

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(lo.Ternary(p.BaseDelay > 0, p.BaseDelay, time.Millisecond))
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}

	return retry.WithMaxRetries(lo.Ternary(p.MaxAttempts > 0, p.MaxAttempts-1, 0), b)
}

type temporary interface {
	Temporary() bool
}

type throttled interface {
	ThrottledFor() time.Duration
}

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	if _, ok := throttledFor(err); ok {
		return true
	}

	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}

	return false
}

func throttledFor(err error) (time.Duration, bool) {
	var t throttled
	if errors.As(err, &t) {
		return t.ThrottledFor(), true
	}

	return 0, false
}

// Do runs fn under the governor, retrying temporary failures according to p.
// Throttling errors pause every caller sharing g, not just this one.
func (g *Governor) Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempt := 0

	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++

		if err := g.Wait(ctx); nil != err {
			return err
		}

		err := fn(ctx)
		if nil == err {
			g.Succeeded()
			return nil
		}

		if d, ok := throttledFor(err); ok {
			g.Throttled(d)
			return retry.RetryableError(err)
		}

		if IsTemporary(err) {
			g.logger.Debug().Err(err).Int("attempt", attempt).Msg("Retrying temporary upstream failure")
			return retry.RetryableError(err)
		}

		return err
	})
}
