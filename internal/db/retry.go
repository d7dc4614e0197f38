package db

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RetryConfig controls connection retries with exponential backoff and
// jitter.
type RetryConfig struct {
	// Attempts is the total number of tries. 1 disables retries.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetry rides out a database container that is still starting.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Attempts:       5,
		InitialBackoff: time.Second,
		MaxBackoff:     15 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetry()
	if c.Attempts <= 0 {
		c.Attempts = def.Attempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(def.MaxBackoff, c.InitialBackoff)
	}
	return c
}

// retry runs fn until it succeeds, returns a permanent error, the attempts
// run out, or ctx ends.
func retry(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	log := zap.L().With(zap.String("component", "db.retry"), zap.String("operation", op))

	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !transient(lastErr) || attempt == cfg.Attempts-1 {
			return lastErr
		}

		delay := backoff(attempt, cfg)
		log.Warn("retrying", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff doubles from InitialBackoff up to MaxBackoff with ±25% jitter.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	delay += (rand.Float64()*2 - 1) * delay * 0.25
	return time.Duration(math.Max(delay, 0))
}

// transient reports whether err is worth retrying: refused or reset
// connections, timeouts, and a server that is still starting up.
func transient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// cannot_connect_now, too_many_connections
		return pgErr.Code == "57P03" || pgErr.Code == "53300"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection refused", "connection reset by peer", "no such host", "i/o timeout"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
