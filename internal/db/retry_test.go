package db

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry, "ping", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	authErr := &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}
	err := retry(context.Background(), fastRetry, "ping", func(context.Context) error {
		calls++
		return authErr
	})

	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry, "ping", func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, RetryConfig{Attempts: 5, InitialBackoff: time.Hour}, "ping", func(context.Context) error {
		calls++
		return syscall.ECONNRESET
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", fmt.Errorf("connect: %w", syscall.ECONNREFUSED), true},
		{"starting up", &pgconn.PgError{Code: "57P03"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"bad password", &pgconn.PgError{Code: "28P01"}, false},
		{"dns", errors.New("lookup postgis: no such host"), true},
		{"syntax", errors.New("syntax error at or near"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}

func TestBackoff_Bounded(t *testing.T) {
	cfg := RetryConfig{Attempts: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	assert.GreaterOrEqual(t, backoff(0, cfg), 75*time.Millisecond)
}

func TestRetryConfig_Defaults(t *testing.T) {
	c := RetryConfig{}.withDefaults()
	assert.Equal(t, DefaultRetry(), c)

	c = RetryConfig{Attempts: 1, InitialBackoff: time.Minute}.withDefaults()
	assert.Equal(t, 1, c.Attempts)
	assert.Equal(t, time.Minute, c.MaxBackoff)
}
