package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/retry"
)

func TestDelay_DoublesWithCap(t *testing.T) {
	cfg := retry.Config{
		MaxRetries:   6,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
	}

	expected := []time.Duration{
		2 * time.Second,  // retry 1
		4 * time.Second,  // retry 2
		8 * time.Second,  // retry 3
		16 * time.Second, // retry 4
		32 * time.Second, // retry 5
		60 * time.Second, // retry 6: capped (64s > 60s)
		60 * time.Second, // retry 7: stays capped
	}

	for i, want := range expected {
		t.Run(fmt.Sprintf("retry_%d", i+1), func(t *testing.T) {
			assert.Equal(t, want, retry.Delay(cfg, i+1))
		})
	}
}

func TestDelay_CapEqualsSchedule(t *testing.T) {
	// Cap landing exactly on a doubling step must not truncate early.
	cfg := retry.Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     4 * time.Second,
	}

	assert.Equal(t, 1*time.Second, retry.Delay(cfg, 1))
	assert.Equal(t, 2*time.Second, retry.Delay(cfg, 2))
	assert.Equal(t, 4*time.Second, retry.Delay(cfg, 3))
	assert.Equal(t, 4*time.Second, retry.Delay(cfg, 4))
}

func TestDo_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	cfg := retry.Config{MaxRetries: 0, InitialDelay: time.Hour, MaxDelay: time.Hour}

	attempts := 0
	start := time.Now()
	_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("dial tenant admin: %w", shared.ErrConnection)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	// No sleep must have happened; the configured hour-long delay would show.
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	cfg := retry.Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	attempts := 0
	result, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", fmt.Errorf("503 from directory: %w", shared.ErrConnection)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsRetriesAndPropagates(t *testing.T) {
	cfg := retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	attempts := 0
	_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("timeout: %w", shared.ErrConnection)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConnection)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	cfg := retry.Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	for _, tc := range []struct {
		name string
		err  error
	}{
		{"auth", shared.ErrAuth},
		{"permission", shared.ErrPermission},
		{"not_found", shared.ErrNotFound},
		{"plain", errors.New("malformed response")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			_, err := retry.Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
				attempts++
				return 0, tc.err
			})

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(ctx, cfg, func(ctx context.Context) (int, error) {
			attempts++
			return 0, fmt.Errorf("reset: %w", shared.ErrConnection)
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}
