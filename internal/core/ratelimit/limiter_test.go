package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	l, err := New(cfg, WithClock(mock))
	require.NoError(t, err)
	return l, mock
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero capacity", Config{Capacity: 0, RefillRate: 1, SweepInterval: time.Second}, true},
		{"zero rate", Config{Capacity: 1, RefillRate: 0, SweepInterval: time.Second}, true},
		{"zero sweep", Config{Capacity: 1, RefillRate: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBurstUpToCapacity(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Capacity: 5, RefillRate: 1, SweepInterval: time.Minute})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client"), "request %d", i)
	}
	assert.False(t, l.Allow("client"), "request beyond capacity admitted")
}

func TestRefill(t *testing.T) {
	l, mock := newTestLimiter(t, Config{Capacity: 2, RefillRate: 4, SweepInterval: time.Minute})

	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	mock.Add(250 * time.Millisecond)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	// refill never exceeds capacity
	mock.Add(10 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
}

func TestDenialConsumesNothing(t *testing.T) {
	l, mock := newTestLimiter(t, Config{Capacity: 1, RefillRate: 4, SweepInterval: time.Minute})

	assert.True(t, l.Allow("c"))
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("c"))
	}

	mock.Add(250 * time.Millisecond)
	assert.True(t, l.Allow("c"))
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Capacity: 1, RefillRate: 1, SweepInterval: time.Minute})

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Buckets())
}

func TestConcurrentAllowNeverExceedsCapacity(t *testing.T) {
	const capacity = 20
	l, _ := newTestLimiter(t, Config{Capacity: capacity, RefillRate: 1, SweepInterval: time.Minute})

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Allow("shared") {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// the mock clock is frozen, so nothing refills
	assert.Equal(t, int32(capacity), admitted.Load())
}

func TestExpiryIsClampedToFillTime(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		Capacity:      10,
		RefillRate:    1,
		IdleExpiry:    time.Second,
		SweepInterval: time.Minute,
	})
	assert.Equal(t, 10*time.Second, l.Expiry())
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l, mock := newTestLimiter(t, Config{
		Capacity:      1,
		RefillRate:    1,
		IdleExpiry:    time.Minute,
		SweepInterval: time.Second,
	})

	l.Allow("idle")
	mock.Add(30 * time.Second)
	l.Allow("active")
	mock.Add(45 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Buckets())

	// an evicted identity comes back with a full bucket
	assert.InDelta(t, 1.0, l.Tokens("idle"), 1e-9)
	assert.True(t, l.Allow("idle"))
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	l, mock := newTestLimiter(t, Config{
		Capacity:      1,
		RefillRate:    1,
		IdleExpiry:    time.Second,
		SweepInterval: time.Second,
	})
	l.Allow("c")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mock.Add(time.Second)
		return l.Buckets() == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow("anyone"))
	assert.Equal(t, 0, l.Buckets())
	assert.Equal(t, 0, l.Sweep())
}
