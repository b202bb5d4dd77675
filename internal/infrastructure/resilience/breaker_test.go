package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
)

var errFailed = errors.New("failed")

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func call(b *Breaker, err error) error {
	return b.Execute(context.Background(), func(context.Context) error { return err })
}

func tripAfter(n uint32) func(Counts) bool {
	return func(counts Counts) bool { return counts.ConsecutiveFailures >= n }
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		results       []error
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute},
			results:       []error{nil, nil, nil},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			results:       []error{errFailed, errFailed, errFailed},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)},
			results:       []error{errFailed, nil, errFailed},
			expectedState: StateClosed,
		},
		{
			name: "classified errors do not count as failures",
			settings: Settings{
				Interval:     time.Minute,
				Timeout:      time.Minute,
				ReadyToTrip:  tripAfter(2),
				IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errFailed) },
			},
			results:       []error{errFailed, errFailed, errFailed},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			for _, result := range tt.results {
				_ = call(breaker, result)
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, call(breaker, nil))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	assert.ErrorIs(t, call(breaker, errFailed), errFailed)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejectsWithoutCalling(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)})

	_ = call(breaker, errFailed)
	_ = call(breaker, errFailed)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string

	breaker := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: tripAfter(2),
		Now:         clock.Now,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(breaker, errFailed)
	_ = call(breaker, errFailed)
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, call(breaker, nil))
	require.NoError(t, call(breaker, nil))
	assert.Equal(t, StateClosed, breaker.State())

	_ = call(breaker, errFailed)
	_ = call(breaker, errFailed)
	clock.Advance(31 * time.Second)
	_ = call(breaker, errFailed)
	assert.Equal(t, StateOpen, breaker.State(), "a half-open failure reopens")

	assert.Equal(t, []string{
		"closed->open", "open->half-open", "half-open->closed",
		"closed->open", "open->half-open", "half-open->open",
	}, transitions)
}

func TestBreakerHalfOpenLimitsTrials(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := New("test", Settings{
		MaxRequests: 1,
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(1),
		Now:         clock.Now,
	})

	_ = call(breaker, errFailed)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = breaker.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, call(breaker, nil), ErrTooManyRequests)
	close(release)
}

func TestBreakerSkipsDoneContext(t *testing.T) {
	breaker := New("test", Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := breaker.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(0), breaker.Counts().Requests)
}

func TestBreakerRecoversPanics(t *testing.T) {
	breaker := New("test", Settings{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = breaker.Execute(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	breaker := New("test", Settings{ReadyToTrip: tripAfter(2)})

	for i := 0; i < 5; i++ {
		err := call(breaker, fault.New(fault.NoMatchFound, "test", "unknown service"))
		assert.True(t, fault.Is(err, fault.NoMatchFound))
	}
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(5), breaker.Counts().TotalSuccesses)

	_ = call(breaker, fault.New(fault.Communication, "test", "timeout"))
	_ = call(breaker, fault.New(fault.Communication, "test", "timeout"))
	require.Equal(t, StateOpen, breaker.State())

	err := call(breaker, nil)
	assert.True(t, fault.Is(err, fault.Communication))
}
