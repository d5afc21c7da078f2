//go:build unit

// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// autoStep advances the fake clock by step whenever the poller is sleeping.
// Time never moves while a condition is being evaluated.
func autoStep(t *testing.T, fc *testingclock.FakeClock, step time.Duration) {
	t.Helper()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if fc.HasWaiters() {
				fc.Step(step)
				continue
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
}

func newFakePoller(t *testing.T, opts ...Option) (*Poller, *testingclock.FakeClock) {
	t.Helper()
	fc := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	autoStep(t, fc, time.Second)
	return New(append([]Option{WithClock(fc)}, opts...)...), fc
}

// counter is a condition that becomes true on the n-th evaluation.
type counter struct {
	mu        sync.Mutex
	calls     int
	satisfyAt int
}

func (c *counter) condition(_ context.Context) (bool, any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.satisfyAt > 0 && c.calls >= c.satisfyAt, c.calls, nil
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantField string
	}{
		{name: "valid fixed policy", policy: Policy{Timeout: 10 * time.Second, Delay: time.Second}},
		{name: "timeout equal to delay", policy: Policy{Timeout: time.Second, Delay: time.Second}},
		{name: "valid backoff", policy: Policy{Timeout: time.Minute, Delay: time.Second, Factor: 2, MaxDelay: 10 * time.Second}},
		{name: "zero delay", policy: Policy{Timeout: time.Second}, wantField: "delay"},
		{name: "negative delay", policy: Policy{Timeout: time.Second, Delay: -time.Second}, wantField: "delay"},
		{name: "timeout shorter than delay", policy: Policy{Timeout: 5 * time.Second, Delay: 10 * time.Second}, wantField: "timeout"},
		{name: "shrinking factor", policy: Policy{Timeout: time.Minute, Delay: time.Second, Factor: 0.5}, wantField: "factor"},
		{name: "max delay below delay", policy: Policy{Timeout: time.Minute, Delay: 2 * time.Second, MaxDelay: time.Second}, wantField: "maxDelay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestPolicy_MaxAttempts(t *testing.T) {
	assert.Equal(t, 15, Policy{Timeout: 600 * time.Second, Delay: 45 * time.Second}.MaxAttempts())
	assert.Equal(t, 11, Policy{Timeout: 10 * time.Second, Delay: time.Second}.MaxAttempts())
	assert.Equal(t, 0, Policy{Timeout: 10 * time.Second}.MaxAttempts())
}

func TestPoll_InvalidPolicyNeverEvaluates(t *testing.T) {
	c := &counter{satisfyAt: 1}

	_, err := New().Poll(context.Background(), c.condition, Policy{Timeout: 5 * time.Second, Delay: 10 * time.Second})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "timeout", cfgErr.Field)
	assert.Equal(t, 0, c.count())
}

func TestPoll_NilCondition(t *testing.T) {
	_, err := New().Poll(context.Background(), nil, DefaultPolicy())
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestPoll_SatisfiedImmediately(t *testing.T) {
	p, _ := newFakePoller(t)
	nudges := 0
	c := &counter{satisfyAt: 1}

	res, err := p.Poll(context.Background(), c.condition, Policy{
		Timeout: 10 * time.Second,
		Delay:   time.Second,
		Nudge: func(context.Context) error {
			nudges++
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, time.Duration(0), res.Elapsed)
	assert.Equal(t, 1, res.Observed)
	assert.Equal(t, 0, nudges)
}

func TestPoll_SatisfiedAfterRetries(t *testing.T) {
	tests := []struct {
		name      string
		timeout   time.Duration
		delay     time.Duration
		satisfyAt int
	}{
		{name: "third attempt", timeout: 10 * time.Second, delay: time.Second, satisfyAt: 3},
		{name: "last possible attempt", timeout: 10 * time.Second, delay: 2 * time.Second, satisfyAt: 6},
		{name: "original cadence", timeout: 600 * time.Second, delay: 45 * time.Second, satisfyAt: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newFakePoller(t)
			c := &counter{satisfyAt: tt.satisfyAt}
			var nudgeMu sync.Mutex
			nudges := 0

			policy := Policy{
				Timeout: tt.timeout,
				Delay:   tt.delay,
				Nudge: func(context.Context) error {
					nudgeMu.Lock()
					defer nudgeMu.Unlock()
					nudges++
					return nil
				},
			}

			res, err := p.Poll(context.Background(), c.condition, policy)

			require.NoError(t, err)
			assert.Equal(t, tt.satisfyAt, res.Attempts)
			assert.Equal(t, time.Duration(tt.satisfyAt-1)*tt.delay, res.Elapsed)
			assert.LessOrEqual(t, res.Attempts, policy.MaxAttempts())
			assert.Equal(t, tt.satisfyAt-1, nudges)
		})
	}
}

func TestPoll_TimeoutBoundsAttemptsAndElapsed(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		delay        time.Duration
		wantAttempts int
	}{
		{name: "divisible", timeout: 10 * time.Second, delay: 2 * time.Second, wantAttempts: 6},
		{name: "not divisible", timeout: 10 * time.Second, delay: 3 * time.Second, wantAttempts: 5},
		{name: "timeout equals delay", timeout: 4 * time.Second, delay: 4 * time.Second, wantAttempts: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newFakePoller(t)
			c := &counter{}
			policy := Policy{Timeout: tt.timeout, Delay: tt.delay}

			res, err := p.Poll(context.Background(), c.condition, policy)

			var timeoutErr *TimeoutError
			require.ErrorAs(t, err, &timeoutErr)
			assert.ErrorIs(t, err, ErrTimeout)
			assert.Equal(t, tt.wantAttempts, timeoutErr.Attempts)
			assert.Equal(t, policy.MaxAttempts(), timeoutErr.Attempts)
			assert.GreaterOrEqual(t, timeoutErr.Elapsed, tt.timeout)
			assert.Equal(t, tt.wantAttempts, timeoutErr.LastObserved)
			assert.Equal(t, tt.timeout, timeoutErr.Timeout)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantAttempts, c.count())
		})
	}
}

func TestPoll_TimeoutRealClock(t *testing.T) {
	c := &counter{}
	timeout := 50 * time.Millisecond

	start := time.Now()
	_, err := New().Poll(context.Background(), c.condition, Policy{Timeout: timeout, Delay: 10 * time.Millisecond})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), timeout)
	assert.LessOrEqual(t, c.count(), 6)
}

func TestPoll_ConditionErrorIsRetriedAndReported(t *testing.T) {
	p, _ := newFakePoller(t)
	readErr := errors.New("page not loaded")

	_, err := p.Poll(context.Background(), func(context.Context) (bool, any, error) {
		return false, "No My Company Tags have been assigned", readErr
	}, Policy{Timeout: 3 * time.Second, Delay: time.Second})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 4, timeoutErr.Attempts)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, "No My Company Tags have been assigned", timeoutErr.LastObserved)
	assert.Contains(t, err.Error(), "page not loaded")
}

func TestPoll_ErrorOverridesSatisfied(t *testing.T) {
	p, _ := newFakePoller(t)
	calls := 0

	res, err := p.Poll(context.Background(), func(context.Context) (bool, any, error) {
		calls++
		if calls == 1 {
			return true, nil, errors.New("partial read")
		}
		return true, "ok", nil
	}, Policy{Timeout: 3 * time.Second, Delay: time.Second})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "ok", res.Observed)
}

func TestPoll_NudgeErrorDoesNotStopPolling(t *testing.T) {
	p, _ := newFakePoller(t)
	c := &counter{satisfyAt: 3}

	res, err := p.Poll(context.Background(), c.condition, Policy{
		Timeout: 10 * time.Second,
		Delay:   time.Second,
		Nudge:   func(context.Context) error { return errors.New("reload button missing") },
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
}

func TestPoll_ContextCancelledWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &counter{}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := New().Poll(ctx, c.condition, Policy{Timeout: time.Hour, Delay: time.Hour})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, res.Attempts)
}

func TestPoll_BackoffGrowsAndCaps(t *testing.T) {
	var (
		mu       sync.Mutex
		elapsed  []time.Duration
		observer = ObserverFunc(func(a Attempt) {
			mu.Lock()
			defer mu.Unlock()
			elapsed = append(elapsed, a.Elapsed)
		})
	)
	p, _ := newFakePoller(t, WithObserver(observer))
	c := &counter{satisfyAt: 5}

	_, err := p.Poll(context.Background(), c.condition, Policy{
		Timeout:  time.Minute,
		Delay:    time.Second,
		Factor:   2,
		MaxDelay: 4 * time.Second,
	})

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	// delays: 1s, 2s, 4s, 4s
	assert.Equal(t, []time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second, 11 * time.Second}, elapsed)
}

func TestPoll_ObserverSeesEveryAttempt(t *testing.T) {
	var attempts []Attempt
	p, _ := newFakePoller(t, WithObserver(ObserverFunc(func(a Attempt) {
		attempts = append(attempts, a)
	})))
	c := &counter{satisfyAt: 3}

	_, err := p.Poll(context.Background(), c.condition, Policy{Timeout: 10 * time.Second, Delay: time.Second})

	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, 1, attempts[0].Number)
	assert.False(t, attempts[0].Satisfied)
	assert.Equal(t, 3, attempts[2].Number)
	assert.True(t, attempts[2].Satisfied)
}

func TestCheck(t *testing.T) {
	cond := Check(func(context.Context) (bool, error) { return true, nil })

	res, err := Poll(context.Background(), cond, Policy{Timeout: time.Second, Delay: time.Second})

	require.NoError(t, err)
	assert.Equal(t, true, res.Observed)
}
