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

// Package poll repeatedly evaluates a condition against a live system until it
// is satisfied or a deadline elapses.
//
// A poll never returns a silent false: it either succeeds or fails with a
// *TimeoutError carrying the last observed state. Invalid policies fail with a
// *ConfigurationError before the condition is evaluated even once.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Condition reports whether the observed state satisfies a predicate. The
// observed value is kept for diagnostics. A Condition must not mutate the
// system it reads; an error counts as "not satisfied yet".
type Condition func(ctx context.Context) (ok bool, observed any, err error)

// Check adapts a plain predicate to a Condition.
func Check(fn func(ctx context.Context) (bool, error)) Condition {
	return func(ctx context.Context) (bool, any, error) {
		ok, err := fn(ctx)
		return ok, ok, err
	}
}

// Attempt describes one evaluation of a Condition.
type Attempt struct {
	Number    int
	Elapsed   time.Duration
	Satisfied bool
	Observed  any
	Err       error
}

// Observer is notified after every evaluation.
type Observer interface {
	ObserveAttempt(a Attempt)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(a Attempt)

// ObserveAttempt implements Observer.
func (f ObserverFunc) ObserveAttempt(a Attempt) { f(a) }

// Result is returned by a successful poll.
type Result struct {
	Attempts int
	Elapsed  time.Duration
	Observed any
}

// Poller evaluates conditions using an injectable clock.
type Poller struct {
	clock     clock.Clock
	log       logr.Logger
	observers []Observer
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock used for sleeping and measuring elapsed time.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// WithObserver registers an observer. It may be given multiple times.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// New creates a Poller. Without options it uses the real clock and discards logs.
func New(opts ...Option) *Poller {
	p := &Poller{
		clock: clock.RealClock{},
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPoller = New()

// Poll evaluates cond with the default poller.
func Poll(ctx context.Context, cond Condition, policy Policy) (Result, error) {
	return defaultPoller.Poll(ctx, cond, policy)
}

// Poll evaluates cond immediately, then after every delay, until it is
// satisfied or the policy timeout has elapsed. The nudge, if any, runs after
// each sleep and before the next evaluation.
func (p *Poller) Poll(ctx context.Context, cond Condition, policy Policy) (Result, error) {
	if cond == nil {
		return Result{}, &ConfigurationError{Field: "condition", Message: "is required"}
	}
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}

	backoff := policy.backoff()
	start := p.clock.Now()

	var (
		lastObserved any
		lastErr      error
	)

	for attempt := 1; ; attempt++ {
		ok, observed, err := cond(ctx)
		elapsed := p.clock.Since(start)
		p.notify(Attempt{
			Number:    attempt,
			Elapsed:   elapsed,
			Satisfied: ok && err == nil,
			Observed:  observed,
			Err:       err,
		})

		if ok && err == nil {
			p.log.V(1).Info("condition satisfied", "attempts", attempt, "elapsed", elapsed)
			return Result{Attempts: attempt, Elapsed: elapsed, Observed: observed}, nil
		}

		lastObserved, lastErr = observed, err
		if elapsed >= policy.Timeout {
			return Result{Attempts: attempt, Elapsed: elapsed, Observed: lastObserved}, &TimeoutError{
				Timeout:      policy.Timeout,
				Elapsed:      elapsed,
				Attempts:     attempt,
				LastObserved: lastObserved,
				LastErr:      lastErr,
			}
		}

		delay := backoff.Step()
		p.log.V(1).Info("condition not satisfied yet",
			"attempt", attempt,
			"elapsed", elapsed,
			"nextDelay", delay,
			"observed", fmt.Sprint(observed),
			"error", errString(err))

		if err := p.sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt, Elapsed: p.clock.Since(start), Observed: lastObserved},
				fmt.Errorf("polling interrupted after %d attempts: %w", attempt, err)
		}

		if policy.Nudge != nil {
			if err := policy.Nudge(ctx); err != nil {
				p.log.Error(err, "nudge failed, continuing", "attempt", attempt)
			}
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	t := p.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func (p *Poller) notify(a Attempt) {
	for _, o := range p.observers {
		o.ObserveAttempt(a)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
