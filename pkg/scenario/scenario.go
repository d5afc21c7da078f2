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

// Package scenario composes a mutation, a refresh, a consistency wait and an
// assertion into one test scenario.
//
// The mutation applied by a scenario is reverted exactly once, after the
// assertion and before the outcome is returned, whatever that outcome is.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/mutation"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Outcome is the attributable result of a scenario run.
type Outcome string

const (
	OutcomeRunning         Outcome = "running"
	OutcomePassed          Outcome = "passed"
	OutcomeConfigError     Outcome = "config_error"
	OutcomeSetupFailed     Outcome = "setup_failed"
	OutcomeWaitFailed      Outcome = "wait_failed"
	OutcomeAssertionFailed Outcome = "assertion_failed"
	OutcomePanicked        Outcome = "panicked"
)

// ConditionFactory returns a fresh condition bound to the current run.
type ConditionFactory func() poll.Condition

// Refresher triggers the asynchronous reconciliation of the system under test.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to a Refresher.
type RefreshFunc func(ctx context.Context) error

// Refresh implements Refresher.
func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Scenario binds a mutation to the condition that proves it became visible.
type Scenario struct {
	Name string

	// Mutator performs the external write. Required.
	Mutator mutation.Mutator

	// Refresher is invoked once the mutation is applied and again before the
	// Settled check. Optional.
	Refresher Refresher

	// Condition is polled until the mutation is observed. Required.
	Condition ConditionFactory

	// Policy governs both the Condition and the Settled waits.
	Policy poll.Policy

	// Assertion runs once the condition is satisfied. Optional.
	Assertion func(ctx context.Context) error

	// Settled, when set, is polled after the revert to check that the
	// observed state went back to what it was. Optional.
	Settled ConditionFactory
}

// Validate checks the scenario without touching any external system.
func (s Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidScenario))
	}
	if s.Mutator == nil {
		errs = append(errs, fmt.Errorf("%w: mutator is required", ErrInvalidScenario))
	}
	if s.Condition == nil {
		errs = append(errs, fmt.Errorf("%w: condition is required", ErrInvalidScenario))
	}
	if err := s.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Result describes one scenario run.
type Result struct {
	Name     string             `json:"name"`
	Outcome  Outcome            `json:"outcome"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Duration time.Duration      `json:"duration"`
	Token    mutation.UndoToken `json:"token"`

	// Wait is the result of the consistency wait, nil if it never ran.
	Wait *poll.Result `json:"wait,omitempty"`
	// Settle is the result of the post-revert wait, nil if it never ran.
	Settle *poll.Result `json:"settle,omitempty"`

	// CleanupError is the revert failure, if any. It never changes Outcome.
	CleanupError error `json:"-"`
	// Err is the error returned by Run.
	Err error `json:"-"`
}

// Passed reports whether the scenario passed.
func (r *Result) Passed() bool {
	return r.Outcome == OutcomePassed
}

// Recorder receives every finished result.
type Recorder interface {
	RecordScenario(r *Result)
}

// Runner executes scenarios.
type Runner struct {
	poller         *poll.Poller
	log            logr.Logger
	clock          clock.PassiveClock
	recorder       Recorder
	cleanupTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithPoller sets the poller used for consistency waits.
func WithPoller(p *poll.Poller) Option {
	return func(r *Runner) { r.poller = p }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithClock sets the clock used to timestamp results.
func WithClock(c clock.PassiveClock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithRecorder registers a recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithCleanupTimeout bounds each revert.
func WithCleanupTimeout(d time.Duration) Option {
	return func(r *Runner) { r.cleanupTimeout = d }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		log:            logr.Discard(),
		clock:          clock.RealClock{},
		cleanupTimeout: mutation.DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.poller == nil {
		r.poller = poll.New(poll.WithLogger(r.log))
	}
	return r
}

// Run executes s: apply, refresh, wait, assert, revert, and optionally wait
// for the revert to be observed.
//
// The returned error matches exactly one of ErrInvalidScenario or
// poll.ErrInvalidPolicy, ErrSetup, ErrConsistencyWait, ErrAssertion. Revert
// failures are logged and stored in Result.CleanupError only.
func (r *Runner) Run(ctx context.Context, s Scenario) (*Result, error) {
	res := &Result{
		Name:    s.Name,
		Outcome: OutcomeRunning,
		Start:   r.clock.Now(),
	}
	log := r.log.WithValues("scenario", s.Name)

	if err := s.Validate(); err != nil {
		return r.finish(res, OutcomeConfigError, err), err
	}

	var guard *mutation.Guard
	// A panicking collaborator still gets its mutation reverted and its
	// result recorded before the panic propagates.
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if guard != nil {
			guard.Release(ctx)
			res.CleanupError = guard.Err()
		}
		err := fmt.Errorf("%w: %v", ErrPanic, p)
		log.Info("scenario panicked", "error", err.Error())
		r.finish(res, OutcomePanicked, err)
		panic(p)
	}()

	log.Info("applying mutation", "mutation", fmt.Sprint(s.Mutator))
	guard, err := mutation.Acquire(ctx, s.Mutator, log, mutation.WithCleanupTimeout(r.cleanupTimeout))
	if err != nil {
		err = &SetupError{Scenario: s.Name, Phase: PhaseApply, Err: err}
		return r.finish(res, OutcomeSetupFailed, err), err
	}
	res.Token = guard.Token()

	outcome, err := r.verify(ctx, log, s, res)

	guard.Release(ctx)
	if cleanupErr := guard.Err(); cleanupErr != nil {
		res.CleanupError = cleanupErr
	}

	if err == nil && s.Settled != nil && res.CleanupError == nil {
		outcome, err = r.settle(ctx, log, s, res)
	}

	if err != nil {
		log.Info("scenario failed", "outcome", outcome, "error", err.Error())
	} else {
		log.Info("scenario passed")
	}
	return r.finish(res, outcome, err), err
}

// Abort records a scenario that could not be built, e.g. because its entity
// does not exist. Nothing is applied.
func (r *Runner) Abort(name string, outcome Outcome, err error) *Result {
	res := &Result{Name: name, Start: r.clock.Now()}
	r.log.Info("scenario aborted", "scenario", name, "outcome", outcome, "error", errString(err))
	return r.finish(res, outcome, err)
}

func (r *Runner) verify(ctx context.Context, log logr.Logger, s Scenario, res *Result) (Outcome, error) {
	if err := r.refresh(ctx, s); err != nil {
		return OutcomeSetupFailed, &SetupError{Scenario: s.Name, Phase: PhaseRefresh, Err: err}
	}

	log.Info("waiting for consistency", "timeout", s.Policy.Timeout, "delay", s.Policy.Delay)
	wait, err := r.poller.Poll(ctx, s.Condition(), s.Policy)
	res.Wait = &wait
	if err != nil {
		return OutcomeWaitFailed, &WaitError{Scenario: s.Name, Phase: PhaseConverge, Err: err}
	}
	log.V(1).Info("consistency observed", "attempts", wait.Attempts, "elapsed", wait.Elapsed)

	if s.Assertion == nil {
		return OutcomePassed, nil
	}
	if err := s.Assertion(ctx); err != nil {
		if !errors.Is(err, ErrAssertion) {
			err = fmt.Errorf("%w: %w", ErrAssertion, err)
		}
		return OutcomeAssertionFailed, err
	}
	return OutcomePassed, nil
}

func (r *Runner) settle(ctx context.Context, log logr.Logger, s Scenario, res *Result) (Outcome, error) {
	if err := r.refresh(ctx, s); err != nil {
		return OutcomeSetupFailed, &SetupError{Scenario: s.Name, Phase: PhaseRefresh, Err: err}
	}

	log.Info("waiting for revert to be observed")
	settle, err := r.poller.Poll(ctx, s.Settled(), s.Policy)
	res.Settle = &settle
	if err != nil {
		return OutcomeWaitFailed, &WaitError{Scenario: s.Name, Phase: PhaseSettle, Err: err}
	}
	return OutcomePassed, nil
}

func (r *Runner) refresh(ctx context.Context, s Scenario) error {
	if s.Refresher == nil {
		return nil
	}
	return s.Refresher.Refresh(ctx)
}

func (r *Runner) finish(res *Result, outcome Outcome, err error) *Result {
	res.Outcome = outcome
	res.Err = err
	res.End = r.clock.Now()
	res.Duration = res.End.Sub(res.Start)
	if r.recorder != nil {
		r.recorder.RecordScenario(res)
	}
	return res
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
