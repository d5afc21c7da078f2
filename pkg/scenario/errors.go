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

package scenario

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScenario indicates a scenario is missing a required collaborator.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrSetup is matched by every *SetupError.
	ErrSetup = errors.New("scenario setup failed")
	// ErrConsistencyWait is matched by every *WaitError.
	ErrConsistencyWait = errors.New("consistency wait failed")
	// ErrAssertion is matched by every *AssertionMismatch and by any error
	// returned from a scenario assertion.
	ErrAssertion = errors.New("assertion failed")
	// ErrPanic is recorded for a scenario whose collaborator panicked.
	ErrPanic = errors.New("scenario panicked")
)

// Setup phases.
const (
	// PhaseResolve is used by callers failing to build a scenario.
	PhaseResolve = "resolve"
	PhaseApply   = "apply"
	PhaseRefresh = "refresh"
)

// Wait phases.
const (
	PhaseConverge = "converge"
	PhaseSettle   = "settle"
)

// SetupError reports a failure before any polling took place.
type SetupError struct {
	Scenario string
	Phase    string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", ErrSetup, e.Scenario, e.Phase, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrSetup }

// WaitError reports that the observed state never converged. Err is usually a
// *poll.TimeoutError.
type WaitError struct {
	Scenario string
	Phase    string
	Err      error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", ErrConsistencyWait, e.Scenario, e.Phase, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

func (e *WaitError) Is(target error) bool { return target == ErrConsistencyWait }

// AssertionMismatch is an expected-versus-actual failure.
type AssertionMismatch struct {
	Subject  string
	Expected any
	Actual   any
	Message  string
}

func (e *AssertionMismatch) Error() string {
	msg := fmt.Sprintf("%s: %s: expected %v, got %v", ErrAssertion, e.Subject, e.Expected, e.Actual)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *AssertionMismatch) Is(target error) bool { return target == ErrAssertion }
