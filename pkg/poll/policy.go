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
	"fmt"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Default timings observed to be enough for a provider refresh to reach the
// entity details page.
const (
	DefaultTimeout = 600 * time.Second
	DefaultDelay   = 45 * time.Second
)

// Nudge is invoked between two evaluations of a Condition, e.g. to reload a
// page or re-trigger a refresh. It is the only place where polling may have
// side effects.
type Nudge func(ctx context.Context) error

// Policy configures the retry cadence of a poll.
type Policy struct {
	// Timeout is the maximum wall-clock duration of the poll.
	Timeout time.Duration

	// Delay is the interval between two evaluations.
	Delay time.Duration

	// Factor multiplies Delay after every attempt. 0 or 1 keeps the delay fixed.
	Factor float64

	// MaxDelay caps the delay when Factor > 1. 0 means no cap.
	MaxDelay time.Duration

	// Nudge is optional.
	Nudge Nudge
}

// DefaultPolicy returns the fixed 600s/45s policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout: DefaultTimeout,
		Delay:   DefaultDelay,
	}
}

// WithNudge returns a copy of the policy using the given nudge.
func (p Policy) WithNudge(n Nudge) Policy {
	p.Nudge = n
	return p
}

// Validate checks the policy and returns a *ConfigurationError on the first
// invalid field.
func (p Policy) Validate() error {
	if p.Delay <= 0 {
		return &ConfigurationError{
			Field:   "delay",
			Message: fmt.Sprintf("must be greater than 0, got %s", p.Delay),
		}
	}
	if p.Timeout < p.Delay {
		return &ConfigurationError{
			Field:   "timeout",
			Message: fmt.Sprintf("must be greater than or equal to delay (%s), got %s", p.Delay, p.Timeout),
		}
	}
	if p.Factor != 0 && p.Factor < 1 {
		return &ConfigurationError{
			Field:   "factor",
			Message: fmt.Sprintf("must be 0 or at least 1, got %g", p.Factor),
		}
	}
	if p.MaxDelay != 0 && p.MaxDelay < p.Delay {
		return &ConfigurationError{
			Field:   "maxDelay",
			Message: fmt.Sprintf("must be 0 or at least delay (%s), got %s", p.Delay, p.MaxDelay),
		}
	}
	return nil
}

// backoff builds the delay sequence for one poll.
func (p Policy) backoff() *wait.Backoff {
	b := &wait.Backoff{
		Duration: p.Delay,
		Steps:    math.MaxInt32,
	}
	if p.Factor > 1 {
		b.Factor = p.Factor
		b.Cap = p.MaxDelay
	}
	return b
}

// MaxAttempts returns the upper bound on evaluations for a fixed-delay policy.
func (p Policy) MaxAttempts() int {
	if p.Delay <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.Timeout)/float64(p.Delay))) + 1
}
