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
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPolicy is matched by every *ConfigurationError.
	ErrInvalidPolicy = errors.New("invalid poll policy")
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("condition not satisfied before timeout")
)

// ConfigurationError reports an invalid Policy. It is returned before the
// condition is evaluated.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidPolicy, e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// TimeoutError is returned when a condition was never satisfied.
type TimeoutError struct {
	Timeout  time.Duration
	Elapsed  time.Duration
	Attempts int

	// LastObserved is the value reported by the last evaluation.
	LastObserved any
	// LastErr is the error of the last evaluation, if it failed.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: %d attempts in %s (timeout %s), last observed: %v",
		ErrTimeout, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Timeout, e.LastObserved)
	if e.LastErr != nil {
		msg += fmt.Sprintf(", last error: %v", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}
