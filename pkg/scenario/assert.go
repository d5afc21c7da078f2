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

	"github.com/stretchr/testify/assert"
)

// Expect returns an *AssertionMismatch if actual differs from expected.
func Expect(subject string, expected, actual any) error {
	if assert.ObjectsAreEqual(expected, actual) {
		return nil
	}
	return &AssertionMismatch{Subject: subject, Expected: expected, Actual: actual}
}

// Soft collects several checks and reports all failures at once.
type Soft struct {
	errs []error
}

// Expect records a mismatch without stopping. It reports whether the check
// passed.
func (s *Soft) Expect(subject string, expected, actual any) bool {
	if err := Expect(subject, expected, actual); err != nil {
		s.errs = append(s.errs, err)
		return false
	}
	return true
}

// True records a failure when cond is false.
func (s *Soft) True(cond bool, format string, args ...any) bool {
	if !cond {
		s.errs = append(s.errs, &AssertionMismatch{
			Subject:  "condition",
			Expected: true,
			Actual:   false,
			Message:  fmt.Sprintf(format, args...),
		})
	}
	return cond
}

// Err joins every recorded failure. It is nil when all checks passed.
func (s *Soft) Err() error {
	return errors.Join(s.errs...)
}
