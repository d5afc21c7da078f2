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

package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chain applies mutators in order and reverts them in reverse order.
type Chain []Mutator

// Apply applies every mutator. If one fails, the returned token holds the
// children applied so far, including a partial token of the failing one.
func (c Chain) Apply(ctx context.Context) (UndoToken, error) {
	token := UndoToken{Kind: KindChain}

	for i, m := range c {
		child, err := m.Apply(ctx)
		if err != nil {
			if !child.IsZero() {
				token.Children = append(token.Children, child)
			}
			if len(token.Children) == 0 {
				return UndoToken{}, fmt.Errorf("step %d (%s): %w", i, describe(m), err)
			}
			return token, fmt.Errorf("step %d (%s): %w", i, describe(m), err)
		}
		token.Children = append(token.Children, child)
	}

	return token, nil
}

// Revert reverts every child, last applied first. All children are attempted
// even if some fail.
func (c Chain) Revert(ctx context.Context, token UndoToken) error {
	if token.Kind != KindChain {
		return fmt.Errorf("%w: %s", ErrUnexpectedToken, token.String())
	}
	if len(token.Children) > len(c) {
		return fmt.Errorf("%w: %d children for %d mutators", ErrUnexpectedToken, len(token.Children), len(c))
	}

	var errs []error
	for i := len(token.Children) - 1; i >= 0; i-- {
		if err := c[i].Revert(ctx, token.Children[i]); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i, describe(c[i]), err))
		}
	}
	return errors.Join(errs...)
}

func (c Chain) String() string {
	parts := make([]string, 0, len(c))
	for _, m := range c {
		parts = append(parts, describe(m))
	}
	return strings.Join(parts, " + ")
}
