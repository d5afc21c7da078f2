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
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// DefaultCleanupTimeout bounds a single revert.
const DefaultCleanupTimeout = 2 * time.Minute

// Guard owns an applied mutation and reverts it exactly once.
//
// Release detaches from the caller's cancellation so that a cancelled or
// timed-out test still cleans up after itself.
type Guard struct {
	mutator Mutator
	token   UndoToken
	log     logr.Logger
	timeout time.Duration

	once     sync.Once
	released atomic.Bool
	err      error
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithCleanupTimeout overrides DefaultCleanupTimeout.
func WithCleanupTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// Acquire applies m and returns a Guard owning the result.
//
// If Apply fails, Acquire returns an *ApplyError. A partial token returned
// alongside the failure is reverted before Acquire returns.
func Acquire(ctx context.Context, m Mutator, log logr.Logger, opts ...GuardOption) (*Guard, error) {
	if m == nil {
		return nil, &ApplyError{Mutation: "<nil>", Err: errors.New("mutator is nil")}
	}

	token, err := m.Apply(ctx)
	if err != nil {
		applyErr := &ApplyError{Mutation: describe(m), Partial: token, Err: err}
		if !token.IsZero() {
			log.Info("apply failed with a partial mutation, reverting it", "mutation", describe(m), "token", token.String())
			NewGuard(m, token, log, opts...).Release(ctx)
		}
		return nil, applyErr
	}

	log.V(1).Info("mutation applied", "mutation", describe(m), "token", token.String())
	return NewGuard(m, token, log, opts...), nil
}

// NewGuard wraps an already applied token.
func NewGuard(m Mutator, token UndoToken, log logr.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		mutator: m,
		token:   token,
		log:     log,
		timeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Token returns the token owned by the guard.
func (g *Guard) Token() UndoToken {
	return g.token
}

// Release reverts the owned mutation. Only the first call has any effect.
// Revert failures are logged, never returned: cleanup must not mask the
// outcome the caller is about to report. Use Err to inspect them.
func (g *Guard) Release(ctx context.Context) {
	g.once.Do(func() {
		defer g.released.Store(true)
		if g.token.IsZero() {
			return
		}

		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		if err := g.mutator.Revert(cleanupCtx, g.token); err != nil {
			g.err = err
			g.log.Error(err, "revert failed, external state may need manual cleanup",
				"mutation", describe(g.mutator), "token", g.token.String())
			return
		}
		g.log.V(1).Info("mutation reverted", "mutation", describe(g.mutator), "token", g.token.String())
	})
}

// Released reports whether Release has run.
func (g *Guard) Released() bool {
	return g.released.Load()
}

// Err returns the revert error, if any.
func (g *Guard) Err() error {
	return g.err
}
