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

// Package mutation applies external state changes and guarantees they are
// undone.
//
// A Mutator returns an UndoToken from Apply; Revert consumes that token and
// must be safe to call twice. Guard wraps both so the revert runs exactly once
// on every exit path.
package mutation

import (
	"context"
	"errors"
	"fmt"
)

// ErrApply is matched by every *ApplyError.
var ErrApply = errors.New("mutation apply failed")

// Token kinds used by the mutators in this module.
const (
	KindTag     = "tag"
	KindMapping = "mapping"
	KindChain   = "chain"
	KindFunc    = "func"
)

// UndoToken captures enough information to reverse one applied mutation.
// The zero value means there is nothing to undo.
type UndoToken struct {
	// Kind identifies the mutator that produced the token.
	Kind string `json:"kind"`

	// Target is the external entity, e.g. an instance ID or an entity type.
	Target string `json:"target,omitempty"`

	// Key and Value describe what was written.
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// ID is an identifier returned by the external system, if any.
	ID string `json:"id,omitempty"`

	// Previous holds the value Key had before Apply. Nil if it was absent.
	Previous *string `json:"previous,omitempty"`

	// Children holds the tokens of composed mutators, in apply order.
	Children []UndoToken `json:"children,omitempty"`
}

// IsZero reports whether the token carries nothing to undo.
func (t UndoToken) IsZero() bool {
	return t.Kind == "" && len(t.Children) == 0
}

func (t UndoToken) String() string {
	switch {
	case t.IsZero():
		return "<none>"
	case len(t.Children) > 0:
		return fmt.Sprintf("%s(%d)", t.Kind, len(t.Children))
	default:
		return fmt.Sprintf("%s %s %s=%s", t.Kind, t.Target, t.Key, t.Value)
	}
}

// Mutator performs an external write and reverses it.
type Mutator interface {
	// Apply performs the write. On failure it may still return a partial
	// token describing what has to be undone.
	Apply(ctx context.Context) (UndoToken, error)

	// Revert undoes the write described by token. Reverting the same token
	// twice must not fail nor change external state further.
	Revert(ctx context.Context, token UndoToken) error
}

// ApplyError reports a failed Apply.
type ApplyError struct {
	// Mutation describes the attempted mutation.
	Mutation string
	// Partial is the token returned alongside the failure, possibly zero.
	Partial UndoToken
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrApply, e.Mutation, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

func (e *ApplyError) Is(target error) bool { return target == ErrApply }

// Func adapts two functions to a Mutator.
type Func struct {
	Name       string
	ApplyFunc  func(ctx context.Context) (UndoToken, error)
	RevertFunc func(ctx context.Context, token UndoToken) error
}

// Apply implements Mutator.
func (f Func) Apply(ctx context.Context) (UndoToken, error) {
	return f.ApplyFunc(ctx)
}

// Revert implements Mutator.
func (f Func) Revert(ctx context.Context, token UndoToken) error {
	if f.RevertFunc == nil {
		return nil
	}
	return f.RevertFunc(ctx, token)
}

func (f Func) String() string { return f.Name }

func describe(m Mutator) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
