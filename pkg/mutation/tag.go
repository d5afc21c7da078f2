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
)

// ErrUnexpectedToken is returned when a mutator is asked to revert a token it
// did not produce.
var ErrUnexpectedToken = errors.New("unexpected undo token")

// TagAPI is the provider mutation API of a single taggable entity
// (an instance, an image...).
type TagAPI interface {
	// ID identifies the entity on the provider side.
	ID() string
	// Tags returns the current tags of the entity.
	Tags(ctx context.Context) (map[string]string, error)
	// SetTag creates or overwrites a tag.
	SetTag(ctx context.Context, key, value string) error
	// UnsetTag removes the tag if it still has the given value. Removing an
	// absent tag is not an error.
	UnsetTag(ctx context.Context, key, value string) error
}

// TagMutator sets a tag on an entity and restores the previous state on revert.
type TagMutator struct {
	api   TagAPI
	key   string
	value string
}

// NewTagMutator returns a mutator setting key=value through api.
func NewTagMutator(api TagAPI, key, value string) *TagMutator {
	return &TagMutator{
		api:   api,
		key:   key,
		value: value,
	}
}

// Apply records the current value of the tag, then sets it.
func (m *TagMutator) Apply(ctx context.Context) (UndoToken, error) {
	if m.key == "" {
		return UndoToken{}, errors.New("tag key is empty")
	}

	current, err := m.api.Tags(ctx)
	if err != nil {
		return UndoToken{}, fmt.Errorf("reading tags of %s: %w", m.api.ID(), err)
	}

	token := UndoToken{
		Kind:   KindTag,
		Target: m.api.ID(),
		Key:    m.key,
		Value:  m.value,
	}
	if prev, ok := current[m.key]; ok {
		token.Previous = &prev
	}

	if err := m.api.SetTag(ctx, m.key, m.value); err != nil {
		// The write may have landed before the error surfaced.
		return token, fmt.Errorf("setting tag %s=%s on %s: %w", m.key, m.value, m.api.ID(), err)
	}

	return token, nil
}

// Revert restores the previous value, or removes the tag if it did not exist.
// A tag that was changed by someone else in the meantime is left alone.
func (m *TagMutator) Revert(ctx context.Context, token UndoToken) error {
	if token.Kind != KindTag {
		return fmt.Errorf("%w: %s", ErrUnexpectedToken, token.String())
	}

	if token.Previous != nil {
		current, err := m.api.Tags(ctx)
		if err != nil {
			return fmt.Errorf("reading tags of %s: %w", token.Target, err)
		}
		if v, ok := current[token.Key]; !ok || v != token.Value {
			return nil
		}
		if err := m.api.SetTag(ctx, token.Key, *token.Previous); err != nil {
			return fmt.Errorf("restoring tag %s=%s on %s: %w", token.Key, *token.Previous, token.Target, err)
		}
		return nil
	}

	if err := m.api.UnsetTag(ctx, token.Key, token.Value); err != nil {
		return fmt.Errorf("unsetting tag %s on %s: %w", token.Key, token.Target, err)
	}
	return nil
}

func (m *TagMutator) String() string {
	return fmt.Sprintf("tag %s=%s on %s", m.key, m.value, m.api.ID())
}
