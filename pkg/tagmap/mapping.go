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

package tagmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexandremahdhaoui/tagconverge/pkg/mutation"
)

var (
	// ErrMappingNotFound is returned by a MappingAPI deleting an unknown mapping.
	ErrMappingNotFound = errors.New("tag mapping not found")
	// ErrNoEntityType is returned when no entity type option matches.
	ErrNoEntityType = errors.New("no matching entity type")
)

// EntityKind is the kind of provider entity under test.
type EntityKind string

const (
	KindInstance EntityKind = "instance"
	KindImage    EntityKind = "image"
)

// Title returns the kind as displayed in entity type options.
func (k EntityKind) Title() string {
	s := strings.TrimSuffix(strings.ToLower(string(k)), "s")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindInstance || k == KindImage
}

// Mapping maps a provider label on an entity type to a company tag category.
type Mapping struct {
	EntityType string `json:"entity_type"`
	Label      string `json:"label_name"`
	Category   string `json:"category"`
}

// MappingAPI manages mapping rules on the appliance.
type MappingAPI interface {
	// EntityTypes lists the entity type options accepted by CreateMapping.
	EntityTypes(ctx context.Context) ([]string, error)
	// CreateMapping creates a rule and returns its ID.
	CreateMapping(ctx context.Context, m Mapping) (string, error)
	// DeleteMapping deletes a rule. It returns ErrMappingNotFound if the rule
	// does not exist.
	DeleteMapping(ctx context.Context, id string) error
}

// ProviderType returns the provider type shown in entity type options, e.g.
// "Amazon" for "Amazon EC2".
func ProviderType(discoverName string) string {
	fields := strings.Fields(discoverName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ResolveEntityType returns the first option mentioning both the provider type
// and the entity kind.
func ResolveEntityType(options []string, providerType string, kind EntityKind) (string, error) {
	for _, option := range options {
		if strings.Contains(option, providerType) && strings.Contains(option, kind.Title()) {
			return option, nil
		}
	}
	return "", fmt.Errorf("%w: entity type %q and provider type %q in options [%s]",
		ErrNoEntityType, kind, providerType, strings.Join(options, ", "))
}

// MappingMutator creates a mapping rule and deletes it on revert.
type MappingMutator struct {
	api     MappingAPI
	mapping Mapping
}

// NewMappingMutator returns a mutator creating m through api.
func NewMappingMutator(api MappingAPI, m Mapping) *MappingMutator {
	return &MappingMutator{api: api, mapping: m}
}

// Apply implements mutation.Mutator.
func (m *MappingMutator) Apply(ctx context.Context) (mutation.UndoToken, error) {
	id, err := m.api.CreateMapping(ctx, m.mapping)
	if err != nil {
		return mutation.UndoToken{}, fmt.Errorf("creating mapping %s: %w", m, err)
	}
	return mutation.UndoToken{
		Kind:   mutation.KindMapping,
		Target: m.mapping.EntityType,
		Key:    m.mapping.Label,
		Value:  m.mapping.Category,
		ID:     id,
	}, nil
}

// Revert implements mutation.Mutator. A mapping already gone counts as
// reverted.
func (m *MappingMutator) Revert(ctx context.Context, token mutation.UndoToken) error {
	if token.Kind != mutation.KindMapping || token.ID == "" {
		return fmt.Errorf("%w: %s", mutation.ErrUnexpectedToken, token.String())
	}
	if err := m.api.DeleteMapping(ctx, token.ID); err != nil && !errors.Is(err, ErrMappingNotFound) {
		return fmt.Errorf("deleting mapping %s: %w", token.ID, err)
	}
	return nil
}

func (m *MappingMutator) String() string {
	return fmt.Sprintf("mapping %s/%s -> %s", m.mapping.EntityType, m.mapping.Label, m.mapping.Category)
}
