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

// Package simulated provides an in-memory cloud provider and appliance.
//
// Provider writes are immediate. The appliance view only changes when Refresh
// is called, and a refresh becomes visible after a configurable lag measured
// on an injectable clock.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"k8s.io/utils/clock"
)

// DefaultProviderType is the provider type of New environments.
const DefaultProviderType = "Amazon"

var (
	// ErrEntityNotFound is returned when no entity matches a lookup.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnknownField is returned when reading an unknown summary field.
	ErrUnknownField = errors.New("unknown summary field")
)

type entity struct {
	id   string
	name string
	kind tagmap.EntityKind
	tags map[string]string
}

// snapshot is the appliance inventory produced by one refresh.
type snapshot struct {
	readyAt  time.Time
	tags     map[string]map[string]string
	mappings []tagmap.Mapping
}

// Environment is an in-memory provider and appliance.
type Environment struct {
	mu sync.Mutex

	clock        clock.PassiveClock
	lag          time.Duration
	providerType string

	entities map[string]*entity
	mappings map[string]tagmap.Mapping
	nextID   int

	visible snapshot
	pending []snapshot

	refreshErr error
	refreshes  int
	nudges     int
}

// Option configures an Environment.
type Option func(*Environment)

// WithClock sets the clock used to apply the refresh lag.
func WithClock(c clock.PassiveClock) Option {
	return func(e *Environment) { e.clock = c }
}

// WithRefreshLag delays the visibility of every refresh.
func WithRefreshLag(d time.Duration) Option {
	return func(e *Environment) { e.lag = d }
}

// WithProviderType overrides DefaultProviderType.
func WithProviderType(providerType string) Option {
	return func(e *Environment) { e.providerType = providerType }
}

// New creates an empty Environment.
func New(opts ...Option) *Environment {
	e := &Environment{
		clock:        clock.RealClock{},
		providerType: DefaultProviderType,
		entities:     make(map[string]*entity),
		mappings:     make(map[string]tagmap.Mapping),
		visible:      snapshot{tags: make(map[string]map[string]string)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProviderType returns the provider type shown in entity type options.
func (e *Environment) ProviderType() string {
	return e.providerType
}

// AddEntity registers an entity. It is immediately visible on the appliance.
func (e *Environment) AddEntity(kind tagmap.EntityKind, id, name string, tags map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entities[id] = &entity{id: id, name: name, kind: kind, tags: maps.Clone(tags)}
	if e.entities[id].tags == nil {
		e.entities[id].tags = make(map[string]string)
	}
	e.visible.tags[id] = maps.Clone(e.entities[id].tags)
}

// Lookup returns the entity with the given ID, or the given name if id is
// empty.
func (e *Environment) Lookup(kind tagmap.EntityKind, id, name string) (*Resource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id != "" {
		ent, ok := e.entities[id]
		if !ok || ent.kind != kind {
			return nil, fmt.Errorf("%w: %s %s", ErrEntityNotFound, kind, id)
		}
		return &Resource{env: e, id: id}, nil
	}

	ids := slices.Sorted(maps.Keys(e.entities))
	for _, candidate := range ids {
		ent := e.entities[candidate]
		if ent.kind == kind && ent.name == name {
			return &Resource{env: e, id: candidate}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s named %q", ErrEntityNotFound, kind, name)
}

// FailNextRefresh makes the next Refresh return err.
func (e *Environment) FailNextRefresh(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshErr = err
}

// Refresh snapshots the provider state and mapping rules. The snapshot becomes
// visible once the refresh lag has elapsed.
func (e *Environment) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshes++
	if err := e.refreshErr; err != nil {
		e.refreshErr = nil
		return err
	}

	s := snapshot{
		readyAt:  e.clock.Now().Add(e.lag),
		tags:     make(map[string]map[string]string, len(e.entities)),
		mappings: slices.Collect(maps.Values(e.mappings)),
	}
	for id, ent := range e.entities {
		s.tags[id] = maps.Clone(ent.tags)
	}
	e.pending = append(e.pending, s)
	return nil
}

// Nudge simulates a page reload. It only advances visible state.
func (e *Environment) Nudge(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nudges++
	e.promoteLocked()
	return nil
}

// Stats returns how many refreshes and nudges were requested.
func (e *Environment) Stats() (refreshes, nudges int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshes, e.nudges
}

// Mappings returns the appliance mapping API.
func (e *Environment) Mappings() tagmap.MappingAPI {
	return mappingAPI{env: e}
}

// promoteLocked makes every ready snapshot visible, the latest one winning.
func (e *Environment) promoteLocked() {
	now := e.clock.Now()
	i := 0
	for ; i < len(e.pending); i++ {
		if e.pending[i].readyAt.After(now) {
			break
		}
		e.visible = e.pending[i]
	}
	e.pending = e.pending[i:]
}

func (e *Environment) entityTypeOf(kind tagmap.EntityKind) string {
	return fmt.Sprintf("%s (%s)", kind.Title(), e.providerType)
}

// read returns a summary field of an entity as currently visible.
func (e *Environment) read(id, field string) (tagmap.Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promoteLocked()

	ent, ok := e.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	tags := e.visible.tags[id]

	switch field {
	case tagmap.FieldLabels:
		summary := make(tagmap.Summary, len(tags))
		for k, v := range tags {
			summary[k] = []string{v}
		}
		return summary, nil

	case tagmap.FieldSmartManagement:
		entityType := e.entityTypeOf(ent.kind)
		var companyTags []string
		for _, m := range e.visible.mappings {
			if m.EntityType != entityType {
				continue
			}
			if v, ok := tags[m.Label]; ok {
				companyTags = append(companyTags, tagmap.FormatCompanyTag(m.Category, v))
			}
		}
		slices.Sort(companyTags)
		if len(companyTags) == 0 {
			companyTags = []string{tagmap.NoCompanyTags}
		}
		return tagmap.Summary{tagmap.RowCompanyTags: companyTags}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// Resource is one simulated entity. It implements mutation.TagAPI and
// tagmap.Reader.
type Resource struct {
	env *Environment
	id  string
}

// ID implements mutation.TagAPI.
func (r *Resource) ID() string { return r.id }

// Tags implements mutation.TagAPI.
func (r *Resource) Tags(context.Context) (map[string]string, error) {
	r.env.mu.Lock()
	defer r.env.mu.Unlock()
	return maps.Clone(r.env.entities[r.id].tags), nil
}

// SetTag implements mutation.TagAPI.
func (r *Resource) SetTag(_ context.Context, key, value string) error {
	r.env.mu.Lock()
	defer r.env.mu.Unlock()
	r.env.entities[r.id].tags[key] = value
	return nil
}

// UnsetTag implements mutation.TagAPI.
func (r *Resource) UnsetTag(_ context.Context, key, value string) error {
	r.env.mu.Lock()
	defer r.env.mu.Unlock()
	tags := r.env.entities[r.id].tags
	if current, ok := tags[key]; ok && current == value {
		delete(tags, key)
	}
	return nil
}

// Read implements tagmap.Reader.
func (r *Resource) Read(_ context.Context, field string) (tagmap.Summary, error) {
	return r.env.read(r.id, field)
}

type mappingAPI struct {
	env *Environment
}

func (m mappingAPI) EntityTypes(context.Context) ([]string, error) {
	return []string{
		"Container Project (Kubernetes)",
		m.env.entityTypeOf(tagmap.KindImage),
		m.env.entityTypeOf(tagmap.KindInstance),
		"Vm (VMware)",
	}, nil
}

func (m mappingAPI) CreateMapping(_ context.Context, mapping tagmap.Mapping) (string, error) {
	m.env.mu.Lock()
	defer m.env.mu.Unlock()

	for _, existing := range m.env.mappings {
		if existing.EntityType == mapping.EntityType && existing.Label == mapping.Label {
			return "", fmt.Errorf("mapping for %s/%s already exists", mapping.EntityType, mapping.Label)
		}
	}
	m.env.nextID++
	id := strconv.Itoa(m.env.nextID)
	m.env.mappings[id] = mapping
	return id, nil
}

func (m mappingAPI) DeleteMapping(_ context.Context, id string) error {
	m.env.mu.Lock()
	defer m.env.mu.Unlock()

	if _, ok := m.env.mappings[id]; !ok {
		return fmt.Errorf("%w: %s", tagmap.ErrMappingNotFound, id)
	}
	delete(m.env.mappings, id)
	return nil
}
