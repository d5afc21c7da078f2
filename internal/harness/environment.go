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

package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/internal/appliance"
	"github.com/alexandremahdhaoui/tagconverge/internal/provider/ec2"
	"github.com/alexandremahdhaoui/tagconverge/internal/provider/simulated"
	"github.com/alexandremahdhaoui/tagconverge/pkg/mutation"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
)

// Target is a resolved entity: its provider tags and its appliance view.
type Target struct {
	Tags   mutation.TagAPI
	Reader tagmap.Reader
}

// Environment is a provider plus the appliance observing it.
type Environment interface {
	// ProviderType is the provider type shown in entity type options.
	ProviderType() string
	// Resolve finds the entity described by spec.
	Resolve(ctx context.Context, spec testcase.EntitySpec) (*Target, error)
	// Mappings returns the appliance mapping API.
	Mappings() tagmap.MappingAPI
	// Refresher returns a provider refresher waiting at most timeout.
	Refresher(timeout time.Duration) scenario.Refresher
	// Nudge returns the action run between failed poll attempts.
	Nudge() poll.Nudge
}

// SimulatedEnvironment adapts a simulated.Environment.
type SimulatedEnvironment struct {
	env *simulated.Environment
}

// NewSimulated returns an Environment backed by env.
func NewSimulated(env *simulated.Environment) *SimulatedEnvironment {
	return &SimulatedEnvironment{env: env}
}

// Seed registers every entity referenced by cases. Entities referenced only by
// name get an ID derived from it. Tags of company_tags cases are set on the
// entity beforehand.
func (s *SimulatedEnvironment) Seed(cases []*testcase.TestCase) {
	type seed struct {
		kind tagmap.EntityKind
		name string
		tags map[string]string
	}
	seeds := make(map[string]*seed)
	var order []string

	for _, tc := range cases {
		id := tc.Entity.ID
		if id == "" {
			id = simulatedID(tc.Entity)
		}
		sd, ok := seeds[id]
		if !ok {
			sd = &seed{kind: tc.Entity.Kind, name: tc.Entity.Name, tags: map[string]string{}}
			seeds[id] = sd
			order = append(order, id)
		}
		if tc.Entity.Name != "" {
			sd.name = tc.Entity.Name
		}
		if tc.Type == testcase.TypeCompanyTags {
			sd.tags[tc.Tag.Key] = tc.Tag.Value
		}
	}

	for _, id := range order {
		sd := seeds[id]
		s.env.AddEntity(sd.kind, id, sd.name, sd.tags)
	}
}

func simulatedID(spec testcase.EntitySpec) string {
	prefix := "i"
	if spec.Kind == tagmap.KindImage {
		prefix = "ami"
	}
	return fmt.Sprintf("%s-sim-%s", prefix, spec.Name)
}

// ProviderType implements Environment.
func (s *SimulatedEnvironment) ProviderType() string {
	return s.env.ProviderType()
}

// Resolve implements Environment.
func (s *SimulatedEnvironment) Resolve(_ context.Context, spec testcase.EntitySpec) (*Target, error) {
	r, err := s.env.Lookup(spec.Kind, spec.ID, spec.Name)
	if err != nil {
		return nil, err
	}
	return &Target{Tags: r, Reader: r}, nil
}

// Mappings implements Environment.
func (s *SimulatedEnvironment) Mappings() tagmap.MappingAPI {
	return s.env.Mappings()
}

// Refresher implements Environment. Simulated refreshes return immediately.
func (s *SimulatedEnvironment) Refresher(time.Duration) scenario.Refresher {
	return scenario.RefreshFunc(s.env.Refresh)
}

// Nudge implements Environment.
func (s *SimulatedEnvironment) Nudge() poll.Nudge {
	return s.env.Nudge
}

// LiveEnvironment mutates EC2 and observes a live appliance.
type LiveEnvironment struct {
	provider     *ec2.Client
	appliance    *appliance.Client
	providerID   string
	providerType string
}

// NewLive looks up the appliance provider named providerName.
func NewLive(ctx context.Context, provider *ec2.Client, app *appliance.Client, providerName string) (*LiveEnvironment, error) {
	p, err := app.FindProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("finding provider %q: %w", providerName, err)
	}
	return &LiveEnvironment{
		provider:     provider,
		appliance:    app,
		providerID:   p.ID,
		providerType: ec2.ProviderType,
	}, nil
}

// ProviderType implements Environment.
func (l *LiveEnvironment) ProviderType() string {
	return l.providerType
}

// Resolve implements Environment. The provider entity is looked up first and
// the appliance entity is found by its provider ID.
func (l *LiveEnvironment) Resolve(ctx context.Context, spec testcase.EntitySpec) (*Target, error) {
	res, err := l.provider.Lookup(ctx, spec.Kind, spec.ID, spec.Name)
	if err != nil {
		return nil, err
	}
	ent, err := l.appliance.FindEntity(ctx, spec.Kind, res.ID())
	if err != nil {
		return nil, err
	}
	return &Target{Tags: res, Reader: ent}, nil
}

// Mappings implements Environment.
func (l *LiveEnvironment) Mappings() tagmap.MappingAPI {
	return l.appliance.Mappings()
}

// Refresher implements Environment.
func (l *LiveEnvironment) Refresher(timeout time.Duration) scenario.Refresher {
	return l.appliance.Refresher(l.providerID, timeout)
}

// Nudge implements Environment.
func (l *LiveEnvironment) Nudge() poll.Nudge {
	return l.appliance.Nudge(l.providerID)
}
