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

// Package harness turns tag mapping test cases into scenarios and runs them
// against a provider environment.
package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/mutation"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
	"github.com/go-logr/logr"
)

// ErrUnsupportedType is returned for a test case type the executor cannot build.
var ErrUnsupportedType = errors.New("unsupported test case type")

// Executor builds and runs scenarios from test cases.
type Executor struct {
	env    Environment
	runner *scenario.Runner
	log    logr.Logger
	names  func() (label, value string)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(log logr.Logger) ExecutorOption {
	return func(e *Executor) { e.log = log }
}

// WithNames overrides the generator of tag labels and values used when a test
// case leaves them empty.
func WithNames(fn func() (label, value string)) ExecutorOption {
	return func(e *Executor) { e.names = fn }
}

// NewExecutor creates an Executor running scenarios with runner.
func NewExecutor(env Environment, runner *scenario.Runner, opts ...ExecutorOption) *Executor {
	e := &Executor{
		env:    env,
		runner: runner,
		log:    logr.Discard(),
		names:  tagmap.RandomComponents,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteAll runs every test case in order, even after failures. The returned
// error joins the errors of failed scenarios.
func (e *Executor) ExecuteAll(ctx context.Context, cases []*testcase.TestCase) ([]*scenario.Result, error) {
	results := make([]*scenario.Result, 0, len(cases))
	var errs []error

	for _, tc := range cases {
		res, err := e.Execute(ctx, tc)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}

// Execute builds and runs one test case.
func (e *Executor) Execute(ctx context.Context, tc *testcase.TestCase) (*scenario.Result, error) {
	e.log.Info("executing test case", "name", tc.Name, "type", tc.Type, "file", tc.File)

	s, err := e.Build(ctx, tc)
	if err != nil {
		outcome := scenario.OutcomeSetupFailed
		if errors.Is(err, poll.ErrInvalidPolicy) || errors.Is(err, ErrUnsupportedType) {
			outcome = scenario.OutcomeConfigError
		} else {
			err = &scenario.SetupError{Scenario: tc.Name, Phase: scenario.PhaseResolve, Err: err}
		}
		return e.runner.Abort(tc.Name, outcome, err), err
	}

	return e.runner.Run(ctx, s)
}

// Build resolves the entity of tc and returns its scenario.
func (e *Executor) Build(ctx context.Context, tc *testcase.TestCase) (scenario.Scenario, error) {
	policy, err := tc.PollPolicy()
	if err != nil {
		return scenario.Scenario{}, err
	}
	policy = policy.WithNudge(e.env.Nudge())

	target, err := e.env.Resolve(ctx, tc.Entity)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("resolving %s: %w", tc.Entity.Kind, err)
	}

	s := scenario.Scenario{
		Name:      tc.Name,
		Refresher: boundedRefresher{Refresher: e.env.Refresher(tc.RefreshTimeout()), timeout: tc.RefreshTimeout()},
		Policy:    policy,
	}

	switch tc.Type {
	case testcase.TypeLabels:
		e.buildLabels(&s, tc, target)
	case testcase.TypeMapping:
		err = e.buildMapping(ctx, &s, tc, target)
	case testcase.TypeCompanyTags:
		err = e.buildCompanyTags(ctx, &s, tc, target)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedType, tc.Type)
	}
	if err != nil {
		return scenario.Scenario{}, err
	}
	return s, nil
}

// buildLabels sets a provider tag and expects it as a label.
func (e *Executor) buildLabels(s *scenario.Scenario, tc *testcase.TestCase, target *Target) {
	key, value := e.tag(tc)

	s.Mutator = mutation.NewTagMutator(target.Tags, key, value)
	s.Condition = func() poll.Condition { return tagmap.LabelEquals(target.Reader, key, value) }
	s.Assertion = func(ctx context.Context) error {
		labels, err := target.Reader.Read(ctx, tagmap.FieldLabels)
		if err != nil {
			return err
		}
		got, _ := labels.Get(key)
		return scenario.Expect(tagmap.FieldLabels+"."+key, value, got)
	}
	if tc.ShouldVerifyRemoval() {
		s.Settled = func() poll.Condition { return tagmap.LabelAbsent(target.Reader, key) }
	}
}

// buildMapping sets a provider tag, maps its label to a category and expects
// the company tag.
func (e *Executor) buildMapping(ctx context.Context, s *scenario.Scenario, tc *testcase.TestCase, target *Target) error {
	key, value := e.tag(tc)
	category := tc.Mapping.Category

	entityType, err := e.entityType(ctx, tc)
	if err != nil {
		return err
	}
	mapping := tagmap.Mapping{EntityType: entityType, Label: key, Category: category}

	s.Mutator = mutation.Chain{
		mutation.NewTagMutator(target.Tags, key, value),
		tagmap.NewMappingMutator(e.env.Mappings(), mapping),
	}
	s.Condition = func() poll.Condition { return tagmap.CompanyTagPresent(target.Reader, category, value) }
	s.Assertion = func(ctx context.Context) error {
		tags, err := tagmap.CompanyTags(ctx, target.Reader)
		if err != nil {
			return err
		}
		labels, err := target.Reader.Read(ctx, tagmap.FieldLabels)
		if err != nil {
			return err
		}
		want := tagmap.FormatCompanyTag(category, value)
		got, _ := labels.Get(key)

		var soft scenario.Soft
		soft.True(slices.Contains(tags, want), "%q not in %s %q", want, tagmap.RowCompanyTags, tags)
		soft.Expect(tagmap.FieldLabels+"."+key, value, got)
		return soft.Err()
	}
	if tc.ShouldVerifyRemoval() {
		s.Settled = func() poll.Condition { return tagmap.CompanyTagAbsent(target.Reader, category, value) }
	}
	return nil
}

// buildCompanyTags maps the label of an already tagged entity and expects the
// first company tag to match it.
func (e *Executor) buildCompanyTags(ctx context.Context, s *scenario.Scenario, tc *testcase.TestCase, target *Target) error {
	key, value := tc.Tag.Key, tc.Tag.Value
	category := tc.Mapping.Category

	tags, err := target.Tags.Tags(ctx)
	if err != nil {
		return fmt.Errorf("reading tags of %s: %w", target.Tags.ID(), err)
	}
	if got, ok := tags[key]; !ok || got != value {
		return fmt.Errorf("%s has no tag %s=%s", target.Tags.ID(), key, value)
	}

	entityType, err := e.entityType(ctx, tc)
	if err != nil {
		return err
	}
	mapping := tagmap.Mapping{EntityType: entityType, Label: key, Category: category}

	s.Mutator = tagmap.NewMappingMutator(e.env.Mappings(), mapping)
	s.Condition = func() poll.Condition { return tagmap.CompanyTagsAssigned(target.Reader) }
	s.Assertion = func(ctx context.Context) error {
		tags, err := tagmap.CompanyTags(ctx, target.Reader)
		if err != nil {
			return err
		}
		var first string
		if len(tags) > 0 {
			first = tags[0]
		}
		return scenario.Expect(tagmap.RowCompanyTags, tagmap.FormatCompanyTag(category, value), first)
	}
	if tc.ShouldVerifyRemoval() {
		s.Settled = func() poll.Condition { return tagmap.CompanyTagAbsent(target.Reader, category, value) }
	}
	return nil
}

func (e *Executor) tag(tc *testcase.TestCase) (key, value string) {
	if tc.Tag.Key != "" {
		return tc.Tag.Key, tc.Tag.Value
	}
	return e.names()
}

func (e *Executor) entityType(ctx context.Context, tc *testcase.TestCase) (string, error) {
	if tc.Mapping.EntityType != "" {
		return tc.Mapping.EntityType, nil
	}
	options, err := e.env.Mappings().EntityTypes(ctx)
	if err != nil {
		return "", fmt.Errorf("listing entity types: %w", err)
	}
	return tagmap.ResolveEntityType(options, e.env.ProviderType(), tc.Entity.Kind)
}

// boundedRefresher bounds every refresh with a timeout.
type boundedRefresher struct {
	scenario.Refresher
	timeout time.Duration
}

func (b boundedRefresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.Refresher.Refresh(ctx)
}

// Select returns the test cases carrying every tag in tags.
func Select(cases []*testcase.TestCase, tags []string) []*testcase.TestCase {
	if len(tags) == 0 {
		return cases
	}
	var out []*testcase.TestCase
	for _, tc := range cases {
		if hasAll(tc.Tags, tags) {
			out = append(out, tc)
		}
	}
	return out
}

func hasAll(have, want []string) bool {
	for _, t := range want {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}
