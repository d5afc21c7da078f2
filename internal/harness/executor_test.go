//go:build unit

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
	"testing"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/internal/provider/simulated"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastTimeouts = testcase.TimeoutSpec{Refresh: "1s", Wait: "500ms", Delay: "5ms"}

func fixedNames() (string, string) { return "tag_label_fixed", "tag_value_fixed" }

func newTestEnv(t *testing.T, opts ...simulated.Option) (*simulated.Environment, *Executor) {
	t.Helper()
	sim := simulated.New(opts...)
	sim.AddEntity(tagmap.KindInstance, "i-0abc", "cu-24x7", map[string]string{"owner": "qe"})
	sim.AddEntity(tagmap.KindImage, "ami-0123", "rhel-9", nil)
	return sim, NewExecutor(NewSimulated(sim), scenario.NewRunner(), WithNames(fixedNames))
}

func labelsCase() *testcase.TestCase {
	return &testcase.TestCase{
		Name:     "labels-env-prod",
		Type:     testcase.TypeLabels,
		Entity:   testcase.EntitySpec{Kind: tagmap.KindInstance, Name: "cu-24x7"},
		Tag:      testcase.TagSpec{Key: "env", Value: "prod"},
		Timeouts: fastTimeouts,
	}
}

func TestExecute_Labels(t *testing.T) {
	sim, exec := newTestEnv(t)

	res, err := exec.Execute(context.Background(), labelsCase())

	require.NoError(t, err)
	assert.Equal(t, scenario.OutcomePassed, res.Outcome)
	require.NotNil(t, res.Settle)

	r, err := sim.Lookup(tagmap.KindInstance, "i-0abc", "")
	require.NoError(t, err)
	tags, _ := r.Tags(context.Background())
	assert.Equal(t, map[string]string{"owner": "qe"}, tags)
	labels, err := r.Read(context.Background(), tagmap.FieldLabels)
	require.NoError(t, err)
	assert.False(t, labels.Has("env"))

	refreshes, _ := sim.Stats()
	assert.Equal(t, 2, refreshes)
}

func TestExecute_LabelsGeneratesMissingTag(t *testing.T) {
	_, exec := newTestEnv(t)
	tc := labelsCase()
	tc.Tag = testcase.TagSpec{}
	no := false
	tc.VerifyRemoval = &no

	res, err := exec.Execute(context.Background(), tc)

	require.NoError(t, err)
	assert.Nil(t, res.Settle)
	assert.Equal(t, "tag_label_fixed", res.Token.Key)
	assert.Equal(t, "tag_value_fixed", res.Token.Value)
}

func TestExecute_Mapping(t *testing.T) {
	sim, exec := newTestEnv(t)
	tc := &testcase.TestCase{
		Name:     "mapping-instance",
		Type:     testcase.TypeMapping,
		Entity:   testcase.EntitySpec{Kind: tagmap.KindInstance, ID: "i-0abc"},
		Mapping:  &testcase.MappingSpec{Category: "Testing"},
		Timeouts: fastTimeouts,
	}

	res, err := exec.Execute(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, scenario.OutcomePassed, res.Outcome)
	require.Len(t, res.Token.Children, 2)
	mappingID := res.Token.Children[1].ID
	assert.Equal(t, "Instance (Amazon)", res.Token.Children[1].Target)

	// The mapping was deleted on revert.
	err = sim.Mappings().DeleteMapping(context.Background(), mappingID)
	assert.ErrorIs(t, err, tagmap.ErrMappingNotFound)

	r, _ := sim.Lookup(tagmap.KindInstance, "i-0abc", "")
	companyTags, err := tagmap.CompanyTags(context.Background(), r)
	require.NoError(t, err)
	assert.Empty(t, companyTags)
}

func TestExecute_CompanyTags(t *testing.T) {
	sim := simulated.New()
	tc := &testcase.TestCase{
		Name:     "company-tags-image",
		Type:     testcase.TypeCompanyTags,
		Entity:   testcase.EntitySpec{Kind: tagmap.KindImage, Name: "rhel-9"},
		Tag:      testcase.TagSpec{Key: "Environment", Value: "prod"},
		Mapping:  &testcase.MappingSpec{Category: "Environment"},
		Timeouts: fastTimeouts,
	}
	env := NewSimulated(sim)
	env.Seed([]*testcase.TestCase{tc})

	res, err := NewExecutor(env, scenario.NewRunner()).Execute(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, scenario.OutcomePassed, res.Outcome)
	assert.Nil(t, res.Settle)

	r, err := sim.Lookup(tagmap.KindImage, "", "rhel-9")
	require.NoError(t, err)
	assert.Equal(t, "ami-sim-rhel-9", r.ID())
	tags, _ := r.Tags(context.Background())
	assert.Equal(t, map[string]string{"Environment": "prod"}, tags)
}

func TestExecute_CompanyTagsRequiresExistingTag(t *testing.T) {
	_, exec := newTestEnv(t)
	tc := &testcase.TestCase{
		Name:     "untagged",
		Type:     testcase.TypeCompanyTags,
		Entity:   testcase.EntitySpec{Kind: tagmap.KindImage, ID: "ami-0123"},
		Tag:      testcase.TagSpec{Key: "Environment", Value: "prod"},
		Mapping:  &testcase.MappingSpec{Category: "Environment"},
		Timeouts: fastTimeouts,
	}

	res, err := exec.Execute(context.Background(), tc)

	assert.Equal(t, scenario.OutcomeSetupFailed, res.Outcome)
	assert.ErrorIs(t, err, scenario.ErrSetup)
	assert.ErrorContains(t, err, "has no tag Environment=prod")
}

func TestExecute_MissingEntity(t *testing.T) {
	sim, exec := newTestEnv(t)
	tc := labelsCase()
	tc.Entity.Name = "does-not-exist"

	res, err := exec.Execute(context.Background(), tc)

	assert.Equal(t, scenario.OutcomeSetupFailed, res.Outcome)
	assert.ErrorIs(t, err, scenario.ErrSetup)
	assert.ErrorIs(t, err, simulated.ErrEntityNotFound)
	var setup *scenario.SetupError
	require.ErrorAs(t, err, &setup)
	assert.Equal(t, scenario.PhaseResolve, setup.Phase)

	refreshes, _ := sim.Stats()
	assert.Zero(t, refreshes)
}

func TestExecute_InvalidPolicy(t *testing.T) {
	sim, exec := newTestEnv(t)
	tc := labelsCase()
	tc.Timeouts = testcase.TimeoutSpec{Wait: "5s", Delay: "10s"}

	res, err := exec.Execute(context.Background(), tc)

	assert.Equal(t, scenario.OutcomeConfigError, res.Outcome)
	assert.ErrorIs(t, err, poll.ErrInvalidPolicy)
	refreshes, _ := sim.Stats()
	assert.Zero(t, refreshes)
}

func TestExecute_UnmatchedEntityTypeTimesOutAndReverts(t *testing.T) {
	sim, exec := newTestEnv(t)
	tc := &testcase.TestCase{
		Name:     "wrong-entity-type",
		Type:     testcase.TypeMapping,
		Entity:   testcase.EntitySpec{Kind: tagmap.KindInstance, ID: "i-0abc"},
		Mapping:  &testcase.MappingSpec{Category: "Testing", EntityType: "Vm (VMware)"},
		Timeouts: testcase.TimeoutSpec{Wait: "50ms", Delay: "5ms"},
	}

	res, err := exec.Execute(context.Background(), tc)

	assert.Equal(t, scenario.OutcomeWaitFailed, res.Outcome)
	assert.ErrorIs(t, err, scenario.ErrConsistencyWait)
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.NoError(t, res.CleanupError)

	r, _ := sim.Lookup(tagmap.KindInstance, "i-0abc", "")
	tags, _ := r.Tags(context.Background())
	assert.NotContains(t, tags, "tag_label_fixed")
}

func TestExecute_RefreshLagIsNudgedThrough(t *testing.T) {
	sim, exec := newTestEnv(t, simulated.WithRefreshLag(30*time.Millisecond))
	tc := labelsCase()
	no := false
	tc.VerifyRemoval = &no

	res, err := exec.Execute(context.Background(), tc)

	require.NoError(t, err)
	assert.Greater(t, res.Wait.Attempts, 1)
	_, nudges := sim.Stats()
	assert.Positive(t, nudges)
}

func TestExecuteAll_RunsEveryCase(t *testing.T) {
	_, exec := newTestEnv(t)
	missing := labelsCase()
	missing.Name = "missing"
	missing.Entity.Name = "nope"

	results, err := exec.ExecuteAll(context.Background(), []*testcase.TestCase{missing, labelsCase()})

	require.Len(t, results, 2)
	assert.Equal(t, scenario.OutcomeSetupFailed, results[0].Outcome)
	assert.Equal(t, scenario.OutcomePassed, results[1].Outcome)
	assert.ErrorIs(t, err, scenario.ErrSetup)
}

func TestSelect(t *testing.T) {
	a := &testcase.TestCase{Name: "a", Tags: []string{"smoke", "labels"}}
	b := &testcase.TestCase{Name: "b", Tags: []string{"labels"}}
	cases := []*testcase.TestCase{a, b}

	tests := []struct {
		name string
		tags []string
		want []*testcase.TestCase
	}{
		{"no filter", nil, cases},
		{"one tag", []string{"labels"}, cases},
		{"all tags required", []string{"smoke", "labels"}, []*testcase.TestCase{a}},
		{"no match", []string{"mapping"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(cases, tt.tags))
		})
	}
}
