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

package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestEnvironment_RefreshLag(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clocktesting.NewFakePassiveClock(start)
	env := New(WithClock(fakeClock), WithRefreshLag(90*time.Second))
	env.AddEntity(tagmap.KindInstance, "i-0abc", "cu-24x7", map[string]string{"Name": "cu-24x7"})

	res, err := env.Lookup(tagmap.KindInstance, "", "cu-24x7")
	require.NoError(t, err)
	require.NoError(t, res.SetTag(ctx, "env", "prod"))

	labels, err := res.Read(ctx, tagmap.FieldLabels)
	require.NoError(t, err)
	assert.False(t, labels.Has("env"), "writes are invisible before a refresh")

	require.NoError(t, env.Refresh(ctx))
	fakeClock.SetTime(start.Add(60 * time.Second))
	labels, _ = res.Read(ctx, tagmap.FieldLabels)
	assert.False(t, labels.Has("env"), "refresh is not visible before the lag")

	fakeClock.SetTime(start.Add(90 * time.Second))
	labels, _ = res.Read(ctx, tagmap.FieldLabels)
	v, ok := labels.Get("env")
	assert.True(t, ok)
	assert.Equal(t, "prod", v)
	assert.Equal(t, []string{"cu-24x7"}, labels["Name"])
}

func TestEnvironment_CompanyTags(t *testing.T) {
	ctx := context.Background()
	env := New()
	env.AddEntity(tagmap.KindInstance, "i-0abc", "cu-24x7", map[string]string{"test": "testing"})
	env.AddEntity(tagmap.KindImage, "ami-1", "base", map[string]string{"test": "img"})

	instance, err := env.Lookup(tagmap.KindInstance, "i-0abc", "")
	require.NoError(t, err)
	image, err := env.Lookup(tagmap.KindImage, "ami-1", "")
	require.NoError(t, err)

	tags, err := tagmap.CompanyTags(ctx, instance)
	require.NoError(t, err)
	assert.Empty(t, tags)

	options, err := env.Mappings().EntityTypes(ctx)
	require.NoError(t, err)
	entityType, err := tagmap.ResolveEntityType(options, env.ProviderType(), tagmap.KindInstance)
	require.NoError(t, err)

	id, err := env.Mappings().CreateMapping(ctx, tagmap.Mapping{EntityType: entityType, Label: "test", Category: "Testing"})
	require.NoError(t, err)

	_, err = env.Mappings().CreateMapping(ctx, tagmap.Mapping{EntityType: entityType, Label: "test", Category: "Other"})
	assert.Error(t, err, "duplicate mapping")

	require.NoError(t, env.Refresh(ctx))
	tags, _ = tagmap.CompanyTags(ctx, instance)
	assert.Equal(t, []string{"Testing: testing"}, tags)
	tags, _ = tagmap.CompanyTags(ctx, image)
	assert.Empty(t, tags, "mapping only applies to its entity type")

	require.NoError(t, env.Mappings().DeleteMapping(ctx, id))
	assert.ErrorIs(t, env.Mappings().DeleteMapping(ctx, id), tagmap.ErrMappingNotFound)

	require.NoError(t, env.Refresh(ctx))
	tags, _ = tagmap.CompanyTags(ctx, instance)
	assert.Empty(t, tags)
}

func TestEnvironment_UnsetTag(t *testing.T) {
	ctx := context.Background()
	env := New()
	env.AddEntity(tagmap.KindImage, "ami-1", "base", map[string]string{"env": "dev"})
	res, err := env.Lookup(tagmap.KindImage, "ami-1", "")
	require.NoError(t, err)

	require.NoError(t, res.UnsetTag(ctx, "env", "prod"))
	tags, _ := res.Tags(ctx)
	assert.Equal(t, "dev", tags["env"], "different value is kept")

	require.NoError(t, res.UnsetTag(ctx, "env", "dev"))
	require.NoError(t, res.UnsetTag(ctx, "env", "dev"))
	tags, _ = res.Tags(ctx)
	assert.Empty(t, tags)
}

func TestEnvironment_Lookup(t *testing.T) {
	env := New()
	env.AddEntity(tagmap.KindInstance, "i-1", "web", nil)

	_, err := env.Lookup(tagmap.KindImage, "i-1", "")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	_, err = env.Lookup(tagmap.KindInstance, "", "db")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	res, err := env.Lookup(tagmap.KindInstance, "", "web")
	require.NoError(t, err)
	assert.Equal(t, "i-1", res.ID())

	_, err = res.Read(context.Background(), "Power Management")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestEnvironment_RefreshErrors(t *testing.T) {
	env := New()
	boom := errors.New("refresh task failed")
	env.FailNextRefresh(boom)

	assert.ErrorIs(t, env.Refresh(context.Background()), boom)
	assert.NoError(t, env.Refresh(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, env.Refresh(ctx), context.Canceled)

	require.NoError(t, env.Nudge(context.Background()))
	refreshes, nudges := env.Stats()
	assert.Equal(t, 2, refreshes)
	assert.Equal(t, 1, nudges)
}
