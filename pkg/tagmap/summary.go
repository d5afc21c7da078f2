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

// Package tagmap holds the tag mapping domain: the entity summary fields an
// appliance displays, the conditions polled on them, and the mapping rules
// turning provider labels into company tags.
package tagmap

import (
	"context"
	"fmt"
	"slices"

	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
)

// Summary fields and rows of an entity details page.
const (
	FieldLabels          = "Labels"
	FieldSmartManagement = "Smart Management"

	RowCompanyTags = "My Company Tags"
	// NoCompanyTags is displayed in place of the company tags when none are
	// assigned.
	NoCompanyTags = "No My Company Tags have been assigned"
)

// Summary is one summary table: row name to displayed values.
type Summary map[string][]string

// Get returns the first value of a row.
func (s Summary) Get(row string) (string, bool) {
	values, ok := s[row]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Has reports whether the row is displayed.
func (s Summary) Has(row string) bool {
	_, ok := s[row]
	return ok
}

// Reader reads a summary field of the entity under test.
type Reader interface {
	Read(ctx context.Context, field string) (Summary, error)
}

// FormatCompanyTag renders a company tag the way the appliance displays it.
func FormatCompanyTag(category, value string) string {
	return fmt.Sprintf("%s: %s", category, value)
}

// CompanyTags returns the company tags assigned to the entity. The empty
// marker is reported as no tags.
func CompanyTags(ctx context.Context, r Reader) ([]string, error) {
	summary, err := r.Read(ctx, FieldSmartManagement)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, v := range summary[RowCompanyTags] {
		if v == NoCompanyTags {
			continue
		}
		tags = append(tags, v)
	}
	return tags, nil
}

// LabelEquals is satisfied when the Labels row key displays value.
func LabelEquals(r Reader, key, value string) poll.Condition {
	return func(ctx context.Context) (bool, any, error) {
		labels, err := r.Read(ctx, FieldLabels)
		if err != nil {
			return false, nil, err
		}
		got, ok := labels.Get(key)
		return ok && got == value, got, nil
	}
}

// LabelAbsent is satisfied when the Labels field has no row key.
func LabelAbsent(r Reader, key string) poll.Condition {
	return func(ctx context.Context) (bool, any, error) {
		labels, err := r.Read(ctx, FieldLabels)
		if err != nil {
			return false, nil, err
		}
		got, ok := labels.Get(key)
		return !labels.Has(key), fmt.Sprintf("%s present=%t value=%q", key, ok, got), nil
	}
}

// CompanyTagsAssigned is satisfied as soon as any company tag is displayed.
func CompanyTagsAssigned(r Reader) poll.Condition {
	return func(ctx context.Context) (bool, any, error) {
		tags, err := CompanyTags(ctx, r)
		if err != nil {
			return false, nil, err
		}
		return len(tags) > 0, tags, nil
	}
}

// CompanyTagPresent is satisfied when "category: value" is displayed.
func CompanyTagPresent(r Reader, category, value string) poll.Condition {
	want := FormatCompanyTag(category, value)
	return func(ctx context.Context) (bool, any, error) {
		tags, err := CompanyTags(ctx, r)
		if err != nil {
			return false, nil, err
		}
		return slices.Contains(tags, want), tags, nil
	}
}

// CompanyTagAbsent is satisfied when "category: value" is not displayed.
func CompanyTagAbsent(r Reader, category, value string) poll.Condition {
	want := FormatCompanyTag(category, value)
	return func(ctx context.Context) (bool, any, error) {
		tags, err := CompanyTags(ctx, r)
		if err != nil {
			return false, nil, err
		}
		return !slices.Contains(tags, want), tags, nil
	}
}
