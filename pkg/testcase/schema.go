package testcase

import (
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
)

// Test case types.
const (
	// TypeLabels sets a provider tag and expects it in the Labels field.
	TypeLabels = "labels"
	// TypeMapping sets a provider tag, maps its label to a category and
	// expects the company tag in the Smart Management field.
	TypeMapping = "mapping"
	// TypeCompanyTags maps the label of an already tagged entity and expects
	// company tags to be assigned.
	TypeCompanyTags = "company_tags"
)

// Defaults applied when a timeout is not specified.
const (
	DefaultRefreshTimeout = 600 * time.Second
	DefaultWaitTimeout    = poll.DefaultTimeout
	DefaultDelay          = poll.DefaultDelay
)

// TestCase represents a tag mapping test case loaded from YAML.
type TestCase struct {
	// Name is the human-readable test case name
	Name string `yaml:"name"`

	// Description provides detailed information about what this test validates
	Description string `yaml:"description"`

	// Tags are labels for categorizing and filtering test cases
	Tags []string `yaml:"tags,omitempty"`

	// Type is one of labels, mapping, company_tags
	Type string `yaml:"type"`

	// Entity is the provider entity the test case mutates or reads
	Entity EntitySpec `yaml:"entity"`

	// Tag is the provider tag. Key and value are generated when empty,
	// except for company_tags where they describe the existing tag.
	Tag TagSpec `yaml:"tag,omitempty"`

	// Mapping configures the tag mapping rule (mapping and company_tags)
	Mapping *MappingSpec `yaml:"mapping,omitempty"`

	// VerifyRemoval checks that the label or company tag disappears after
	// the revert. Defaults to true for labels and mapping.
	VerifyRemoval *bool `yaml:"verifyRemoval,omitempty"`

	// Timeouts contains timeout configurations for the consistency waits
	Timeouts TimeoutSpec `yaml:"timeouts,omitempty"`

	// ExpectedOutcome is the outcome the run is expected to produce. Reports
	// flag scenarios that end differently.
	ExpectedOutcome *ExpectedOutcome `yaml:"expectedOutcome,omitempty"`

	// File is the path the test case was loaded from
	File string `yaml:"-"`
}

// EntitySpec identifies a provider entity.
type EntitySpec struct {
	// Kind is instance or image
	Kind tagmap.EntityKind `yaml:"kind"`

	// ID is the provider ID (i-..., ami-...). Takes precedence over Name.
	ID string `yaml:"id,omitempty"`

	// Name is the value of the entity Name tag, or the image name
	Name string `yaml:"name,omitempty"`
}

// TagSpec defines a provider tag.
type TagSpec struct {
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// MappingSpec defines a tag mapping rule.
type MappingSpec struct {
	// Category is the company tag category the label maps to
	Category string `yaml:"category"`

	// EntityType is the entity type option. Resolved from the provider type
	// and entity kind when empty.
	EntityType string `yaml:"entityType,omitempty"`
}

// TimeoutSpec defines timeout configurations.
type TimeoutSpec struct {
	// Refresh is the max wait for a provider refresh task
	Refresh DurationString `yaml:"refresh,omitempty"`

	// Wait is the max wait for the change to be observed
	Wait DurationString `yaml:"wait,omitempty"`

	// Delay is the interval between two observations
	Delay DurationString `yaml:"delay,omitempty"`

	// BackoffFactor grows the delay after each observation (>= 1)
	BackoffFactor float64 `yaml:"backoffFactor,omitempty"`

	// MaxDelay caps the delay when BackoffFactor is set
	MaxDelay DurationString `yaml:"maxDelay,omitempty"`
}

// DurationString is a wrapper for time.Duration that supports YAML unmarshaling.
type DurationString string

// Duration parses the DurationString into a time.Duration.
func (d DurationString) Duration() (time.Duration, error) {
	if d == "" {
		return 0, nil
	}
	return time.ParseDuration(string(d))
}

// ExpectedOutcome describes the expected test outcome.
type ExpectedOutcome struct {
	// Status is a report status (passed, failed, error) or a scenario
	// outcome (wait_failed, assertion_failed...).
	Status string `yaml:"status,omitempty"`

	// Description describes the expected outcome
	Description string `yaml:"description,omitempty"`
}

// ShouldVerifyRemoval reports whether the post-revert check runs.
func (tc *TestCase) ShouldVerifyRemoval() bool {
	if tc.VerifyRemoval != nil {
		return *tc.VerifyRemoval
	}
	return tc.Type != TypeCompanyTags
}

// PollPolicy returns the consistency wait policy with defaults applied.
func (tc *TestCase) PollPolicy() (poll.Policy, error) {
	policy := poll.Policy{
		Timeout: DefaultWaitTimeout,
		Delay:   DefaultDelay,
		Factor:  tc.Timeouts.BackoffFactor,
	}

	if d, err := tc.Timeouts.Wait.Duration(); err != nil {
		return poll.Policy{}, err
	} else if d > 0 {
		policy.Timeout = d
	}
	if d, err := tc.Timeouts.Delay.Duration(); err != nil {
		return poll.Policy{}, err
	} else if d > 0 {
		policy.Delay = d
	}
	if d, err := tc.Timeouts.MaxDelay.Duration(); err != nil {
		return poll.Policy{}, err
	} else if d > 0 {
		policy.MaxDelay = d
	}

	return policy, policy.Validate()
}

// RefreshTimeout returns the refresh timeout with defaults applied.
func (tc *TestCase) RefreshTimeout() time.Duration {
	d, err := tc.Timeouts.Refresh.Duration()
	if err != nil || d <= 0 {
		return DefaultRefreshTimeout
	}
	return d
}
