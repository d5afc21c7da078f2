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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
	"github.com/caarlos0/env/v11"
	"sigs.k8s.io/yaml"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path
	ConfigPathEnvKey = "TAGCONVERGE_CONFIG_PATH"

	// EnvPrefix prefixes every environment variable override
	EnvPrefix = "TAGCONVERGE_"
)

// Duration is a time.Duration written as a string, e.g. "45s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config holds the configuration for tagconverge
type Config struct {
	// CasesDir is the directory holding the test case files
	CasesDir string `json:"casesDir" env:"CASES_DIR"`

	// ArtifactDir receives the run reports
	ArtifactDir string `json:"artifactDir" env:"ARTIFACT_DIR"`

	// Simulate runs against the in-memory provider instead of AWS
	Simulate bool `json:"simulate" env:"SIMULATE"`

	// SimulatedRefreshLag delays the visibility of simulated refreshes
	SimulatedRefreshLag Duration `json:"simulatedRefreshLag" env:"SIMULATED_REFRESH_LAG"`

	// DevelopmentMode enables development logging
	DevelopmentMode bool `json:"developmentMode" env:"DEV_MODE"`

	// Verbosity enables V(n) log lines up to n
	Verbosity int `json:"verbosity" env:"VERBOSITY"`

	// CleanupTimeout bounds every revert
	CleanupTimeout Duration `json:"cleanupTimeout" env:"CLEANUP_TIMEOUT"`

	// MetricsFile, if set, receives the run metrics in the Prometheus text format
	MetricsFile string `json:"metricsFile,omitempty" env:"METRICS_FILE"`

	// MetricsBind, if set, serves the metrics while the run is in progress
	MetricsBind string `json:"metricsBind,omitempty" env:"METRICS_ADDR"`

	// AWS configures the provider client
	AWS AWSConfig `json:"aws" envPrefix:"AWS_"`

	// Appliance configures the appliance REST client
	Appliance ApplianceConfig `json:"appliance" envPrefix:"APPLIANCE_"`
}

// AWSConfig configures the EC2 client. Empty values fall back to the default
// AWS configuration chain.
type AWSConfig struct {
	Region  string `json:"region,omitempty" env:"REGION"`
	Profile string `json:"profile,omitempty" env:"PROFILE"`
}

// ApplianceConfig configures the appliance client.
type ApplianceConfig struct {
	URL                string   `json:"url" env:"URL"`
	Username           string   `json:"username" env:"USERNAME"`
	Password           string   `json:"password" env:"PASSWORD"`
	InsecureSkipVerify bool     `json:"insecureSkipVerify" env:"INSECURE_SKIP_VERIFY"`
	CAFile             string   `json:"caFile,omitempty" env:"CA_FILE"`
	ClientCertFile     string   `json:"clientCertFile,omitempty" env:"CLIENT_CERT_FILE"`
	ClientKeyFile      string   `json:"clientKeyFile,omitempty" env:"CLIENT_KEY_FILE"`
	RequestTimeout     Duration `json:"requestTimeout" env:"REQUEST_TIMEOUT"`
	Retries            int      `json:"retries" env:"RETRIES"`

	// Provider is the name of the provider on the appliance
	Provider string `json:"provider" env:"PROVIDER"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		CasesDir:       testcase.DefaultTestCasePath(),
		ArtifactDir:    "artifacts",
		CleanupTimeout: Duration{time.Minute},
		Appliance: ApplianceConfig{
			RequestTimeout: Duration{30 * time.Second},
			Retries:        2,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file and applies
// environment variable overrides, then the given overrides, before
// validating. If configPath is empty, only environment variables are used.
func LoadConfig(configPath string, overrides ...func(*Config)) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}

		// Parse YAML (uses json tags)
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	for _, override := range overrides {
		override(config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.CasesDir == "" {
		errs = append(errs, errors.New("casesDir cannot be empty"))
	}

	if c.ArtifactDir == "" {
		errs = append(errs, errors.New("artifactDir cannot be empty"))
	}

	if c.Verbosity < 0 {
		errs = append(errs, errors.New("verbosity cannot be negative"))
	}

	if c.CleanupTimeout.Duration <= 0 {
		errs = append(errs, errors.New("cleanupTimeout must be positive"))
	}

	if c.SimulatedRefreshLag.Duration < 0 {
		errs = append(errs, errors.New("simulatedRefreshLag cannot be negative"))
	}

	if !c.Simulate {
		errs = append(errs, c.Appliance.validate()...)
	}

	return errors.Join(errs...)
}

func (a ApplianceConfig) validate() []error {
	var errs []error

	if a.URL == "" {
		errs = append(errs, errors.New("appliance.url cannot be empty"))
	}

	if a.Provider == "" {
		errs = append(errs, errors.New("appliance.provider cannot be empty"))
	}

	if a.Password != "" && a.Username == "" {
		errs = append(errs, errors.New("appliance.username is required with appliance.password"))
	}

	if (a.ClientCertFile == "") != (a.ClientKeyFile == "") {
		errs = append(errs, errors.New("appliance.clientCertFile and appliance.clientKeyFile must be set together"))
	}

	if a.Retries < 0 {
		errs = append(errs, errors.New("appliance.retries cannot be negative"))
	}

	return errs
}
