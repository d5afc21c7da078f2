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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "test/cases", config.CasesDir)
	assert.Equal(t, "artifacts", config.ArtifactDir)
	assert.Equal(t, time.Minute, config.CleanupTimeout.Duration)
	assert.Equal(t, 30*time.Second, config.Appliance.RequestTimeout.Duration)
	assert.False(t, config.Simulate)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
casesDir: cases
verbosity: 2
cleanupTimeout: 90s
aws:
  region: us-east-1
appliance:
  url: https://appliance.example.com
  username: admin
  password: smartvm
  provider: ec2-east
  requestTimeout: 10s
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "cases", config.CasesDir)
	assert.Equal(t, 2, config.Verbosity)
	assert.Equal(t, 90*time.Second, config.CleanupTimeout.Duration)
	assert.Equal(t, "us-east-1", config.AWS.Region)
	assert.Equal(t, "ec2-east", config.Appliance.Provider)
	assert.Equal(t, 10*time.Second, config.Appliance.RequestTimeout.Duration)
	assert.Equal(t, 2, config.Appliance.Retries)
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	configPath := writeConfig(t, "config.json", `{"simulate": true, "simulatedRefreshLag": "2s"}`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.True(t, config.Simulate)
	assert.Equal(t, 2*time.Second, config.SimulatedRefreshLag.Duration)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "simulate: true\ncleanupTimeout: soon\n")

	config, err := LoadConfig(configPath)
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TAGCONVERGE_SIMULATE", "false")
	t.Setenv("TAGCONVERGE_CASES_DIR", "env-cases")
	t.Setenv("TAGCONVERGE_CLEANUP_TIMEOUT", "3m")
	t.Setenv("TAGCONVERGE_APPLIANCE_URL", "https://env.example.com")
	t.Setenv("TAGCONVERGE_APPLIANCE_PROVIDER", "ec2-west")
	t.Setenv("TAGCONVERGE_AWS_PROFILE", "qe")
	configPath := writeConfig(t, "config.yaml", "simulate: true\ncasesDir: file-cases\n")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.False(t, config.Simulate)
	assert.Equal(t, "env-cases", config.CasesDir)
	assert.Equal(t, 3*time.Minute, config.CleanupTimeout.Duration)
	assert.Equal(t, "https://env.example.com", config.Appliance.URL)
	assert.Equal(t, "ec2-west", config.Appliance.Provider)
	assert.Equal(t, "qe", config.AWS.Profile)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr []string
	}{
		{
			name:   "simulated defaults",
			mutate: func(c *Config) { c.Simulate = true },
		},
		{
			name:    "live without appliance",
			mutate:  func(c *Config) {},
			wantErr: []string{"appliance.url cannot be empty", "appliance.provider cannot be empty"},
		},
		{
			name: "password without username",
			mutate: func(c *Config) {
				c.Appliance = ApplianceConfig{URL: "https://a", Provider: "p", Password: "x"}
			},
			wantErr: []string{"appliance.username is required"},
		},
		{
			name: "client cert without key",
			mutate: func(c *Config) {
				c.Appliance = ApplianceConfig{URL: "https://a", Provider: "p", ClientCertFile: "cert.pem"}
			},
			wantErr: []string{"appliance.clientCertFile and appliance.clientKeyFile must be set together"},
		},
		{
			name: "bad values",
			mutate: func(c *Config) {
				c.Simulate = true
				c.CasesDir = ""
				c.Verbosity = -1
				c.CleanupTimeout = Duration{}
			},
			wantErr: []string{"casesDir cannot be empty", "verbosity cannot be negative", "cleanupTimeout must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}
