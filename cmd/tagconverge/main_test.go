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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexandremahdhaoui/tagconverge/pkg/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const labelsCase = `name: sim-labels
description: label shows up
type: labels
tags: [smoke]
entity:
  kind: instance
  name: web-1
timeouts:
  refresh: 1s
  wait: 1s
  delay: 5ms
`

const mappingCase = `name: sim-mapping
description: mapping assigns a company tag
type: mapping
tags: [mapping]
entity:
  kind: instance
  name: web-2
mapping:
  category: Testing
timeouts:
  refresh: 1s
  wait: 1s
  delay: 5ms
`

const unmatchedCase = `name: sim-unmatched
description: mapping on another entity type never converges
type: mapping
entity:
  kind: instance
  name: web-3
mapping:
  category: Testing
  entityType: Vm (VMware)
timeouts:
  refresh: 1s
  wait: 100ms
  delay: 10ms
`

func writeCases(t *testing.T, cases map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range cases {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv(ConfigPathEnvKey, "")
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExecute_Validate(t *testing.T) {
	dir := writeCases(t, map[string]string{"a.yaml": labelsCase, "b.yaml": mappingCase})

	code, stdout, _ := runCLI(t, "validate", "--cases-dir", dir)

	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "2 test case(s) valid")
}

func TestExecute_ValidateInvalidCase(t *testing.T) {
	dir := writeCases(t, map[string]string{"bad.yaml": "name: bad\ntype: labels\n"})

	code, _, stderr := runCLI(t, "validate", "--cases-dir", dir)

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "description is required")
}

func TestExecute_List(t *testing.T) {
	dir := writeCases(t, map[string]string{"a.yaml": labelsCase, "b.yaml": mappingCase})

	code, stdout, _ := runCLI(t, "list", "--cases-dir", dir, "--tag", "smoke")
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "sim-labels")
	assert.NotContains(t, stdout, "sim-mapping")

	code, stdout, _ = runCLI(t, "list", "--cases-dir", dir, "--json")
	require.Equal(t, exitSuccess, code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	assert.Len(t, entries, 2)
}

func TestExecute_RunSimulated(t *testing.T) {
	dir := writeCases(t, map[string]string{"a.yaml": labelsCase, "b.yaml": mappingCase})
	artifacts := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "run.prom")
	t.Setenv(EnvPrefix+"ARTIFACT_DIR", artifacts)

	code, stdout, stderr := runCLI(t, "run", "--simulate", "--cases-dir", dir,
		"--format", "json", "--no-spinner", "--metrics-file", metricsFile)

	require.Equal(t, exitSuccess, code, stderr)

	var report reporting.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, reporting.StatusPassed, report.Status)
	assert.Equal(t, "simulated", report.Environment)
	assert.Equal(t, 2, report.Summary.Passed)

	assert.FileExists(t, filepath.Join(artifacts, report.RunID, "report.json"))
	assert.FileExists(t, filepath.Join(artifacts, report.RunID, "report.txt"))

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "tagconverge_scenario_outcomes_total")
}

func TestExecute_RunFailureExitsWithError(t *testing.T) {
	dir := writeCases(t, map[string]string{"a.yaml": labelsCase, "c.yaml": unmatchedCase})
	t.Setenv(EnvPrefix+"ARTIFACT_DIR", t.TempDir())

	code, stdout, stderr := runCLI(t, "run", "--simulate", "--cases-dir", dir, "--no-spinner")

	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout, "sim-unmatched")
	assert.NotContains(t, stderr, errRunFailed.Error())
}

func TestExecute_RunRequiresApplianceWhenLive(t *testing.T) {
	dir := writeCases(t, map[string]string{"a.yaml": labelsCase})

	code, _, stderr := runCLI(t, "run", "--cases-dir", dir, "--no-spinner")

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "appliance")
}

func TestExecute_RunRejectsUnknownFormat(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--simulate", "--format", "xml")

	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, `unsupported format "xml"`)
}
