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

package reporting

import (
	"errors"
	"fmt"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
	"github.com/google/uuid"
)

// ReportVersion is the version of the report schema.
const ReportVersion = "1.0.0"

// Report statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// Report is the result of one run.
type Report struct {
	Version     string           `json:"version"`
	RunID       string           `json:"run_id"`
	Environment string           `json:"environment"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    float64          `json:"duration_seconds"`
	Status      string           `json:"status"`
	Scenarios   []ScenarioReport `json:"scenarios"`
	Summary     Summary          `json:"summary"`
}

// ScenarioReport is the result of one scenario.
type ScenarioReport struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	File           string   `json:"file,omitempty"`
	Type           string   `json:"type,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Outcome        string   `json:"outcome"`
	Status         string   `json:"status"`
	Duration       float64  `json:"duration_seconds"`
	WaitAttempts   int      `json:"wait_attempts,omitempty"`
	SettleAttempts int      `json:"settle_attempts,omitempty"`
	Mutation       string   `json:"mutation,omitempty"`
	Error          string   `json:"error,omitempty"`
	Expected       string   `json:"expected,omitempty"`
	Actual         string   `json:"actual,omitempty"`
	CleanupError   string   `json:"cleanup_error,omitempty"`

	// ExpectedOutcome is the status or outcome declared by the test case.
	ExpectedOutcome string `json:"expected_outcome,omitempty"`
	// Unexpected is set when the scenario did not end as declared.
	Unexpected bool `json:"unexpected,omitempty"`
}

// Summary counts scenarios by status.
type Summary struct {
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Errors          int     `json:"errors"`
	CleanupFailures int     `json:"cleanup_failures"`
	Unexpected      int     `json:"unexpected"`
	PassRate        float64 `json:"pass_rate"`
}

// NewRunID returns a unique run ID.
func NewRunID() string {
	return uuid.NewString()
}

// StatusOf maps a scenario outcome to a report status.
func StatusOf(outcome scenario.Outcome) string {
	switch outcome {
	case scenario.OutcomePassed:
		return StatusPassed
	case scenario.OutcomeAssertionFailed, scenario.OutcomeWaitFailed:
		return StatusFailed
	default:
		return StatusError
	}
}

// NewReport builds a report from scenario results. cases, if given, annotate
// the scenarios with the same name.
func NewReport(runID, environment string, results []*scenario.Result, cases []*testcase.TestCase) *Report {
	byName := make(map[string]*testcase.TestCase, len(cases))
	for _, tc := range cases {
		byName[tc.Name] = tc
	}

	r := &Report{
		Version:     ReportVersion,
		RunID:       runID,
		Environment: environment,
		Status:      StatusPassed,
		Scenarios:   make([]ScenarioReport, 0, len(results)),
	}

	for i, res := range results {
		if i == 0 || res.Start.Before(r.StartTime) {
			r.StartTime = res.Start
		}
		if res.End.After(r.EndTime) {
			r.EndTime = res.End
		}

		sr := scenarioReport(res)
		if tc, ok := byName[res.Name]; ok {
			sr.Description = tc.Description
			sr.File = tc.File
			sr.Type = tc.Type
			sr.Tags = tc.Tags
			if tc.ExpectedOutcome != nil && tc.ExpectedOutcome.Status != "" {
				sr.ExpectedOutcome = tc.ExpectedOutcome.Status
				sr.Unexpected = sr.ExpectedOutcome != sr.Status && sr.ExpectedOutcome != sr.Outcome
			}
		}
		r.Scenarios = append(r.Scenarios, sr)

		r.Summary.Total++
		switch sr.Status {
		case StatusPassed:
			r.Summary.Passed++
		case StatusFailed:
			r.Summary.Failed++
		default:
			r.Summary.Errors++
		}
		if sr.CleanupError != "" {
			r.Summary.CleanupFailures++
		}
		if sr.Unexpected {
			r.Summary.Unexpected++
		}
	}

	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	if r.Summary.Total > 0 {
		r.Summary.PassRate = float64(r.Summary.Passed) / float64(r.Summary.Total)
	}
	switch {
	case r.Summary.Errors > 0:
		r.Status = StatusError
	case r.Summary.Failed > 0:
		r.Status = StatusFailed
	}
	return r
}

func scenarioReport(res *scenario.Result) ScenarioReport {
	sr := ScenarioReport{
		Name:     res.Name,
		Outcome:  string(res.Outcome),
		Status:   StatusOf(res.Outcome),
		Duration: res.Duration.Seconds(),
	}
	if !res.Token.IsZero() {
		sr.Mutation = res.Token.String()
	}
	if res.Wait != nil {
		sr.WaitAttempts = res.Wait.Attempts
	}
	if res.Settle != nil {
		sr.SettleAttempts = res.Settle.Attempts
	}
	if res.Err != nil {
		sr.Error = res.Err.Error()
		var mismatch *scenario.AssertionMismatch
		if errors.As(res.Err, &mismatch) {
			sr.Expected = fmt.Sprint(mismatch.Expected)
			sr.Actual = fmt.Sprint(mismatch.Actual)
		}
	}
	if res.CleanupError != nil {
		sr.CleanupError = res.CleanupError.Error()
	}
	return sr
}

// ExitCode returns 0 when every scenario passed, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Status == StatusPassed {
		return 0
	}
	return 1
}
