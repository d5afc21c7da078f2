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
	"fmt"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// formatText generates a human-readable text report
func formatText(report *Report) string {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString(bold("TAG CONVERGENCE REPORT") + "\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n\n")

	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 7) + "\n")
	fmt.Fprintf(&sb, "Run ID:       %s\n", report.RunID)
	fmt.Fprintf(&sb, "Environment:  %s\n", report.Environment)
	fmt.Fprintf(&sb, "Status:       %s\n", formatStatus(report.Status))
	fmt.Fprintf(&sb, "Duration:     %.2fs\n", report.Duration)
	fmt.Fprintf(&sb, "Started:      %s\n", report.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Completed:    %s\n\n", report.EndTime.Format(time.RFC3339))

	sb.WriteString("SCENARIOS\n")
	sb.WriteString(strings.Repeat("-", 9) + "\n")
	for i, s := range report.Scenarios {
		fmt.Fprintf(&sb, "[%d/%d] %s %s\n", i+1, len(report.Scenarios), formatStatus(s.Status), s.Name)
		if s.Type != "" {
			fmt.Fprintf(&sb, "  Type:       %s\n", s.Type)
		}
		if s.File != "" {
			fmt.Fprintf(&sb, "  File:       %s\n", s.File)
		}
		fmt.Fprintf(&sb, "  Outcome:    %s\n", s.Outcome)
		if s.Unexpected {
			fmt.Fprintf(&sb, "  %s   %s\n", yellow("Expected:"), s.ExpectedOutcome)
		}
		fmt.Fprintf(&sb, "  Duration:   %.2fs\n", s.Duration)
		if s.Mutation != "" {
			fmt.Fprintf(&sb, "  Mutation:   %s\n", s.Mutation)
		}
		if s.WaitAttempts > 0 {
			fmt.Fprintf(&sb, "  Attempts:   %d (settle %d)\n", s.WaitAttempts, s.SettleAttempts)
		}
		if s.CleanupError != "" {
			fmt.Fprintf(&sb, "  %s %s\n", yellow("Cleanup:"), wrapText(s.CleanupError, 14))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Total:    %d\n", report.Summary.Total)
	fmt.Fprintf(&sb, "Passed:   %d (%.1f%%)\n", report.Summary.Passed, report.Summary.PassRate*100)
	fmt.Fprintf(&sb, "Failed:   %d\n", report.Summary.Failed)
	fmt.Fprintf(&sb, "Errors:   %d\n\n", report.Summary.Errors)

	if report.Summary.Failed+report.Summary.Errors > 0 {
		sb.WriteString("FAILURES\n")
		sb.WriteString(strings.Repeat("-", 8) + "\n")
		n := 1
		for _, s := range report.Scenarios {
			if s.Status == StatusPassed {
				continue
			}
			fmt.Fprintf(&sb, "[%d] %s - %s\n", n, s.Name, s.Outcome)
			if s.Expected != "" || s.Actual != "" {
				fmt.Fprintf(&sb, "    Expected: %s\n", s.Expected)
				fmt.Fprintf(&sb, "    Actual:   %s\n", s.Actual)
			}
			if s.Error != "" {
				fmt.Fprintf(&sb, "    Message:  %s\n", wrapText(s.Error, 14))
			}
			sb.WriteString("\n")
			sb.WriteString(formatFailureGuidance(scenario.Outcome(s.Outcome)))
			sb.WriteString("\n")
			n++
		}
	}

	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "RUN RESULT: %s\n", formatStatus(report.Status))
	sb.WriteString(strings.Repeat("=", 80) + "\n")

	return sb.String()
}

// formatStatus formats status with color
func formatStatus(status string) string {
	switch status {
	case StatusPassed:
		return green("✓ PASSED")
	case StatusFailed:
		return red("✗ FAILED")
	case StatusError:
		return yellow("⚠ ERROR")
	default:
		return status
	}
}

// formatFailureGuidance provides troubleshooting guidance for a failed scenario
func formatFailureGuidance(outcome scenario.Outcome) string {
	var guidance strings.Builder

	guidance.WriteString("    Possible Causes:\n")

	switch outcome {
	case scenario.OutcomeWaitFailed:
		guidance.WriteString("    - The provider refresh did not pick up the change in time\n")
		guidance.WriteString("    - The tag mapping does not apply to this entity type\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Increase timeouts.wait or lower timeouts.delay\n")
		guidance.WriteString("    2. Check the refresh task of the provider on the appliance\n")

	case scenario.OutcomeAssertionFailed:
		guidance.WriteString("    - The appliance displays a different value than the provider holds\n")
		guidance.WriteString("    - Another mapping assigns a company tag first\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Compare the entity tags on the provider and the appliance\n")
		guidance.WriteString("    2. List existing tag mappings for the entity type\n")

	case scenario.OutcomeSetupFailed:
		guidance.WriteString("    - The entity does not exist or is ambiguous\n")
		guidance.WriteString("    - Provider or appliance credentials are invalid\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Run check-credentials\n")
		guidance.WriteString("    2. Verify entity.id or entity.name of the test case\n")

	case scenario.OutcomePanicked:
		guidance.WriteString("    - A condition, assertion or refresher panicked\n")
		guidance.WriteString("    - The mutation was reverted before the run stopped\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Check the stack trace printed on stderr\n")

	default:
		guidance.WriteString("    - The test case is invalid\n\n")
		guidance.WriteString("    Next Steps:\n")
		guidance.WriteString("    1. Run validate on the test case file\n")
	}

	return guidance.String()
}

// wrapText wraps text at word boundaries with indentation
func wrapText(text string, indent int) string {
	if len(text) <= 64 {
		return text
	}

	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0
	indentStr := strings.Repeat(" ", indent)

	for i, word := range words {
		if i > 0 && lineLen+len(word)+1 > 64 {
			result.WriteString("\n" + indentStr)
			lineLen = 0
		} else if i > 0 {
			result.WriteString(" ")
			lineLen++
		}
		result.WriteString(word)
		lineLen += len(word)
	}

	return result.String()
}

// formatSummary formats a concise summary for stdout
func formatSummary(report *Report) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Run ID:    %s\n", report.RunID)
	fmt.Fprintf(&sb, "Status:    %s\n", formatStatus(report.Status))
	fmt.Fprintf(&sb, "Duration:  %.2fs\n", report.Duration)
	fmt.Fprintf(&sb, "Scenarios: %d total, %d passed, %d failed, %d errors (%.1f%% pass rate)\n",
		report.Summary.Total, report.Summary.Passed, report.Summary.Failed, report.Summary.Errors,
		report.Summary.PassRate*100)
	if report.Summary.CleanupFailures > 0 {
		fmt.Fprintf(&sb, "%s %d scenario(s) may have left provider state behind\n",
			yellow("Cleanup failures:"), report.Summary.CleanupFailures)
	}
	if report.Summary.Unexpected > 0 {
		fmt.Fprintf(&sb, "%s %d scenario(s) did not end with their expected outcome\n",
			yellow("Unexpected:"), report.Summary.Unexpected)
	}

	if report.Status != StatusPassed {
		sb.WriteString("\n" + red("Quick Failure Summary:") + "\n")
		n := 1
		for _, s := range report.Scenarios {
			if s.Status == StatusPassed {
				continue
			}
			fmt.Fprintf(&sb, "  %d. %s: %s\n", n, s.Name, s.Outcome)
			n++
		}
	}

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	return sb.String()
}
