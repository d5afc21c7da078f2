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

// Package reporting renders run reports as JSON or text.
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReportFormat specifies the output format for reports
type ReportFormat string

const (
	// FormatJSON produces JSON-formatted reports
	FormatJSON ReportFormat = "json"
	// FormatText produces human-readable text reports
	FormatText ReportFormat = "text"
)

// Reporter generates run reports in various formats
type Reporter struct {
	artifactDir string
}

// NewReporter creates a new reporter instance
func NewReporter(artifactDir string) *Reporter {
	return &Reporter{
		artifactDir: artifactDir,
	}
}

// GenerateReport generates a report in the specified format and returns it as a string
func (r *Reporter) GenerateReport(report *Report, format ReportFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(report)
	case FormatText:
		return formatText(report), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// ReportPath returns where WriteReport writes a report.
func (r *Reporter) ReportPath(report *Report, format ReportFormat) (string, error) {
	var filename string
	switch format {
	case FormatJSON:
		filename = "report.json"
	case FormatText:
		filename = "report.txt"
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return filepath.Join(r.artifactDir, report.RunID, filename), nil
}

// WriteReport generates a report and writes it under the artifact directory
func (r *Reporter) WriteReport(report *Report, format ReportFormat) (string, error) {
	content, err := r.GenerateReport(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	reportPath, err := r.ReportPath(report, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return reportPath, nil
}

// PrintSummary prints a concise summary of the run to w
func (r *Reporter) PrintSummary(w io.Writer, report *Report) error {
	_, err := io.WriteString(w, formatSummary(report))
	return err
}
