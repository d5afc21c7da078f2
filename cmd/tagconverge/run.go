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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/internal/appliance"
	"github.com/alexandremahdhaoui/tagconverge/internal/harness"
	"github.com/alexandremahdhaoui/tagconverge/internal/metrics"
	"github.com/alexandremahdhaoui/tagconverge/internal/provider/ec2"
	"github.com/alexandremahdhaoui/tagconverge/internal/provider/simulated"
	"github.com/alexandremahdhaoui/tagconverge/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/tagconverge/internal/util/tlsutil"
	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/reporting"
	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/alexandremahdhaoui/tagconverge/pkg/testcase"
	"github.com/briandowns/spinner"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

const (
	environmentSimulated = "simulated"
	environmentLive      = "live"
)

type runOptions struct {
	tags        []string
	format      string
	noSpinner   bool
	metricsFile string
	metricsAddr string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run test cases and write a report",
		Long: `Run every test case of the cases directory, or the given files.

Each test case applies its change, refreshes the provider, waits until the
appliance shows the expected state, asserts on it and reverts the change.
The command exits with 1 if any scenario did not pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch reporting.ReportFormat(opts.format) {
			case reporting.FormatText, reporting.FormatJSON:
			default:
				return fmt.Errorf("unsupported format %q", opts.format)
			}

			cfg, err := root.loadConfig(cmd, func(c *Config) {
				if cmd.Flags().Changed("metrics-file") {
					c.MetricsFile = opts.metricsFile
				}
				if cmd.Flags().Changed("metrics-addr") {
					c.MetricsBind = opts.metricsAddr
				}
			})
			if err != nil {
				return err
			}
			return run(cmd, cfg, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.tags, "tag", nil, "Only run test cases carrying all these tags")
	flags.StringVar(&opts.format, "format", string(reporting.FormatText), "Output format: text or json")
	flags.BoolVar(&opts.noSpinner, "no-spinner", false, "Disable the progress spinner")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics to this file")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve run metrics on this address while running")

	return cmd
}

func run(cmd *cobra.Command, cfg *Config, opts *runOptions, args []string) error {
	log := setupLogging(cmd, cfg)

	cases, err := loadCases(cfg.CasesDir, args)
	if err != nil {
		return err
	}
	cases = harness.Select(cases, opts.tags)
	if len(cases) == 0 {
		return fmt.Errorf("no test case matches tags %v", opts.tags)
	}

	rec := metrics.New()
	if cfg.MetricsBind != "" {
		stop := serveMetrics(setupMetricsServer(cfg.MetricsBind, rec), log)
		defer stop()
	}

	progress := newProgress(cmd.ErrOrStderr(), !opts.noSpinner)
	defer progress.Stop()

	poller := poll.New(
		poll.WithLogger(log),
		poll.WithObserver(rec),
		poll.WithObserver(progress),
	)
	runner := scenario.NewRunner(
		scenario.WithPoller(poller),
		scenario.WithLogger(log),
		scenario.WithRecorder(rec),
		scenario.WithCleanupTimeout(cfg.CleanupTimeout.Duration),
	)

	gs := gracefulshutdown.New(cmd.Context(), "tagconverge", log)
	defer gs.Finish()
	ctx := gs.Context()

	env, envName, err := buildEnvironment(ctx, cfg, cases, log)
	if err != nil {
		return err
	}

	executor := harness.NewExecutor(env, runner, harness.WithLogger(log))

	done := gs.Track()
	gs.Ready()
	results, execErr := executor.ExecuteAll(ctx, cases)
	done()
	progress.Stop()

	report := reporting.NewReport(reporting.NewRunID(), envName, results, cases)
	if err := writeReport(cmd, cfg, report, reporting.ReportFormat(opts.format), log); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Error(err, "writing metrics", "path", cfg.MetricsFile)
		}
	}

	if execErr != nil {
		log.V(1).Info("run finished with errors", "error", execErr.Error())
	}
	if report.ExitCode() != exitSuccess {
		return errRunFailed
	}
	return nil
}

func loadCases(dir string, files []string) ([]*testcase.TestCase, error) {
	loader := testcase.NewLoader("")

	var (
		cases []*testcase.TestCase
		errs  []error
	)
	if len(files) > 0 {
		cases, errs = loader.LoadMultiple(files)
	} else {
		cases, errs = loader.LoadDir(dir)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cases, nil
}

func buildEnvironment(ctx context.Context, cfg *Config, cases []*testcase.TestCase, log logr.Logger) (harness.Environment, string, error) {
	if cfg.Simulate {
		sim := harness.NewSimulated(simulated.New(simulated.WithRefreshLag(cfg.SimulatedRefreshLag.Duration)))
		sim.Seed(cases)
		return sim, environmentSimulated, nil
	}

	provider, err := ec2.NewClient(ctx, ec2.Config{Region: cfg.AWS.Region, Profile: cfg.AWS.Profile}, log.WithName("ec2"))
	if err != nil {
		return nil, "", err
	}
	app, err := newApplianceClient(cfg, log)
	if err != nil {
		return nil, "", err
	}
	live, err := harness.NewLive(ctx, provider, app, cfg.Appliance.Provider)
	if err != nil {
		return nil, "", err
	}
	return live, environmentLive, nil
}

func newApplianceClient(cfg *Config, log logr.Logger) (*appliance.Client, error) {
	return appliance.New(appliance.Config{
		URL:      cfg.Appliance.URL,
		Username: cfg.Appliance.Username,
		Password: cfg.Appliance.Password,
		TLS: tlsutil.Config{
			CAPath:             cfg.Appliance.CAFile,
			CertPath:           cfg.Appliance.ClientCertFile,
			KeyPath:            cfg.Appliance.ClientKeyFile,
			InsecureSkipVerify: cfg.Appliance.InsecureSkipVerify,
		},
		RequestTimeout: cfg.Appliance.RequestTimeout.Duration,
		Retries:        cfg.Appliance.Retries,
	}, log.WithName("appliance"))
}

// writeReport stores the JSON and text reports under the artifact directory
// and prints the requested format to stdout.
func writeReport(cmd *cobra.Command, cfg *Config, report *reporting.Report, format reporting.ReportFormat, log logr.Logger) error {
	reporter := reporting.NewReporter(cfg.ArtifactDir)

	for _, f := range []reporting.ReportFormat{reporting.FormatJSON, reporting.FormatText} {
		path, err := reporter.WriteReport(report, f)
		if err != nil {
			log.Error(err, "writing report", "format", f)
			continue
		}
		log.Info("report written", "path", path)
	}

	if format == reporting.FormatJSON {
		out, err := reporter.GenerateReport(report, reporting.FormatJSON)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	}
	return reporter.PrintSummary(cmd.OutOrStdout(), report)
}

// progress shows the current consistency wait on a spinner.
type progress struct {
	s *spinner.Spinner
}

func newProgress(w io.Writer, enabled bool) *progress {
	if !enabled {
		return &progress{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " waiting for consistency"
	s.Start()
	return &progress{s: s}
}

// ObserveAttempt implements poll.Observer.
func (p *progress) ObserveAttempt(a poll.Attempt) {
	if p.s == nil {
		return
	}
	p.s.Lock()
	p.s.Suffix = fmt.Sprintf(" waiting for consistency: attempt %d, %s elapsed", a.Number, a.Elapsed.Round(time.Second))
	p.s.Unlock()
}

func (p *progress) Stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
