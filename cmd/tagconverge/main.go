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

// Command tagconverge runs tag mapping test cases against a cloud provider
// and the appliance inventorying it, waiting for every change to be observed
// and reverting it afterwards.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alexandremahdhaoui/tagconverge/internal/util/logging"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitSuccess = 0 // Every scenario passed
	exitError   = 1 // Command execution error, including scenario failures
)

// errRunFailed is returned by run when a scenario did not pass. The report
// already describes the failure.
var errRunFailed = errors.New("one or more scenarios failed")

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath  string
	casesDir    string
	simulate    bool
	verbosity   int
	development bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitError
	}
	return exitSuccess
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tagconverge",
		Short: "Verify that provider tags converge into appliance labels and company tags",
		Long: `tagconverge applies provider tag and tag mapping changes, waits until the
appliance observes them, asserts on what it displays and reverts every change.

Test cases are YAML files (default directory: test/cases). Configuration is read
from --config or ` + ConfigPathEnvKey + `, then from ` + EnvPrefix + `* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv(ConfigPathEnvKey), "Path to a JSON or YAML config file")
	flags.StringVar(&opts.casesDir, "cases-dir", "", "Test case directory (overrides casesDir)")
	flags.BoolVar(&opts.simulate, "simulate", false, "Run against the in-memory provider")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity")
	flags.BoolVar(&opts.development, "dev", false, "Human-readable logs")

	cmd.AddCommand(
		newRunCommand(opts),
		newListCommand(opts),
		newValidateCommand(opts),
		newCheckCredentialsCommand(opts),
	)

	return cmd
}

// loadConfig loads the configuration and applies the flags set on cmd.
func (o *rootOptions) loadConfig(cmd *cobra.Command, overrides ...func(*Config)) (*Config, error) {
	flags := cmd.Flags()
	overrides = append([]func(*Config){func(c *Config) {
		if flags.Changed("cases-dir") {
			c.CasesDir = o.casesDir
		}
		if flags.Changed("simulate") {
			c.Simulate = o.simulate
		}
		if flags.Changed("verbose") {
			c.Verbosity = o.verbosity
		}
		if flags.Changed("dev") {
			c.DevelopmentMode = o.development
		}
	}}, overrides...)

	return LoadConfig(o.configPath, overrides...)
}

// setupLogging configures slog and returns the logger passed to libraries.
func setupLogging(cmd *cobra.Command, cfg *Config) logr.Logger {
	level := slog.LevelInfo
	if cfg.Verbosity > 0 {
		level = slog.LevelDebug
	}
	return logging.Setup(logging.Options{
		Development: cfg.DevelopmentMode,
		Level:       level,
		Verbosity:   cfg.Verbosity,
		Output:      cmd.ErrOrStderr(),
	})
}
