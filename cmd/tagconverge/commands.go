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
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/alexandremahdhaoui/tagconverge/internal/harness"
	"github.com/alexandremahdhaoui/tagconverge/internal/provider/ec2"
	"github.com/spf13/cobra"
)

func newListCommand(root *rootOptions) *cobra.Command {
	var (
		tags   []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list [files...]",
		Short: "List test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, func(c *Config) { c.Simulate = true })
			if err != nil {
				return err
			}
			cases, err := loadCases(cfg.CasesDir, args)
			if err != nil {
				return err
			}
			cases = harness.Select(cases, tags)

			out := cmd.OutOrStdout()
			if asJSON {
				type entry struct {
					Name string   `json:"name"`
					Type string   `json:"type"`
					File string   `json:"file"`
					Tags []string `json:"tags,omitempty"`
				}
				entries := make([]entry, 0, len(cases))
				for _, tc := range cases {
					entries = append(entries, entry{Name: tc.Name, Type: tc.Type, File: tc.File, Tags: tc.Tags})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tENTITY\tTAGS")
			for _, tc := range cases {
				entity := tc.Entity.ID
				if entity == "" {
					entity = tc.Entity.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n", tc.Name, tc.Type, tc.Entity.Kind, entity, strings.Join(tc.Tags, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Only list test cases carrying all these tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate test case files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, func(c *Config) { c.Simulate = true })
			if err != nil {
				return err
			}
			cases, err := loadCases(cfg.CasesDir, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d test case(s) valid\n", len(cases))
			return nil
		},
	}
}

func newCheckCredentialsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-credentials",
		Short: "Check the AWS credentials and the appliance provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, func(c *Config) { c.Simulate = false })
			if err != nil {
				return err
			}
			log := setupLogging(cmd, cfg)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			provider, err := ec2.NewClient(ctx, ec2.Config{Region: cfg.AWS.Region, Profile: cfg.AWS.Profile}, log.WithName("ec2"))
			if err != nil {
				return err
			}
			identity, err := provider.CheckCredentials(ctx)
			if err != nil {
				return fmt.Errorf("checking AWS credentials: %w", err)
			}
			fmt.Fprintf(out, "AWS account %s as %s\n", identity.Account, identity.ARN)

			app, err := newApplianceClient(cfg, log)
			if err != nil {
				return err
			}
			p, err := app.FindProvider(ctx, cfg.Appliance.Provider)
			if err != nil {
				return fmt.Errorf("checking appliance provider: %w", err)
			}
			fmt.Fprintf(out, "Appliance provider %s (id %s, %s)\n", p.Name, p.ID, p.Type)
			return nil
		},
	}
}
