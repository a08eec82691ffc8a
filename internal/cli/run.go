//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoIngest.
//
// GoIngest is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoIngest is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoIngest. If not, see https://www.gnu.org/licenses/.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goingest/config"
	"github.com/aaronlmathis/goingest/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ConfigPath string
	Input      string
	SchemaPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate one input and deliver the retained rows",
		Long: `Load the schema and the input named by the config, validate every row,
write the retained rows to the configured sink and flush the audit logs.

A fatal error writes a crash log holding every buffered audit entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "run configuration file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input path or s3://bucket/key (overrides config)")
	cmd.Flags().StringVarP(&opts.SchemaPath, "schema", "s", "", "schema file (overrides config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runIngest(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger := rootOpts.logger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("configuration loaded", "config", cfg.String())

	res, err := runner.Run(cmd.Context(), runner.Options{
		Config:     cfg,
		Input:      opts.Input,
		SchemaPath: opts.SchemaPath,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Aborted {
		fmt.Fprintf(out, "session %s: no data loaded\n", res.SessionID)
	} else {
		r := res.Report
		fmt.Fprintf(out, "session %s: %d rows in, %d retained, %d rejected, %d null key\n",
			res.SessionID, r.RowsIn, r.RowsRetained, r.RowsRejected, r.NullKeyExcluded)
	}
	if res.SinkErr != nil {
		fmt.Fprintf(out, "sink failed: %v\n", res.SinkErr)
	}
	for _, o := range res.Outputs {
		fmt.Fprintf(out, "  %-8s %5d  %s\n", o.Group, o.Entries, o.Path)
	}
	return nil
}
