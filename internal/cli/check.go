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
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/goingest/schema"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(_ *RootOptions) *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a schema document without reading any data",
		Long: `Decode a schema and run the integrity checker over it. Every problem found
is reported at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, schemaPath)
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runCheck(cmd *cobra.Command, path string) error {
	s, err := schema.Load(path)
	if err != nil {
		var integrity *schema.IntegrityError
		if errors.As(err, &integrity) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d problem(s)\n", path, len(integrity.Problems))
			for _, p := range integrity.Problems {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
			}
			return fmt.Errorf("schema %s is invalid", path)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d columns, primary key %s, group_reject=%v)\n",
		path, len(s.Columns), strings.Join(s.PrimaryKey, ", "), s.GroupReject)
	return nil
}
