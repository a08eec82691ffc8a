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

// Package engine runs a schema over a loaded table: rows with a null primary key are
// excluded, the rest are grouped by key and validated column by column through the
// dispatch table, and the cascade and group rejection policies decide what survives.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/audit"
	"github.com/aaronlmathis/goingest/filter"
	"github.com/aaronlmathis/goingest/schema"
	"github.com/aaronlmathis/goingest/validators"
)

const origin = "engine"

// EngineError wraps structured error information for Validate.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Report counts what one Validate call did.
type Report struct {
	RowsIn          int
	NullKeyExcluded int
	Groups          int
	GroupsRejected  int
	RowsRejected    int // Rows dropped by validation, null-key rows excluded
	RowsRetained    int
	Duration        time.Duration
}

// Engine validates tables against one schema within one run.
type Engine struct {
	schema *schema.Schema
	run    *audit.RunContext
	rules  *validators.Table
}

// New creates an engine bound to the run's audit buffer and cascade policy.
func New(s *schema.Schema, run *audit.RunContext) *Engine {
	return &Engine{schema: s, run: run, rules: validators.NewTable(run)}
}

// Validate returns the retained rows of in, grouped by primary key in key order,
// with in's column order. An empty result is not an error. A schema column missing
// from a row is.
func (e *Engine) Validate(ctx context.Context, in *goingest.Table) (*goingest.Table, Report, error) {
	start := time.Now()
	if in == nil {
		in = &goingest.Table{}
	}
	report := Report{RowsIn: in.Len()}
	out := &goingest.Table{Columns: append([]string(nil), in.Columns...)}

	keys := e.schema.PrimaryKey
	kept, excluded := filter.Partition(in.Rows, filter.NotNull(keys...))
	for _, row := range excluded {
		column, _ := filter.FirstNull(row.Values, keys...)
		e.run.Log(audit.TypeIngest, audit.ClassValidationReject, origin,
			fmt.Sprintf("row %d rejected: primary key %s is null", row.SourceIndex, column),
			audit.WithColumn(column), audit.WithRule("primary_key"), audit.WithSourceIndex(row.SourceIndex))
	}
	report.NullKeyExcluded = len(excluded)

	groups := NewGroupBy(keys...).Group(kept)
	report.Groups = len(groups)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, report, &EngineError{Op: "validate", Err: err}
		}
		if err := e.validateGroup(g, out, &report); err != nil {
			return nil, report, err
		}
	}

	report.RowsRetained = out.Len()
	report.Duration = time.Since(start)
	return out, report, nil
}

type rowFailure struct {
	index   int
	reasons []string
}

func (e *Engine) validateGroup(g Group, out *goingest.Table, report *Report) error {
	var failures []rowFailure
	for _, row := range g.Rows {
		reasons, err := e.validateRow(row)
		if err != nil {
			return err
		}
		failed := len(reasons) > 0

		if !e.schema.GroupReject {
			if failed {
				report.RowsRejected++
				e.rejectRow(row, reasons)
			} else {
				e.retain(out, row)
			}
			continue
		}

		if failed {
			failures = append(failures, rowFailure{index: row.SourceIndex, reasons: reasons})
			if e.run.CascadeReject {
				break
			}
		}
	}

	if !e.schema.GroupReject {
		return nil
	}
	if len(failures) == 0 {
		for _, row := range g.Rows {
			e.retain(out, row)
		}
		return nil
	}

	report.GroupsRejected++
	report.RowsRejected += len(g.Rows)

	indices := make([]int, len(failures))
	details := make([]string, len(failures))
	for i, f := range failures {
		indices[i] = f.index
		details[i] = fmt.Sprintf("row %d: %s", f.index, strings.Join(f.reasons, "; "))
	}
	e.run.Log(audit.TypeIngest, audit.ClassValidationReject, origin,
		fmt.Sprintf("group %s rejected: rows %v failed (%s)", g.Key, indices, strings.Join(details, "; ")),
		audit.WithRule("group_reject"))
	return nil
}

// validateRow runs every column's rules in declaration order and returns the
// failure reasons. Under cascade the first failing rule ends the column and the
// first failing column ends the row.
func (e *Engine) validateRow(row goingest.Row) ([]string, error) {
	var reasons []string
	for _, col := range e.schema.Columns {
		value, ok := row.Get(col.Name)
		if !ok {
			return nil, &EngineError{
				Op:  "validate",
				Err: fmt.Errorf("row %d: %w", row.SourceIndex, &goingest.MissingColumnsError{Columns: []string{col.Name}}),
			}
		}

		columnFailed := false
		for _, rule := range col.Rules {
			res := e.rules.Invoke(rule, value, col.Name, row.SourceIndex)
			if !res.Failed() {
				continue
			}
			columnFailed = true
			reasons = append(reasons, col.Name+": "+res.Message)
			if e.run.CascadeReject {
				break
			}
		}
		if columnFailed && e.run.CascadeReject {
			break
		}
	}
	return reasons, nil
}

func (e *Engine) rejectRow(row goingest.Row, reasons []string) {
	e.run.Log(audit.TypeIngest, audit.ClassValidationReject, origin,
		fmt.Sprintf("row %d rejected: %s", row.SourceIndex, strings.Join(reasons, "; ")),
		audit.WithSourceIndex(row.SourceIndex))
}

func (e *Engine) retain(out *goingest.Table, row goingest.Row) {
	out.Rows = append(out.Rows, row)
	e.run.Log(audit.TypeIngest, audit.ClassValidationAccept, origin,
		fmt.Sprintf("row %d accepted", row.SourceIndex),
		audit.WithSourceIndex(row.SourceIndex))
}
