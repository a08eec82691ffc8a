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

package validators

import (
	"fmt"

	"github.com/aaronlmathis/goingest/audit"
	"github.com/aaronlmathis/goingest/schema"
)

// Result is the outcome of one rule invocation with its row context attached.
type Result struct {
	Valid       bool
	Severity    Severity
	Message     string // Rule message
	Detail      string // Message with row and column context, as logged
	RuleName    string
	ColumnName  string
	SourceIndex int
	LogClass    audit.LogClass
	Skipped     bool // The rule was unknown and not evaluated
}

// Failed reports whether the result counts against the row.
func (r Result) Failed() bool {
	return !r.Skipped && !r.Valid
}

// Invoker runs a rule for one cell.
type Invoker func(rule schema.Rule, value interface{}, column string, sourceIndex int) Result

// Table dispatches rules by kind. Every invocation that is not a clean accept is
// appended to the run's audit buffer.
type Table struct {
	run      *audit.RunContext
	invokers map[schema.RuleKind]Invoker
}

// NewTable builds the dispatch table for one run.
func NewTable(run *audit.RunContext) *Table {
	t := &Table{run: run, invokers: make(map[schema.RuleKind]Invoker)}
	for _, kind := range schema.RuleKinds() {
		if fn := ruleFunc(kind); fn != nil {
			t.invokers[kind] = t.wrap(kind, fn)
		}
	}
	return t
}

// ruleFunc maps a rule kind to its implementation.
func ruleFunc(kind schema.RuleKind) RuleFunc {
	switch kind {
	case schema.RuleRequired:
		return Required
	case schema.RuleFormat:
		return Format
	case schema.RuleValueRestriction:
		return ValueRestriction
	case schema.RuleDataType:
		return DataType
	case schema.RuleLimit:
		return Limit
	default:
		return nil
	}
}

// Invoke runs rule against value. Unknown rules are logged and skipped.
func (t *Table) Invoke(rule schema.Rule, value interface{}, column string, sourceIndex int) Result {
	invoke, ok := t.invokers[rule.Kind]
	if !ok {
		name := ruleName(rule)
		msg := fmt.Sprintf("unknown validation rule %q on column %s; rule skipped", name, column)
		t.run.Log(audit.TypeError, audit.ClassErrorRecoverable, "validators.dispatch", msg,
			audit.WithColumn(column), audit.WithRule(name), audit.WithSourceIndex(sourceIndex))
		return Result{
			Valid:       true,
			Severity:    Accept,
			Message:     msg,
			Detail:      msg,
			RuleName:    name,
			ColumnName:  column,
			SourceIndex: sourceIndex,
			LogClass:    audit.ClassErrorRecoverable,
			Skipped:     true,
		}
	}
	return invoke(rule, value, column, sourceIndex)
}

func ruleName(rule schema.Rule) string {
	if rule.Name != "" {
		return rule.Name
	}
	return rule.Kind.String()
}

// wrap turns a context-free rule into an Invoker that attaches row context, logs
// non-accept results and converts errors and panics into critical rejects.
func (t *Table) wrap(kind schema.RuleKind, fn RuleFunc) Invoker {
	origin := "validators." + kind.String()
	return func(rule schema.Rule, value interface{}, column string, sourceIndex int) (res Result) {
		res = Result{RuleName: ruleName(rule), ColumnName: column, SourceIndex: sourceIndex}

		defer func() {
			if r := recover(); r != nil {
				res = t.critical(res, origin, fmt.Errorf("panic: %v", r))
			}
		}()

		out, err := fn(rule, value)
		if err != nil {
			return t.critical(res, origin, err)
		}

		res.Valid = out.Valid
		res.Severity = out.Severity
		res.Message = out.Message
		switch out.Severity {
		case Accept:
			res.LogClass = audit.ClassValidationAccept
			res.Detail = fmt.Sprintf("row %d %s: %s", sourceIndex, column, out.Message)
			return res
		case Warn:
			res.LogClass = audit.ClassValidationWarn
			res.Detail = fmt.Sprintf("row %d %s: %s", sourceIndex, column, out.Message)
		default:
			res.LogClass = audit.ClassValidationReject
			res.Detail = fmt.Sprintf("row %d rejected at %s: %s", sourceIndex, column, out.Message)
		}
		t.run.Log(audit.TypeIngest, res.LogClass, origin, res.Detail,
			audit.WithColumn(column), audit.WithRule(res.RuleName), audit.WithSourceIndex(sourceIndex))
		return res
	}
}

func (t *Table) critical(res Result, origin string, err error) Result {
	res.Valid = false
	res.Severity = Reject
	res.Message = fmt.Sprintf("rule failed: %v", err)
	res.Detail = fmt.Sprintf("row %d rejected at %s: %s", res.SourceIndex, res.ColumnName, res.Message)
	res.LogClass = audit.ClassErrorCritical
	t.run.Log(audit.TypeException, audit.ClassErrorCritical, origin, res.Detail,
		audit.WithColumn(res.ColumnName), audit.WithRule(res.RuleName), audit.WithSourceIndex(res.SourceIndex))
	return res
}
