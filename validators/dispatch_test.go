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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goingest/audit"
	"github.com/aaronlmathis/goingest/schema"
)

func newTable() (*Table, *audit.RunContext) {
	rc := audit.NewRunContext(audit.Options{SessionID: "s1", UserID: "alice"})
	return NewTable(rc), rc
}

func TestTable_AcceptIsNotLogged(t *testing.T) {
	table, rc := newTable()
	res := table.Invoke(schema.Limit(0, 120), 30, "age", 0)

	assert.True(t, res.Valid)
	assert.False(t, res.Failed())
	assert.Equal(t, audit.ClassValidationAccept, res.LogClass)
	assert.Equal(t, "row 0 age: within MIN/MAX", res.Detail)
	assert.Equal(t, 0, rc.Buffer.Len())
}

func TestTable_RejectIsLogged(t *testing.T) {
	table, rc := newTable()
	res := table.Invoke(schema.Limit(0, 120), 150, "age", 3)

	assert.True(t, res.Failed())
	assert.Equal(t, Reject, res.Severity)
	assert.Equal(t, "limit", res.RuleName)
	assert.Equal(t, "age", res.ColumnName)
	assert.Equal(t, 3, res.SourceIndex)
	assert.Equal(t, "row 3 rejected at age: exceeds MAX tolerance 120", res.Detail)

	entries := rc.Buffer.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.TypeIngest, e.Type)
	assert.Equal(t, audit.ClassValidationReject, e.Class)
	assert.Equal(t, "validators.limit", e.Origin)
	assert.Equal(t, res.Detail, e.Message)
	assert.Equal(t, "age", e.Column)
	require.NotNil(t, e.SourceIndex)
	assert.Equal(t, 3, *e.SourceIndex)
}

func TestTable_WarnIsLoggedButPasses(t *testing.T) {
	table, rc := newTable()
	res := table.Invoke(schema.DataType("INTEGER"), "42", "age", 1)

	assert.False(t, res.Failed())
	assert.Equal(t, Warn, res.Severity)
	assert.Equal(t, "row 1 age: cast from string to INTEGER", res.Detail)

	entries := rc.Buffer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ClassValidationWarn, entries[0].Class)
	assert.Equal(t, "validators.data_type", entries[0].Origin)
}

func TestTable_RuleErrorIsCritical(t *testing.T) {
	table, rc := newTable()
	res := table.Invoke(schema.Format("(["), "x", "code", 2)

	assert.True(t, res.Failed())
	assert.Equal(t, audit.ClassErrorCritical, res.LogClass)
	assert.Contains(t, res.Detail, "row 2 rejected at code: rule failed: invalid format pattern")

	entries := rc.Buffer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.TypeException, entries[0].Type)
	assert.Equal(t, audit.ClassErrorCritical, entries[0].Class)
}

func TestTable_PanicIsRecovered(t *testing.T) {
	rc := audit.NewRunContext(audit.Options{SessionID: "s1"})
	table := &Table{run: rc, invokers: map[schema.RuleKind]Invoker{}}
	table.invokers[schema.RuleFormat] = table.wrap(schema.RuleFormat, func(schema.Rule, interface{}) (Outcome, error) {
		panic("boom")
	})

	var res Result
	require.NotPanics(t, func() {
		res = table.Invoke(schema.Format("x"), "x", "code", 0)
	})
	assert.True(t, res.Failed())
	assert.Equal(t, "rule failed: panic: boom", res.Message)
	assert.Equal(t, audit.TypeException, rc.Buffer.Entries()[0].Type)
}

func TestTable_UnknownRuleIsSkipped(t *testing.T) {
	table, rc := newTable()
	res := table.Invoke(schema.Rule{Name: "checksum", Kind: schema.RuleUnknown}, "x", "code", 4)

	assert.True(t, res.Skipped)
	assert.False(t, res.Failed())
	assert.Equal(t, "checksum", res.RuleName)

	entries := rc.Buffer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.TypeError, entries[0].Type)
	assert.Equal(t, audit.ClassErrorRecoverable, entries[0].Class)
	assert.Equal(t, `unknown validation rule "checksum" on column code; rule skipped`, entries[0].Message)
}

func TestRuleFunc_CoversEveryKind(t *testing.T) {
	for _, kind := range schema.RuleKinds() {
		assert.NotNil(t, ruleFunc(kind), kind.String())
	}
	assert.Nil(t, ruleFunc(schema.RuleUnknown))
}
