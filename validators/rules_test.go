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
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goingest/schema"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  Severity
	}{
		{"value", "x", Accept},
		{"zero", 0, Accept},
		{"empty string is present", "", Accept},
		{"nil", nil, Reject},
		{"nan", math.NaN(), Reject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Required(schema.Required(), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Severity)
			assert.Equal(t, tt.want == Accept, out.Valid)
		})
	}

	out, _ := Required(schema.Required(), nil)
	assert.Equal(t, "is missing or null", out.Message)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   interface{}
		valid   bool
	}{
		{"match", `\d+`, "123", true},
		{"anchored at start only", `\d+`, "12a", true},
		{"leading garbage", `\d+`, "a12", false},
		{"alternation stays anchored", `a|b`, "cb", false},
		{"number is stringified", `\d{2}`, 42, true},
		{"null renders empty", `\d+`, nil, false},
		{"email", `[^@]+@[^@]+\.[a-z]+$`, "ann@example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Format(schema.Format(tt.pattern), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, out.Valid)
		})
	}

	out, _ := Format(schema.Format(`\d+`), "x")
	assert.Equal(t, `does not comply with format \d+`, out.Message)

	_, err := Format(schema.Format(`(`), "x")
	assert.Error(t, err)
}

func TestValueRestriction(t *testing.T) {
	tests := []struct {
		name    string
		rule    schema.Rule
		value   interface{}
		valid   bool
		message string
	}{
		{"allowed", schema.Allow("a", "b"), "a", true, "a is an accepted value"},
		{"not allowed", schema.Allow("a", "b"), "c", false, "c is not an accepted value"},
		{"numeric aware", schema.Allow(1, 2), 2.0, true, "2 is an accepted value"},
		{"string is not number", schema.Allow(1, 2), "1", false, "1 is not an accepted value"},
		{"null allowed", schema.Allow(nil), nil, true, "null is an accepted value"},
		{"forbidden", schema.Forbid("x"), "x", false, "x is a forbidden value"},
		{"not forbidden", schema.Forbid("x"), "y", true, "y is not a forbidden value"},
		{"null not forbidden", schema.Forbid("x"), nil, true, "null is not a forbidden value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ValueRestriction(tt.rule, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, out.Valid)
			assert.Equal(t, tt.message, out.Message)
		})
	}

	_, err := ValueRestriction(schema.Rule{Kind: schema.RuleValueRestriction}, "a")
	assert.Error(t, err)
}

func TestDataType(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		value    interface{}
		want     Severity
		message  string
	}{
		{"integer", "INTEGER", 5, Accept, "valid INTEGER"},
		{"lower case name", "integer", int64(5), Accept, "valid INTEGER"},
		{"numeric string casts", "INTEGER", "42", Warn, "cast from string to INTEGER"},
		{"float casts to int", "BIGINT", 3.7, Warn, "cast from float to BIGINT"},
		{"word does not cast", "INTEGER", "abc", Reject, "not castable to INTEGER (string)"},
		{"null never casts", "INTEGER", nil, Reject, "not castable to INTEGER (null)"},
		{"null text", "TEXT", nil, Reject, "not castable to TEXT (null)"},
		{"text", "varchar", "abc", Accept, "valid VARCHAR"},
		{"number to text", "TEXT", 12, Warn, "cast from int to TEXT"},
		{"real", "DOUBLE  PRECISION", 1.5, Accept, "valid DOUBLE PRECISION"},
		{"int to real", "REAL", 2, Warn, "cast from int to REAL"},
		{"boolean", "BOOLEAN", true, Accept, "valid BOOLEAN"},
		{"boolean word", "BOOLEAN", "yes", Reject, "not castable to BOOLEAN (string)"},
		{"boolean string", "BOOLEAN", "true", Warn, "cast from string to BOOLEAN"},
		{"unsupported", "BLOB", "x", Reject, "unsupported data type: BLOB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DataType(schema.DataType(tt.typeName), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Severity)
			assert.Equal(t, tt.message, out.Message)
			assert.Equal(t, tt.want != Reject, out.Valid)
		})
	}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		name    string
		rule    schema.Rule
		value   interface{}
		valid   bool
		message string
	}{
		{"within", schema.Limit(0, 120), 30, true, "within MIN/MAX"},
		{"inclusive bounds", schema.Limit(0, 120), 120, true, "within MIN/MAX"},
		{"above", schema.Limit(0, 120), 121, false, "exceeds MAX tolerance 120"},
		{"below", schema.Limit(0, 120), -1, false, "below MIN tolerance 0"},
		{"numeric string", schema.Limit(0, 120), "50", true, "within MIN/MAX"},
		{"float truncated to int bound", schema.Limit(nil, 5), 5.9, true, "within MIN/MAX"},
		{"float bound", schema.Limit(1.5, nil), 1, false, "below MIN tolerance 1.5"},
		{"min only", schema.Limit(10, nil), 1000, true, "within MIN/MAX"},
		{"string bounds", schema.Limit("b", "d"), "e", false, "exceeds MAX tolerance d"},
		{"no bounds", schema.Limit(nil, nil), "anything", true, "within MIN/MAX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Limit(tt.rule, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, out.Valid)
			assert.Equal(t, tt.message, out.Message)
		})
	}

	out, err := Limit(schema.Limit(0, 10), "abc")
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.True(t, strings.HasPrefix(out.Message, "cannot evaluate MIN rule ("), out.Message)

	out, _ = Limit(schema.Limit(nil, 10), nil)
	assert.True(t, strings.HasPrefix(out.Message, "cannot evaluate MAX rule ("), out.Message)
}
