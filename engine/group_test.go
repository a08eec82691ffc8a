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

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goingest"
)

func rowsOf(records ...goingest.Record) []goingest.Row {
	rows := make([]goingest.Row, len(records))
	for i, r := range records {
		rows[i] = goingest.Row{SourceIndex: i, Values: r}
	}
	return rows
}

func keysOf(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Key.String()
	}
	return out
}

func TestGroup_NaturalOrderAcrossKinds(t *testing.T) {
	rows := rowsOf(
		goingest.Record{"k": "b"},
		goingest.Record{"k": 2},
		goingest.Record{"k": true},
		goingest.Record{"k": 1.5},
		goingest.Record{"k": "a"},
		goingest.Record{"k": 10},
		goingest.Record{"k": false},
	)
	groups := NewGroupBy("k").Group(rows)
	assert.Equal(t, []string{"false", "true", "1.5", "2", "10", "a", "b"}, keysOf(groups))
}

func TestGroup_NumericKeysCollide(t *testing.T) {
	rows := rowsOf(
		goingest.Record{"k": 1},
		goingest.Record{"k": 1.0},
		goingest.Record{"k": int64(1)},
		goingest.Record{"k": "1"},
	)
	groups := NewGroupBy("k").Group(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Rows, 3)
	assert.Equal(t, "1", groups[1].Key[0])
}

func TestGroup_CompositeKey(t *testing.T) {
	rows := rowsOf(
		goingest.Record{"a": 2, "b": "x"},
		goingest.Record{"a": 1, "b": "y"},
		goingest.Record{"a": 1, "b": "x"},
		goingest.Record{"a": 1, "b": "y"},
	)
	groups := NewGroupBy("a", "b").Group(rows)
	assert.Equal(t, []string{"(1, x)", "(1, y)", "(2, x)"}, keysOf(groups))
	assert.Equal(t, []int{1, 3}, []int{groups[1].Rows[0].SourceIndex, groups[1].Rows[1].SourceIndex})
}

func TestGroup_NoKeyColumns(t *testing.T) {
	groups := NewGroupBy().Group(rowsOf(goingest.Record{"a": 1}, goingest.Record{"a": 1}))
	assert.Len(t, groups, 2)
}
