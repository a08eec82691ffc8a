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

package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aaronlmathis/goingest"
)

func TestNotNull(t *testing.T) {
	keep := NotNull("region", "id")

	assert.True(t, keep(goingest.Record{"region": "eu", "id": 0}))
	assert.True(t, keep(goingest.Record{"region": "", "id": 1}), "empty string is a value")
	assert.False(t, keep(goingest.Record{"region": "eu", "id": nil}))
	assert.False(t, keep(goingest.Record{"region": math.NaN(), "id": 1}))
	assert.False(t, keep(goingest.Record{"id": 1}))
}

func TestFirstNull(t *testing.T) {
	field, found := FirstNull(goingest.Record{"a": 1, "b": nil, "c": nil}, "a", "c", "b")
	assert.True(t, found)
	assert.Equal(t, "c", field)

	_, found = FirstNull(goingest.Record{"a": 1}, "a")
	assert.False(t, found)
}

func TestAnd(t *testing.T) {
	p := And(NotNull("a"), NotNull("b"))
	assert.True(t, p(goingest.Record{"a": 1, "b": 2}))
	assert.False(t, p(goingest.Record{"a": 1}))
	assert.True(t, And()(goingest.Record{}))
}

func TestPartition(t *testing.T) {
	rows := []goingest.Row{
		{SourceIndex: 0, Values: goingest.Record{"id": 1}},
		{SourceIndex: 1, Values: goingest.Record{"id": nil}},
		{SourceIndex: 2, Values: goingest.Record{"id": 2}},
		{SourceIndex: 3, Values: goingest.Record{"id": nil}},
	}

	kept, dropped := Partition(rows, NotNull("id"))
	assert.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].SourceIndex)
	assert.Equal(t, 2, kept[1].SourceIndex)
	assert.Len(t, dropped, 2)
	assert.Equal(t, 1, dropped[0].SourceIndex)
	assert.Equal(t, 3, dropped[1].SourceIndex)
}
