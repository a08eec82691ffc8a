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
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/transform"
)

// Key is the primary-key value of a group, one component per key column.
type Key []interface{}

// String renders a single-column key as its value and a composite key as a tuple.
func (k Key) String() string {
	if len(k) == 1 {
		return transform.Stringify(k[0])
	}
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = transform.Stringify(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// id returns a map key under which values that compare equal collide, so 1 and 1.0
// land in the same group while "1" does not.
func (k Key) id() string {
	var b strings.Builder
	for i, v := range k {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch {
		case transform.IsInteger(v):
			n, err := transform.ToInt(v)
			if err != nil {
				fmt.Fprintf(&b, "n:%v", v)
				continue
			}
			b.WriteString("n:" + strconv.FormatInt(n, 10))
		case transform.IsFloat(v):
			f, _ := transform.ToFloat(v)
			if math.Abs(f) < 1<<53 && f == math.Trunc(f) {
				b.WriteString("n:" + strconv.FormatInt(int64(f), 10))
			} else {
				b.WriteString("n:" + strconv.FormatFloat(f, 'g', -1, 64))
			}
		default:
			switch x := v.(type) {
			case string:
				b.WriteString("s:" + x)
			case bool:
				b.WriteString("b:" + strconv.FormatBool(x))
			default:
				fmt.Fprintf(&b, "o:%T:%v", v, v)
			}
		}
	}
	return b.String()
}

// Group holds all rows sharing one primary-key value, in load order.
type Group struct {
	Key  Key
	Rows []goingest.Row
}

// GroupBy partitions rows by the values of the key columns.
type GroupBy struct {
	groupFields []string
}

// NewGroupBy creates a GroupBy over the given key columns. Without key columns every
// row forms its own group.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{groupFields: groupFields}
}

// Group partitions rows by key and returns the groups ordered by the natural ordering
// of their keys. Rows are expected to have non-null keys.
func (g *GroupBy) Group(rows []goingest.Row) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, row := range rows {
		key := g.buildGroupKey(row)
		id := key.id()
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return compareKeys(groups[i].Key, groups[j].Key) < 0
	})
	return groups
}

func (g *GroupBy) buildGroupKey(row goingest.Row) Key {
	if len(g.groupFields) == 0 {
		return Key{row.SourceIndex}
	}
	key := make(Key, len(g.groupFields))
	for i, field := range g.groupFields {
		key[i], _ = row.Get(field)
	}
	return key
}

func compareKeys(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// kindRank orders mixed kinds: booleans, then numbers, then strings, then the rest.
func kindRank(v interface{}) int {
	if transform.IsNumber(v) {
		return 1
	}
	switch v.(type) {
	case bool:
		return 0
	case string:
		return 2
	default:
		return 3
	}
}

// compareValues orders numbers numerically, strings lexically and false before true.
func compareValues(a, b interface{}) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case 1:
		if transform.IsInteger(a) && transform.IsInteger(b) {
			x, errA := transform.ToInt(a)
			y, errB := transform.ToInt(b)
			if errA == nil && errB == nil {
				return compareOrdered(x, y)
			}
		}
		x, _ := transform.ToFloat(a)
		y, _ := transform.ToFloat(b)
		return compareOrdered(x, y)
	case 2:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprintf("%T:%v", a, a), fmt.Sprintf("%T:%v", b, b))
	}
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
