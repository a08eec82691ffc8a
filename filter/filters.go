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

// Package filter provides record predicates and the row partitioning used ahead of
// primary-key grouping.
package filter

import (
	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/transform"
)

// Predicate reports whether a record should be kept.
type Predicate func(record goingest.Record) bool

// NotNull creates a predicate that rejects records where any of the fields is absent,
// nil or NaN.
func NotNull(fields ...string) Predicate {
	return func(record goingest.Record) bool {
		_, found := FirstNull(record, fields...)
		return !found
	}
}

// FirstNull returns the first of fields that is absent, nil or NaN in record.
func FirstNull(record goingest.Record, fields ...string) (string, bool) {
	for _, field := range fields {
		value, exists := record[field]
		if !exists || transform.IsNull(value) {
			return field, true
		}
	}
	return "", false
}

// And creates a predicate that requires all provided predicates to pass.
func And(preds ...Predicate) Predicate {
	return func(record goingest.Record) bool {
		for _, p := range preds {
			if !p(record) {
				return false
			}
		}
		return true
	}
}

// Partition splits rows into those the predicate keeps and those it drops.
// Both slices keep the input order.
func Partition(rows []goingest.Row, keep Predicate) (kept, dropped []goingest.Row) {
	for _, row := range rows {
		if keep(row.Values) {
			kept = append(kept, row)
		} else {
			dropped = append(dropped, row)
		}
	}
	return kept, dropped
}
