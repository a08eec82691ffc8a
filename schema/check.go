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

package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aaronlmathis/goingest/transform"
)

// Problem is one finding of the integrity checker.
type Problem struct {
	Column  string
	Rule    string
	Message string
}

func (p Problem) String() string {
	switch {
	case p.Column != "" && p.Rule != "":
		return fmt.Sprintf("%s: %s: %s", p.Column, p.Rule, p.Message)
	case p.Column != "":
		return fmt.Sprintf("%s: %s", p.Column, p.Message)
	default:
		return p.Message
	}
}

// IntegrityError aggregates every problem found in a schema.
type IntegrityError struct {
	Problems []Problem
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	b.WriteString("invalid schema:")
	for _, p := range e.Problems {
		b.WriteString("\n")
		b.WriteString(p.String())
	}
	return b.String()
}

// AnchoredPattern anchors a format pattern at the start of the value.
func AnchoredPattern(pattern string) string {
	return "^(?:" + pattern + ")"
}

// Check validates the schema itself and returns an *IntegrityError listing every
// problem, or nil when the schema is usable.
func Check(s *Schema) error {
	problems := append([]Problem(nil), s.issues...)

	if len(s.PrimaryKey) == 0 {
		problems = append(problems, Problem{Message: "primary_key is required"})
	}
	if len(s.Columns) == 0 {
		problems = append(problems, Problem{Message: "schema_definitions must declare at least one column"})
	}

	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if seen[col.Name] {
			problems = append(problems, Problem{Column: col.Name, Message: "column declared more than once"})
		}
		seen[col.Name] = true
	}
	for _, key := range s.PrimaryKey {
		if !seen[key] {
			problems = append(problems, Problem{Message: fmt.Sprintf("primary key column %q is not defined", key)})
		}
	}

	for _, col := range s.Columns {
		if col.DataType != "" {
			if _, ok := LookupDataKind(col.DataType); !ok {
				problems = append(problems, Problem{Column: col.Name, Message: fmt.Sprintf("unrecognized data type '%s'", col.DataType)})
			}
		}
		for _, rule := range col.Rules {
			for _, msg := range rule.issues {
				problems = append(problems, Problem{Column: col.Name, Rule: rule.Name, Message: msg})
			}
			for _, msg := range checkRule(rule) {
				problems = append(problems, Problem{Column: col.Name, Rule: rule.Name, Message: msg})
			}
		}
	}

	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return nil
}

func checkRule(r Rule) []string {
	switch r.Kind {
	case RuleRequired:
		return nil
	case RuleFormat:
		if len(r.issues) > 0 {
			return nil
		}
		if _, err := regexp.Compile(AnchoredPattern(r.Pattern)); err != nil {
			return []string{fmt.Sprintf("invalid pattern: %v", err)}
		}
		return nil
	case RuleValueRestriction:
		if len(r.issues) > 0 {
			return nil
		}
		if r.Mode == RestrictNone {
			return []string{"expected accepted_values or forbidden_values"}
		}
		if len(r.Values) == 0 {
			return []string{fmt.Sprintf("%s value list is empty", r.Mode)}
		}
		return nil
	case RuleDataType:
		if r.TypeName == "" {
			return []string{"no type name given and the column declares no data_type"}
		}
		if _, ok := LookupDataKind(r.TypeName); !ok {
			return []string{fmt.Sprintf("unrecognized data type '%s'", r.TypeName)}
		}
		return nil
	case RuleLimit:
		return checkLimit(r)
	default:
		return []string{"unknown validation rule"}
	}
}

func checkLimit(r Rule) []string {
	if r.Min == nil && r.Max == nil {
		if len(r.issues) > 0 {
			return nil
		}
		return []string{"limit requires min or max"}
	}
	var out []string
	for _, bound := range []interface{}{r.Min, r.Max} {
		if bound == nil {
			continue
		}
		if _, ok := bound.(string); !ok && !transform.IsNumber(bound) {
			out = append(out, fmt.Sprintf("bound %v must be a number or a string", bound))
		}
	}
	if len(out) > 0 || r.Min == nil || r.Max == nil {
		return out
	}

	switch {
	case transform.IsNumber(r.Min) && transform.IsNumber(r.Max):
		lo, _ := transform.ToFloat(r.Min)
		hi, _ := transform.ToFloat(r.Max)
		if lo >= hi {
			out = append(out, "'min' >= 'max' in limit")
		}
	default:
		lo, okLo := r.Min.(string)
		hi, okHi := r.Max.(string)
		if !okLo || !okHi {
			out = append(out, "min and max must be of the same kind")
		} else if lo >= hi {
			out = append(out, "'min' >= 'max' in limit")
		}
	}
	return out
}
