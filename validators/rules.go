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

// Package validators implements the column rules of a schema and the dispatch table
// that runs them with row context and audit logging.
package validators

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/aaronlmathis/goingest/schema"
	"github.com/aaronlmathis/goingest/transform"
)

// Severity grades a rule outcome.
type Severity int

const (
	Accept Severity = iota
	Warn
	Reject
)

func (s Severity) String() string {
	switch s {
	case Accept:
		return "accept"
	case Warn:
		return "warn"
	default:
		return "reject"
	}
}

// Outcome is what a rule says about one value.
type Outcome struct {
	Valid    bool
	Severity Severity
	Message  string
}

func accept(format string, args ...interface{}) Outcome {
	return Outcome{Valid: true, Severity: Accept, Message: fmt.Sprintf(format, args...)}
}

func warn(format string, args ...interface{}) Outcome {
	return Outcome{Valid: true, Severity: Warn, Message: fmt.Sprintf(format, args...)}
}

func reject(format string, args ...interface{}) Outcome {
	return Outcome{Valid: false, Severity: Reject, Message: fmt.Sprintf(format, args...)}
}

// RuleFunc evaluates one rule against one value. It knows nothing about rows or
// columns. A returned error means the rule itself could not run.
type RuleFunc func(rule schema.Rule, value interface{}) (Outcome, error)

// Required fails on absent, nil and NaN values.
func Required(_ schema.Rule, value interface{}) (Outcome, error) {
	if transform.IsNull(value) {
		return reject("is missing or null"), nil
	}
	return accept("exists and is not null"), nil
}

var patternCache sync.Map

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(schema.AnchoredPattern(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid format pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Format matches the stringified value against the pattern anchored at the start.
func Format(rule schema.Rule, value interface{}) (Outcome, error) {
	re, err := compilePattern(rule.Pattern)
	if err != nil {
		return Outcome{}, err
	}
	if !re.MatchString(transform.Stringify(value)) {
		return reject("does not comply with format %s", rule.Pattern), nil
	}
	return accept("complies with format %s", rule.Pattern), nil
}

func contains(values []interface{}, v interface{}) bool {
	for _, candidate := range values {
		if transform.Equal(candidate, v) {
			return true
		}
	}
	return false
}

// ValueRestriction checks membership in an allow-list or a deny-list.
func ValueRestriction(rule schema.Rule, value interface{}) (Outcome, error) {
	shown := transform.Stringify(value)
	if value == nil {
		shown = "null"
	}
	switch rule.Mode {
	case schema.RestrictAllow:
		if contains(rule.Values, value) {
			return accept("%s is an accepted value", shown), nil
		}
		return reject("%s is not an accepted value", shown), nil
	case schema.RestrictForbid:
		if contains(rule.Values, value) {
			return reject("%s is a forbidden value", shown), nil
		}
		return accept("%s is not a forbidden value", shown), nil
	default:
		return Outcome{}, fmt.Errorf("value restriction has no mode")
	}
}

// DataType accepts values already of the declared kind and warns on values that
// coerce to it. Null never coerces.
func DataType(rule schema.Rule, value interface{}) (Outcome, error) {
	name := schema.NormalizeTypeName(rule.TypeName)
	kind, ok := schema.LookupDataKind(name)
	if !ok {
		return reject("unsupported data type: %s", name), nil
	}

	goKind := transform.KindName(value)
	if transform.IsNull(value) {
		return reject("not castable to %s (%s)", name, goKind), nil
	}

	var matches bool
	var err error
	switch kind {
	case schema.KindText:
		_, matches = value.(string)
		if !matches {
			_, err = transform.ToString(value)
		}
	case schema.KindInteger:
		matches = transform.IsInteger(value)
		if !matches {
			_, err = transform.ToInt(value)
		}
	case schema.KindReal:
		matches = transform.IsFloat(value)
		if !matches {
			_, err = transform.ToFloat(value)
		}
	case schema.KindBoolean:
		_, matches = value.(bool)
		if !matches {
			_, err = transform.ToBool(value)
		}
	default:
		return reject("unsupported data type: %s", name), nil
	}

	switch {
	case matches:
		return accept("valid %s", name), nil
	case err == nil:
		return warn("cast from %s to %s", goKind, name), nil
	default:
		return reject("not castable to %s (%s)", name, goKind), nil
	}
}

// Limit checks the min bound and then the max bound. The value is cast to each
// bound's own kind before comparing.
func Limit(rule schema.Rule, value interface{}) (Outcome, error) {
	if rule.Min != nil {
		cmp, err := compareToBound(value, rule.Min)
		if err != nil {
			return reject("cannot evaluate MIN rule (%v)", err), nil
		}
		if cmp < 0 {
			return reject("below MIN tolerance %s", transform.Stringify(rule.Min)), nil
		}
	}
	if rule.Max != nil {
		cmp, err := compareToBound(value, rule.Max)
		if err != nil {
			return reject("cannot evaluate MAX rule (%v)", err), nil
		}
		if cmp > 0 {
			return reject("exceeds MAX tolerance %s", transform.Stringify(rule.Max)), nil
		}
	}
	return accept("within MIN/MAX"), nil
}

// compareToBound casts value to the kind of bound and returns -1, 0 or 1.
func compareToBound(value, bound interface{}) (int, error) {
	switch {
	case transform.IsInteger(bound):
		b, err := transform.ToInt(bound)
		if err != nil {
			return 0, err
		}
		v, err := transform.ToInt(value)
		if err != nil {
			return 0, err
		}
		return compareOrdered(v, b), nil
	case transform.IsFloat(bound):
		b, _ := transform.ToFloat(bound)
		v, err := transform.ToFloat(value)
		if err != nil {
			return 0, err
		}
		return compareOrdered(v, b), nil
	default:
		b, ok := bound.(string)
		if !ok {
			return 0, fmt.Errorf("unsupported bound type %T", bound)
		}
		v, err := transform.ToString(value)
		if err != nil {
			return 0, err
		}
		return compareOrdered(v, b), nil
	}
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
