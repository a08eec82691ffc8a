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

// Package schema holds the declarative validation schema: the primary key, the
// group rejection policy and the ordered column definitions with their rules.
package schema

import (
	"strings"
)

// DataKind is the primitive kind a declared column type resolves to.
type DataKind int

const (
	KindUnknown DataKind = iota
	KindText
	KindInteger
	KindReal
	KindBoolean
)

func (k DataKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// typeNames maps declared database type names to primitive kinds.
// DATE and the time types are validated as text.
var typeNames = map[string]DataKind{
	"TEXT":             KindText,
	"VARCHAR":          KindText,
	"CHAR":             KindText,
	"DATE":             KindText,
	"TIMESTAMP":        KindText,
	"TIME":             KindText,
	"INTEGER":          KindInteger,
	"INT":              KindInteger,
	"SMALLINT":         KindInteger,
	"BIGINT":           KindInteger,
	"REAL":             KindReal,
	"FLOAT":            KindReal,
	"DOUBLE PRECISION": KindReal,
	"NUMERIC":          KindReal,
	"BOOLEAN":          KindBoolean,
}

// NormalizeTypeName upper-cases a declared type name and collapses inner whitespace.
func NormalizeTypeName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}

// LookupDataKind resolves a declared type name, case-insensitively.
func LookupDataKind(name string) (DataKind, bool) {
	k, ok := typeNames[NormalizeTypeName(name)]
	return k, ok
}

// RuleKind identifies one of the closed set of validation rules.
type RuleKind int

const (
	RuleUnknown RuleKind = iota
	RuleRequired
	RuleFormat
	RuleValueRestriction
	RuleDataType
	RuleLimit
)

// RuleKinds lists every known rule kind.
func RuleKinds() []RuleKind {
	return []RuleKind{RuleRequired, RuleFormat, RuleValueRestriction, RuleDataType, RuleLimit}
}

func (k RuleKind) String() string {
	switch k {
	case RuleRequired:
		return "required"
	case RuleFormat:
		return "format"
	case RuleValueRestriction:
		return "permitted_value"
	case RuleDataType:
		return "data_type"
	case RuleLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// LookupRuleKind resolves a rule name as written in a schema document.
func LookupRuleKind(name string) RuleKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "required":
		return RuleRequired
	case "format":
		return RuleFormat
	case "permitted_value", "permitted_values":
		return RuleValueRestriction
	case "data_type":
		return RuleDataType
	case "limit":
		return RuleLimit
	default:
		return RuleUnknown
	}
}

// RestrictionMode selects allow-list or deny-list semantics for a value restriction.
type RestrictionMode int

const (
	RestrictNone RestrictionMode = iota
	RestrictAllow
	RestrictForbid
)

func (m RestrictionMode) String() string {
	switch m {
	case RestrictAllow:
		return "accepted"
	case RestrictForbid:
		return "forbidden"
	default:
		return "none"
	}
}

// Rule is a single validation rule attached to a column.
// Only the fields matching Kind are meaningful.
type Rule struct {
	// Name is the rule name as written in the schema.
	Name string
	Kind RuleKind

	// Format
	Pattern string

	// ValueRestriction
	Mode   RestrictionMode
	Values []interface{}

	// DataType
	TypeName string

	// Limit; a nil bound is absent.
	Min interface{}
	Max interface{}

	// issues collects decode-time problems reported by Check.
	issues []string
}

// Required returns a Required rule.
func Required() Rule { return Rule{Name: "required", Kind: RuleRequired} }

// Format returns a Format rule for pattern.
func Format(pattern string) Rule { return Rule{Name: "format", Kind: RuleFormat, Pattern: pattern} }

// Allow returns a ValueRestriction rule accepting only values.
func Allow(values ...interface{}) Rule {
	return Rule{Name: "permitted_value", Kind: RuleValueRestriction, Mode: RestrictAllow, Values: values}
}

// Forbid returns a ValueRestriction rule rejecting values.
func Forbid(values ...interface{}) Rule {
	return Rule{Name: "permitted_value", Kind: RuleValueRestriction, Mode: RestrictForbid, Values: values}
}

// DataType returns a DataType rule for the declared type name.
func DataType(typeName string) Rule {
	return Rule{Name: "data_type", Kind: RuleDataType, TypeName: typeName}
}

// Limit returns a Limit rule; pass nil for an absent bound.
func Limit(lower, upper interface{}) Rule {
	return Rule{Name: "limit", Kind: RuleLimit, Min: lower, Max: upper}
}

// ColumnDefinition describes one schema column and its ordered rules.
type ColumnDefinition struct {
	Name     string
	DataType string
	Rules    []Rule
}

// Schema is a decoded validation schema.
type Schema struct {
	PrimaryKey  []string
	GroupReject bool
	Columns     []ColumnDefinition

	issues []Problem
}

// ColumnNames returns column names in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the definition for name.
func (s *Schema) Column(name string) (*ColumnDefinition, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}
