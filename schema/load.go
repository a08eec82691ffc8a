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
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeError wraps failures to read or parse a schema document.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Load reads a YAML or JSON schema file, decodes it and runs Check on the result.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Op: "read", Err: err}
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Check(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes a schema document. Column and rule order follow the document.
// Structural problems below the document root are recorded for Check rather than
// returned, so one report can list all of them.
func Parse(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Op: "parse", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &DecodeError{Op: "parse", Err: errors.New("empty document")}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &DecodeError{Op: "parse", Err: errors.New("schema must be a mapping")}
	}

	s := &Schema{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "primary_key":
			s.PrimaryKey = s.decodeKey(val)
		case "group_reject":
			if err := val.Decode(&s.GroupReject); err != nil {
				s.issue(Problem{Message: "group_reject must be a boolean"})
			}
		case "schema_definitions":
			s.decodeColumns(val)
		}
	}
	return s, nil
}

func (s *Schema) issue(p Problem) {
	s.issues = append(s.issues, p)
}

func (s *Schema) decodeKey(node *yaml.Node) []string {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil
		}
		return []string{node.Value}
	case yaml.SequenceNode:
		var keys []string
		if err := node.Decode(&keys); err != nil {
			s.issue(Problem{Message: "primary_key must be a column name or a list of names"})
			return nil
		}
		return keys
	default:
		s.issue(Problem{Message: "primary_key must be a column name or a list of names"})
		return nil
	}
}

func (s *Schema) decodeColumns(node *yaml.Node) {
	if node.Kind != yaml.MappingNode {
		s.issue(Problem{Message: "schema_definitions must be a mapping of column names"})
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, body := node.Content[i].Value, node.Content[i+1]
		col := ColumnDefinition{Name: name}

		if body.Kind != yaml.MappingNode {
			s.issue(Problem{Column: name, Message: "column definition must be a mapping"})
			s.Columns = append(s.Columns, col)
			continue
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, val := body.Content[j], body.Content[j+1]
			switch key.Value {
			case "data_type":
				col.DataType = val.Value
			case "rules":
				col.Rules = s.decodeRules(name, val)
			}
		}
		for k := range col.Rules {
			if col.Rules[k].Kind == RuleDataType && col.Rules[k].TypeName == "" {
				col.Rules[k].TypeName = col.DataType
			}
		}
		s.Columns = append(s.Columns, col)
	}
}

func (s *Schema) decodeRules(column string, node *yaml.Node) []Rule {
	if node.Kind != yaml.MappingNode {
		s.issue(Problem{Column: column, Message: "rules must be a mapping of rule names"})
		return nil
	}
	var rules []Rule
	for i := 0; i+1 < len(node.Content); i += 2 {
		rule, keep := decodeRule(node.Content[i].Value, node.Content[i+1])
		if keep {
			rules = append(rules, rule)
		}
	}
	return rules
}

// decodeRule builds a rule from its name and parameters. An explicit
// `required: false` drops the rule.
func decodeRule(name string, params *yaml.Node) (Rule, bool) {
	r := Rule{Name: name, Kind: LookupRuleKind(name)}

	switch r.Kind {
	case RuleRequired:
		var flag interface{}
		if err := params.Decode(&flag); err == nil {
			if b, ok := flag.(bool); ok && !b {
				return r, false
			}
		}
	case RuleFormat:
		if params.Kind != yaml.ScalarNode || params.Tag == "!!null" {
			r.issues = append(r.issues, "pattern must be a string")
			break
		}
		r.Pattern = params.Value
	case RuleDataType:
		if params.Kind == yaml.ScalarNode && params.Tag != "!!bool" && params.Tag != "!!null" {
			r.TypeName = params.Value
		}
	case RuleValueRestriction:
		decodeRestriction(&r, params)
	case RuleLimit:
		decodeLimit(&r, params)
	}
	return r, true
}

func decodeRestriction(r *Rule, params *yaml.Node) {
	if params.Kind != yaml.MappingNode {
		r.issues = append(r.issues, "expected a mapping with accepted_values or forbidden_values")
		return
	}
	modes := 0
	for i := 0; i+1 < len(params.Content); i += 2 {
		key, val := params.Content[i].Value, params.Content[i+1]
		var mode RestrictionMode
		switch key {
		case "accepted_value", "accepted_values":
			mode = RestrictAllow
		case "forbidden_value", "forbidden_values":
			mode = RestrictForbid
		default:
			r.issues = append(r.issues, fmt.Sprintf("unknown restriction key %q", key))
			continue
		}
		modes++

		if val.Kind != yaml.SequenceNode {
			r.issues = append(r.issues, fmt.Sprintf("%s must be a list", key))
			continue
		}
		var values []interface{}
		if err := val.Decode(&values); err != nil {
			r.issues = append(r.issues, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		r.Mode = mode
		r.Values = values
	}
	if modes > 1 {
		r.issues = append(r.issues, fmt.Sprintf("declares %d restriction modes; use exactly one of accepted_values or forbidden_values", modes))
	}
}

func decodeLimit(r *Rule, params *yaml.Node) {
	if params.Kind != yaml.MappingNode {
		r.issues = append(r.issues, "expected a mapping with min and/or max")
		return
	}
	for i := 0; i+1 < len(params.Content); i += 2 {
		key, val := params.Content[i].Value, params.Content[i+1]
		var bound interface{}
		if err := val.Decode(&bound); err != nil {
			r.issues = append(r.issues, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		switch key {
		case "min":
			r.Min = bound
		case "max":
			r.Max = bound
		default:
			r.issues = append(r.issues, fmt.Sprintf("unknown limit key %q", key))
		}
	}
}
