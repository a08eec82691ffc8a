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

// Package audit holds the run-scoped audit trail: structured log entries, the
// append-only buffer that collects them, the run context that stamps them and the
// two ways a buffer leaves the process (the classified flush and the crash dump).
package audit

import (
	"fmt"
	"time"

	"github.com/aaronlmathis/goingest"
)

// LogType is the coarse category of an entry and names its output file.
type LogType string

const (
	TypeIngest    LogType = "INGEST"
	TypeError     LogType = "ERROR"
	TypeEvent     LogType = "EVENT"
	TypeException LogType = "EXCEPTION"
)

// LogClass is the fine-grained tag log profiles filter on.
type LogClass string

const (
	ClassValidationAccept LogClass = "validation_accept"
	ClassValidationWarn   LogClass = "validation_warn"
	ClassValidationReject LogClass = "validation_reject"
	ClassErrorCritical    LogClass = "error_critical"
	ClassErrorRecoverable LogClass = "error_recoverable"
	ClassFunctionCall     LogClass = "function_call"
	ClassProcedureStatus  LogClass = "procedure_status"
	ClassInfoDetailed     LogClass = "info_detailed"
)

// Classes lists every known log class.
func Classes() []LogClass {
	return []LogClass{
		ClassValidationAccept,
		ClassValidationWarn,
		ClassValidationReject,
		ClassErrorCritical,
		ClassErrorRecoverable,
		ClassFunctionCall,
		ClassProcedureStatus,
		ClassInfoDetailed,
	}
}

// TimestampLayout is used for every timestamp written by this package.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Field names, in the order entries render them.
const (
	FieldTimestamp   = "timestamp"
	FieldMessage     = "message"
	FieldSessionID   = "session_id"
	FieldUserID      = "user_id"
	FieldLogType     = "log_type"
	FieldLogClass    = "log_class"
	FieldOrigin      = "origin"
	FieldColumn      = "column_name"
	FieldRule        = "rule_name"
	FieldSourceIndex = goingest.SourceIndexField
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time
	SessionID string
	UserID    string
	Type      LogType
	Class     LogClass
	Message   string
	Origin    string

	// Optional row context; empty or nil when the entry is not about a row.
	Column      string
	RuleName    string
	SourceIndex *int
}

// Fields returns the names of the fields the entry carries. Optional fields are
// listed only when set.
func (e Entry) Fields() []string {
	fields := []string{
		FieldTimestamp, FieldMessage, FieldSessionID, FieldUserID,
		FieldLogType, FieldLogClass, FieldOrigin,
	}
	if e.Column != "" {
		fields = append(fields, FieldColumn)
	}
	if e.RuleName != "" {
		fields = append(fields, FieldRule)
	}
	if e.SourceIndex != nil {
		fields = append(fields, FieldSourceIndex)
	}
	return fields
}

// Record renders the entry for the tabular writers.
func (e Entry) Record() goingest.Record {
	rec := goingest.Record{
		FieldTimestamp: e.Timestamp.Format(TimestampLayout),
		FieldMessage:   e.Message,
		FieldSessionID: e.SessionID,
		FieldUserID:    e.UserID,
		FieldLogType:   string(e.Type),
		FieldLogClass:  string(e.Class),
		FieldOrigin:    e.Origin,
	}
	if e.Column != "" {
		rec[FieldColumn] = e.Column
	}
	if e.RuleName != "" {
		rec[FieldRule] = e.RuleName
	}
	if e.SourceIndex != nil {
		rec[FieldSourceIndex] = *e.SourceIndex
	}
	return rec
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s/%s %s: %s", e.Timestamp.Format(TimestampLayout), e.Type, e.Class, e.Origin, e.Message)
}

// unionFields returns timestamp and message first, then every other field in order
// of first appearance across entries.
func unionFields(entries []Entry) []string {
	fields := []string{FieldTimestamp, FieldMessage}
	seen := map[string]bool{FieldTimestamp: true, FieldMessage: true}
	for _, e := range entries {
		for _, f := range e.Fields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
