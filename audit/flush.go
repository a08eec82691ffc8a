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

package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/location"
	"github.com/aaronlmathis/goingest/writers"
)

// Format selects the tabular encoding of audit files.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat resolves a configured file format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unknown log file format %q", name)
}

// MergedGroup names the single output written when merge_logs is set.
const MergedGroup = "MERGED"

// Output describes one file written by Flush or CrashDump.
type Output struct {
	Group   string
	Name    string
	Path    string
	Entries int
}

type group struct {
	name    string
	entries []Entry
}

// classify keeps entries whose class the profile retains and groups them by log
// type in order of first appearance, or into one MERGED group.
func classify(entries []Entry, profile Profile, merge bool) []group {
	var groups []group
	index := make(map[string]int)
	for _, e := range entries {
		if !profile.Retains(e.Class) {
			continue
		}
		name := string(e.Type)
		if merge {
			name = MergedGroup
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, group{name: name})
		}
		groups[i].entries = append(groups[i].entries, e)
	}
	return groups
}

// Flush writes the retained entries of a cleanly finished run to
// <session_id>_<TYPE>.<ext> files at loc and then clears the buffer. The buffer is
// left untouched when any file fails to write.
func Flush(ctx context.Context, rc *RunContext, loc location.Location, format Format) ([]Output, error) {
	groups := classify(rc.Buffer.Entries(), rc.Profile, rc.MergeLogs)

	outputs := make([]Output, 0, len(groups))
	for _, g := range groups {
		name := fmt.Sprintf("%s_%s.%s", rc.SessionID, g.name, format)
		if err := writeEntries(ctx, loc, name, format, g.entries); err != nil {
			return outputs, fmt.Errorf("flush %s: %w", name, err)
		}
		outputs = append(outputs, Output{Group: g.name, Name: name, Path: loc.Path(name), Entries: len(g.entries)})
	}

	rc.Buffer.Clear()
	return outputs, nil
}

// CrashDump writes every buffered entry, regardless of profile, followed by one
// entry describing cause, to CRASH_<session_id>.<ext>. The buffer is not cleared.
func CrashDump(ctx context.Context, rc *RunContext, loc location.Location, format Format, cause error) (Output, error) {
	entries := rc.Buffer.Entries()
	entries = append(entries, rc.NewEntry(TypeException, ClassErrorCritical, "audit.crash", fmt.Sprintf("critical error: %v", cause)))

	name := fmt.Sprintf("CRASH_%s.%s", rc.SessionID, format)
	if err := writeEntries(ctx, loc, name, format, entries); err != nil {
		return Output{}, fmt.Errorf("crash dump %s: %w", name, err)
	}
	return Output{Group: "CRASH", Name: name, Path: loc.Path(name), Entries: len(entries)}, nil
}

func writeEntries(ctx context.Context, loc location.Location, name string, format Format, entries []Entry) error {
	w, err := loc.Create(ctx, name)
	if err != nil {
		return err
	}

	fields := unionFields(entries)
	var sink goingest.DataSink
	switch format {
	case FormatJSONL:
		sink = writers.NewJSONWriter(w, writers.WithFields(fields), writers.WithFlushOnWrite(false))
	default:
		cw, err := writers.NewCSVWriter(w, writers.WithHeaders(fields), writers.WithCSVBatchSize(len(entries)))
		if err != nil {
			w.Close()
			return err
		}
		sink = cw
	}

	for _, e := range entries {
		if err := sink.Write(ctx, e.Record()); err != nil {
			sink.Close()
			return err
		}
	}
	return sink.Close()
}
