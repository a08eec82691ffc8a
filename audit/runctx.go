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
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the set of log classes retained by the classified flush.
type Profile map[LogClass]bool

// FullProfile retains every known class.
func FullProfile() Profile {
	p := make(Profile, len(Classes()))
	for _, c := range Classes() {
		p[c] = true
	}
	return p
}

// ParseProfile converts a class → enabled map into a Profile. Only enabled classes
// are retained; unknown class names are an error.
func ParseProfile(m map[string]bool) (Profile, error) {
	known := make(map[LogClass]bool, len(Classes()))
	for _, c := range Classes() {
		known[c] = true
	}

	p := make(Profile, len(m))
	var unknown []string
	for name, enabled := range m {
		class := LogClass(strings.ToLower(strings.TrimSpace(name)))
		if !known[class] {
			unknown = append(unknown, name)
			continue
		}
		if enabled {
			p[class] = true
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown log classes in profile: %s", strings.Join(unknown, ", "))
	}
	return p, nil
}

// Retains reports whether entries of class survive the flush.
func (p Profile) Retains(class LogClass) bool {
	return p[class]
}

// Options configures a RunContext.
type Options struct {
	SessionID     string // Defaults to a fresh UUIDv7
	UserID        string
	CascadeReject bool
	Profile       Profile // Nil retains every class
	LogToConsole  bool
	MergeLogs     bool
	Logger        *slog.Logger     // Console echo target when LogToConsole is set
	Now           func() time.Time // Clock; defaults to time.Now
}

// RunContext is the state of a single run. It stamps every entry with the session
// and user and owns the run's Buffer.
type RunContext struct {
	SessionID     string
	UserID        string
	CascadeReject bool
	Profile       Profile
	LogToConsole  bool
	MergeLogs     bool
	Buffer        *Buffer

	logger *slog.Logger
	now    func() time.Time
}

// NewRunContext creates the context for one run.
func NewRunContext(opts Options) *RunContext {
	rc := &RunContext{
		SessionID:     opts.SessionID,
		UserID:        opts.UserID,
		CascadeReject: opts.CascadeReject,
		Profile:       opts.Profile,
		LogToConsole:  opts.LogToConsole,
		MergeLogs:     opts.MergeLogs,
		Buffer:        &Buffer{},
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if rc.SessionID == "" {
		rc.SessionID = uuid.Must(uuid.NewV7()).String()
	}
	if rc.Profile == nil {
		rc.Profile = FullProfile()
	}
	if rc.logger == nil {
		rc.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if rc.now == nil {
		rc.now = time.Now
	}
	return rc
}

// Now returns the run clock's current time.
func (rc *RunContext) Now() time.Time {
	return rc.now()
}

// Logger returns the console logger.
func (rc *RunContext) Logger() *slog.Logger {
	return rc.logger
}

// EntryOption attaches optional row context to an entry.
type EntryOption func(*Entry)

func WithColumn(column string) EntryOption {
	return func(e *Entry) { e.Column = column }
}

func WithRule(rule string) EntryOption {
	return func(e *Entry) { e.RuleName = rule }
}

func WithSourceIndex(index int) EntryOption {
	return func(e *Entry) { e.SourceIndex = &index }
}

// Log stamps a new entry, appends it to the buffer and echoes it to the console when
// enabled.
func (rc *RunContext) Log(typ LogType, class LogClass, origin, message string, opts ...EntryOption) Entry {
	e := Entry{
		Timestamp: rc.now(),
		SessionID: rc.SessionID,
		UserID:    rc.UserID,
		Type:      typ,
		Class:     class,
		Message:   message,
		Origin:    origin,
	}
	for _, opt := range opts {
		opt(&e)
	}
	rc.Buffer.Append(e)
	if rc.LogToConsole {
		rc.echo(e)
	}
	return e
}

// NewEntry stamps an entry without appending it.
func (rc *RunContext) NewEntry(typ LogType, class LogClass, origin, message string) Entry {
	return Entry{
		Timestamp: rc.now(),
		SessionID: rc.SessionID,
		UserID:    rc.UserID,
		Type:      typ,
		Class:     class,
		Message:   message,
		Origin:    origin,
	}
}

func (rc *RunContext) echo(e Entry) {
	attrs := []slog.Attr{
		slog.String("log_type", string(e.Type)),
		slog.String("log_class", string(e.Class)),
		slog.String("origin", e.Origin),
	}
	if e.Column != "" {
		attrs = append(attrs, slog.String("column", e.Column))
	}
	if e.RuleName != "" {
		attrs = append(attrs, slog.String("rule", e.RuleName))
	}
	if e.SourceIndex != nil {
		attrs = append(attrs, slog.Int("source_index", *e.SourceIndex))
	}
	rc.logger.LogAttrs(context.Background(), consoleLevel(e), e.Message, attrs...)
}

func consoleLevel(e Entry) slog.Level {
	switch e.Type {
	case TypeIngest:
		if e.Class == ClassValidationAccept {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	case TypeError:
		return slog.LevelWarn
	case TypeException:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
