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

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleSchema = `
primary_key: id
schema_definitions:
  id:
    data_type: INTEGER
    rules:
      required: true
  age:
    data_type: INTEGER
    rules:
      limit:
        min: 0
        max: 120
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "goingest", cmd.Use)

	for _, name := range []string{"run", "check"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"log-level", "log-format"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for flag, short := range map[string]string{"config": "c", "input": "i", "schema": "s"} {
		f := runCmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, short, f.Shorthand)
	}
}

func TestInvalidLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "people.yaml", peopleSchema)
	_, err := execute(t, "--log-format", "xml", "check", "--schema", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log format "xml"`)
}

func TestCheck_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "people.yaml", peopleSchema)

	out, err := execute(t, "check", "--schema", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 columns, primary key id, group_reject=false)")
}

func TestCheck_ReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
primary_key: uid
schema_definitions:
  id:
    data_type: BLOB
    rules:
      bogus: true
`)

	out, err := execute(t, "check", "--schema", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is invalid")
	assert.Contains(t, out, `primary key column "uid" is not defined`)
	assert.Contains(t, out, "bogus")
}

func TestCheck_RequiresSchemaFlag(t *testing.T) {
	_, err := execute(t, "check")
	assert.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "people.yaml", peopleSchema)
	input := writeFile(t, dir, "people.csv", "id,age\n1,30\n2,300\n")
	logs := filepath.Join(dir, "logs")
	cfgPath := writeFile(t, dir, "goingest.yaml", fmt.Sprintf(
		"user_id: alice\nschema_path: %q\nlogging:\n  output: %q\n", schemaPath, logs))

	out, err := execute(t, "--log-level", "error", "run", "--config", cfgPath, "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows in, 1 retained, 1 rejected, 0 null key")
	assert.Contains(t, out, "EVENT")
	assert.Contains(t, out, "INGEST")

	matches, err := filepath.Glob(filepath.Join(logs, "*_EVENT.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRun_CrashMessage(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "people.yaml", peopleSchema)
	input := writeFile(t, dir, "people.csv", "id\n1\n")
	logs := filepath.Join(dir, "logs")
	cfgPath := writeFile(t, dir, "goingest.yaml", fmt.Sprintf(
		"schema_path: %q\ninput: %q\nlogging:\n  output: %q\n", schemaPath, input, logs))

	_, err := execute(t, "run", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critical error: ")
	assert.Contains(t, err.Error(), "crash log written to "+logs)
}

func TestRun_InvalidSchemaWritesNoCrashLog(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "bad.yaml", "schema_definitions:\n  id:\n    data_type: BLOB\n")
	input := writeFile(t, dir, "people.csv", "id\n1\n")
	logs := filepath.Join(dir, "logs")
	cfgPath := writeFile(t, dir, "goingest.yaml", fmt.Sprintf(
		"schema_path: %q\ninput: %q\nlogging:\n  output: %q\n", schemaPath, input, logs))

	_, err := execute(t, "run", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema:")
	assert.NotContains(t, err.Error(), "critical error")
	assert.NoDirExists(t, logs)
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "goingest.yaml", "sink:\n  kind: kafka\n")
	_, err := execute(t, "run", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_path is required")
}
