// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tactconfig

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Table is a parsed pipe-separated manifest.
type Table struct {
	// Columns are the header names with their !TYPE:size suffix
	// removed.
	Columns []string

	// Rows hold one value per column.
	Rows [][]string

	// Seqn is the manifest sequence number, zero when absent.
	Seqn uint64
}

// ParseTable parses a patch server manifest. Every row must have as
// many fields as the header has columns.
func ParseTable(data []byte) (*Table, error) {
	table := &Table{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "##") {
			name, value, found := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "##")), "=")
			if found && strings.TrimSpace(name) == "seqn" {
				seqn, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: sequence number %q", tact.ErrMalformed, lineNumber, value)
				}
				table.Seqn = seqn
			}
			continue
		}

		fields := strings.Split(line, "|")
		if table.Columns == nil {
			for _, field := range fields {
				name, _, _ := strings.Cut(field, "!")
				table.Columns = append(table.Columns, strings.TrimSpace(name))
			}
			continue
		}

		if len(fields) != len(table.Columns) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d columns",
				tact.ErrMalformed, lineNumber, len(fields), len(table.Columns))
		}
		table.Rows = append(table.Rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", tact.ErrMalformed, err)
	}
	if table.Columns == nil {
		return nil, fmt.Errorf("%w: manifest has no header line", tact.ErrMalformed)
	}
	return table, nil
}

// Column returns the index of the named column (case-insensitive), or
// -1.
func (t *Table) Column(name string) int {
	for i, column := range t.Columns {
		if strings.EqualFold(column, name) {
			return i
		}
	}
	return -1
}

// Find returns the first row whose column equals value.
func (t *Table) Find(column, value string) (Row, bool) {
	index := t.Column(column)
	if index < 0 {
		return Row{}, false
	}
	for _, fields := range t.Rows {
		if fields[index] == value {
			return Row{table: t, fields: fields}, true
		}
	}
	return Row{}, false
}

// Row is one manifest row bound to its table's columns.
type Row struct {
	table  *Table
	fields []string
}

// Get returns the named field, or "" when the column does not exist.
func (r Row) Get(column string) string {
	if r.table == nil {
		return ""
	}
	index := r.table.Column(column)
	if index < 0 {
		return ""
	}
	return r.fields[index]
}
