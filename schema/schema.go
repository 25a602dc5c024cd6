// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package schema holds the declarative table
// definitions consumed by base sources. The engine
// itself treats rows as opaque; a Table is a placeholder
// carried for the surrounding stack (query builders,
// storage backends) and for primary-key validation.
package schema

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Column describes one named column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Table is a declarative table definition.
type Table struct {
	Name       string   `json:"name"`
	PrimaryKey string   `json:"primary_key"`
	Columns    []Column `json:"columns,omitempty"`
}

// FromYAML parses a Table from its YAML (or JSON)
// serialization.
func FromYAML(buf []byte) (*Table, error) {
	t := &Table{}
	if err := yaml.Unmarshal(buf, t); err != nil {
		return nil, fmt.Errorf("schema: parsing table definition: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks internal consistency: a table needs a
// name and a primary key, and when columns are declared
// the primary key must be one of them.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("schema: table definition missing name")
	}
	if t.PrimaryKey == "" {
		return fmt.Errorf("schema: table %s missing primary key", t.Name)
	}
	if len(t.Columns) == 0 {
		return nil
	}
	for i := range t.Columns {
		if t.Columns[i].Name == t.PrimaryKey {
			return nil
		}
	}
	return fmt.Errorf("schema: table %s: primary key %s is not a declared column", t.Name, t.PrimaryKey)
}

// Column returns the declared column with the given
// name, if any.
func (t *Table) Column(name string) (Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return t.Columns[i], true
		}
	}
	return Column{}, false
}
