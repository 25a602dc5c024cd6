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

package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const usersYAML = `
name: users
primary_key: id
columns:
  - name: id
    type: integer
  - name: email
    type: text
    nullable: true
`

func TestFromYAML(t *testing.T) {
	require := require.New(t)
	tbl, err := FromYAML([]byte(usersYAML))
	require.NoError(err)
	require.Equal("users", tbl.Name)
	require.Equal("id", tbl.PrimaryKey)
	require.Len(tbl.Columns, 2)

	col, ok := tbl.Column("email")
	require.True(ok)
	require.True(col.Nullable)
	_, ok = tbl.Column("missing")
	require.False(ok)
}

func TestValidate(t *testing.T) {
	require := require.New(t)

	_, err := FromYAML([]byte("name: t\n"))
	require.Error(err)

	_, err = FromYAML([]byte("primary_key: id\n"))
	require.Error(err)

	// pk must be declared when columns are listed
	bad := `
name: t
primary_key: id
columns:
  - name: other
`
	_, err = FromYAML([]byte(bad))
	require.Error(err)

	// no columns: any pk name is fine
	ok := &Table{Name: "t", PrimaryKey: "id"}
	require.NoError(ok.Validate())
}
