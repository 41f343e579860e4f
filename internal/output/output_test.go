package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

type rows []row

func (r rows) Table() *Table {
	t := NewTable("NAME", "COUNT")
	for _, item := range r {
		t.AddRow(item.Name, strings.Repeat("*", item.Count))
	}
	return t
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFormatter(t *testing.T) {
	assert.IsType(t, &TableFormatter{}, NewFormatter(FormatTable))
	assert.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON))
	assert.IsType(t, &YAMLFormatter{}, NewFormatter(FormatYAML))
	assert.IsType(t, &TableFormatter{}, NewFormatter("unknown"))
}

func TestTableRender(t *testing.T) {
	table := NewTable("NAME", "STATUS")
	table.AddRow("strings", "PASS")
	table.AddRow("hyperloglog-union", "FAIL")

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME               STATUS", lines[0])
	assert.Equal(t, "strings            PASS", lines[1])
	assert.Equal(t, "hyperloglog-union  FAIL", lines[2])
}

func TestTableFormatter(t *testing.T) {
	data := rows{{"a", 1}, {"b", 3}}

	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{NoHeaders: true}).Format(&buf, data))
	assert.Equal(t, "a  *\nb  ***\n", buf.String())

	buf.Reset()
	require.NoError(t, (&TableFormatter{}).Format(&buf, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, rows{{"a", 1}}))
	assert.JSONEq(t, `[{"name":"a","count":1}]`, buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, row{Name: "a", Count: 2}))
	assert.Equal(t, "name: a\ncount: 2\n", buf.String())
}
