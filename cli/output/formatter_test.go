package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"", FormatTable, false},
		{"TABLE", FormatTable, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func newBufferFormatter(format Format) (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	f := NewFormatter(format, false, false)
	f.Writer = &buf
	f.ErrWriter = &buf
	return f, &buf
}

func TestFormatter_Print(t *testing.T) {
	type item struct {
		Name  string `json:"name"`
		Valid bool   `json:"valid"`
	}

	t.Run("json", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatJSON)
		require.NoError(t, f.Print(item{Name: "a", Valid: true}))
		assert.JSONEq(t, `{"name":"a","valid":true}`, buf.String())
	})

	t.Run("yaml uses json field names", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatYAML)
		require.NoError(t, f.Print(item{Name: "a", Valid: true}))
		assert.Equal(t, "name: a\nvalid: true\n", buf.String())
	})

	t.Run("quiet prints nothing", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatJSON)
		f.Quiet = true
		require.NoError(t, f.Print(item{Name: "a"}))
		f.PrintInfo("hello")
		f.PrintList([]string{"x"})
		assert.Empty(t, buf.String())
	})
}

func TestFormatter_PrintTable(t *testing.T) {
	data := TableData{
		Headers: []string{"IDENTIFIER", "NEEDS QUOTING"},
		Rows:    [][]string{{"MyTable", "true"}, {"users", "false"}},
	}

	t.Run("table", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatTable)
		f.PrintTable(data)
		assert.Contains(t, buf.String(), "IDENTIFIER")
		assert.Contains(t, buf.String(), "MyTable")
	})

	t.Run("no headers", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatTable)
		f.NoHeaders = true
		f.PrintTable(data)
		assert.NotContains(t, buf.String(), "IDENTIFIER")
		assert.Contains(t, buf.String(), "users")
	})

	t.Run("json rows keyed by lowercase header", func(t *testing.T) {
		f, buf := newBufferFormatter(FormatJSON)
		f.PrintTable(data)
		assert.JSONEq(t, `[{"identifier":"MyTable","needs quoting":"true"},{"identifier":"users","needs quoting":"false"}]`, buf.String())
	})
}

func TestFormatter_PrintList(t *testing.T) {
	f, buf := newBufferFormatter(FormatTable)
	f.PrintList([]string{"a", "b"})
	assert.Equal(t, "a\nb\n", buf.String())

	f, buf = newBufferFormatter(FormatJSON)
	f.PrintList([]string{"a"})
	assert.JSONEq(t, `["a"]`, buf.String())
}
