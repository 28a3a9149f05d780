package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.sql")
	require.NoError(t, os.WriteFile(path, []byte("select 1"), 0o600))

	tests := []struct {
		name        string
		arg         string
		file        string
		stdin       string
		interactive bool
		expected    string
		err         error
	}{
		{name: "argument wins", arg: "select 2", file: path, stdin: "x", expected: "select 2"},
		{name: "file", file: path, expected: "select 1"},
		{name: "dash reads stdin", file: "-", stdin: "piped", interactive: true, expected: "piped"},
		{name: "piped stdin", stdin: "piped", expected: "piped"},
		{name: "empty pipe", stdin: "  \n", err: ErrNoInput},
		{name: "terminal without input", interactive: true, err: ErrNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadInput(tt.arg, tt.file, strings.NewReader(tt.stdin), tt.interactive)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}

	_, err := ReadInput("", filepath.Join(dir, "missing"), strings.NewReader(""), true)
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}
