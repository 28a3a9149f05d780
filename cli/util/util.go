// Package util provides input helpers for the studiokit CLI.
package util

import (
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when there is nothing to read: no argument, no
// file and stdin is a terminal.
var ErrNoInput = errors.New("no input: pass it as an argument, with --file, or pipe it to stdin")

// IsInteractive returns true if stdin is a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadInput returns the command input. An inline argument wins, then a file
// ("-" means stdin), then piped stdin.
func ReadInput(arg, file string, stdin io.Reader, interactive bool) ([]byte, error) {
	switch {
	case arg != "":
		return []byte(arg), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	case !interactive:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, ErrNoInput
		}
		return data, nil
	default:
		return nil, ErrNoInput
	}
}

// TruncateString truncates a string to the specified length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
