package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/supabase/supabase-sub056/internal/sanitize"
)

// reservedFields are written by zerolog itself and never redacted.
var reservedFields = map[string]bool{
	"level":  true,
	"time":   true,
	"caller": true,
}

// Writer intercepts zerolog JSON output, redacts it, writes the redacted line
// to the console and hands it to the batcher when one is configured.
type Writer struct {
	console   io.Writer
	sanitizer *sanitize.Sanitizer
	batcher   *Batcher
}

// NewConsole returns the console destination for the given format.
func NewConsole(format string) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}
	return os.Stderr
}

// NewWriter creates a redacting zerolog writer. A nil sanitizer passes lines
// through unchanged; a nil batcher disables shipping.
func NewWriter(console io.Writer, sanitizer *sanitize.Sanitizer, batcher *Batcher) *Writer {
	return &Writer{
		console:   console,
		sanitizer: sanitizer,
		batcher:   batcher,
	}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	n = len(p)

	raw, err := decodeRecord(p)
	if err != nil {
		// Not a zerolog record; pass through untouched
		if w.console != nil {
			_, _ = w.console.Write(p)
		}
		return n, nil
	}

	redacted := w.redact(raw)

	if w.console != nil {
		if line, err := json.Marshal(redacted); err == nil {
			_, _ = w.console.Write(append(line, '\n'))
		}
	}

	if w.batcher != nil {
		w.batcher.Add(entryFromFields(redacted))
	}

	return n, nil
}

// decodeRecord parses one zerolog line. Numbers stay json.Number so large
// integer fields are written back exactly.
func decodeRecord(p []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after log record")
	}
	return raw, nil
}

func (w *Writer) redact(raw map[string]any) map[string]any {
	if w.sanitizer == nil {
		return raw
	}

	out := make(map[string]any, len(raw))
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if reservedFields[k] {
			out[k] = v
			continue
		}
		fields[k] = v
	}

	if sanitized, ok := w.sanitizer.SanitizeValue(fields).(map[string]any); ok {
		for k, v := range sanitized {
			out[k] = v
		}
	}
	return out
}
