package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/supabase/supabase-sub056/internal/sanitize"
)

var (
	sanitizeFile             string
	sanitizeMaxDepth         int
	sanitizeRedaction        string
	sanitizeTruncationNotice string
	sanitizeSensitiveKeys    []string
	sanitizeStats            bool
	sanitizeListKeys         bool
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [JSON]",
	Short: "Redact secrets from JSON before it is logged",
	Long: `Return a redacted copy of a JSON array. Values under sensitive keys and
secret-looking substrings (tokens, keys, credentials, IP addresses) are
replaced, and nesting past --max-depth is truncated.

A document that is not an array is sanitized as a single entry.

Examples:
  studiokit sanitize --file events.json
  echo '[{"password":"hunter2"}]' | studiokit sanitize
  studiokit sanitize --max-depth 5 --sensitive-key customerRef --file events.json
  studiokit sanitize --list-keys --sensitive-key customerRef`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSanitize,
}

func init() {
	sanitizeCmd.Flags().StringVarP(&sanitizeFile, "file", "f", "", "read the document from a file (- for stdin)")
	sanitizeCmd.Flags().IntVar(&sanitizeMaxDepth, "max-depth", sanitize.DefaultMaxDepth, "depth past which values are truncated")
	sanitizeCmd.Flags().StringVar(&sanitizeRedaction, "redaction", sanitize.DefaultRedaction, "replacement for redacted values")
	sanitizeCmd.Flags().StringVar(&sanitizeTruncationNotice, "truncation-notice", sanitize.DefaultTruncationNotice, "replacement for truncated values")
	sanitizeCmd.Flags().StringSliceVar(&sanitizeSensitiveKeys, "sensitive-key", nil, "additional sensitive key names")
	sanitizeCmd.Flags().BoolVar(&sanitizeStats, "stats", false, "print what was replaced to stderr")
	sanitizeCmd.Flags().BoolVar(&sanitizeListKeys, "list-keys", false, "print the sensitive key names and exit")
}

func runSanitize(cmd *cobra.Command, args []string) error {
	if sanitizeListKeys {
		keys := append(sanitize.DefaultSensitiveKeys(), sanitizeSensitiveKeys...)
		formatter.PrintList(keys)
		return nil
	}

	data, err := readInput(cmd, args, sanitizeFile)
	if err != nil {
		return err
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if sanitizeMaxDepth < 0 {
		return fmt.Errorf("--max-depth must not be negative")
	}
	s := sanitize.New(
		sanitize.WithMaxDepth(sanitizeMaxDepth),
		sanitize.WithRedaction(sanitizeRedaction),
		sanitize.WithTruncationNotice(sanitizeTruncationNotice),
		sanitize.WithSensitiveKeys(sanitizeSensitiveKeys...),
	)

	entries, isArray := doc.([]any)
	if !isArray {
		entries = []any{doc}
	}

	out, stats := s.SanitizeWithStats(entries)

	if sanitizeStats && !quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "redactions=%d truncations=%d circular=%d\n",
			stats.Redactions, stats.Truncations, stats.Circular)
	}

	if !isArray {
		return formatter.Print(out[0])
	}
	return formatter.Print(out)
}

// decodeDocument reads one JSON value with numbers kept as json.Number
func decodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return doc, nil
}
