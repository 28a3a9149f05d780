package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default between runs of rootCmd
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Fields(strings.TrimSpace(s))
}

const propsYAML = `
- name: status
  label: Status
  type: string
  operators: ["=", "<>"]
  options: [open, shipped]
- name: total
  label: Total
  type: number
`

func writeProps(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "props.yaml")
	require.NoError(t, os.WriteFile(path, []byte(propsYAML), 0o600))
	return path
}

// =============================================================================
// Root and version
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "studiokit dev")
	assert.Contains(t, out, "Commit: unknown")
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := executeCommand(t, "", "-o", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestParseTableRef(t *testing.T) {
	schema, table, err := parseTableRef("orders")
	require.NoError(t, err)
	assert.Equal(t, "public", schema)
	assert.Equal(t, "orders", table)

	schema, table, err = parseTableRef("sales.orders")
	require.NoError(t, err)
	assert.Equal(t, "sales", schema)
	assert.Equal(t, "orders", table)

	_, _, err = parseTableRef("sales.")
	assert.Error(t, err)
}

// =============================================================================
// filter
// =============================================================================

func TestFilterValidate(t *testing.T) {
	props := writeProps(t)

	t.Run("valid", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "validate", "--properties", props,
			`{"logicalOperator":"AND","conditions":[{"propertyName":"status","operator":"=","value":"open"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "valid\n", out)
	})

	t.Run("operator not allowed", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "validate", "--properties", props, "-o", "json",
			`{"logicalOperator":"AND","conditions":[{"propertyName":"status","operator":">","value":"open"}]}`)
		assert.ErrorIs(t, err, errFilterInvalid)
		assert.JSONEq(t, `{"valid":false}`, out)
	})

	t.Run("filter from stdin", func(t *testing.T) {
		out, err := executeCommand(t, `{"logicalOperator":"OR","conditions":[]}`, "filter", "validate", "--properties", props)
		require.NoError(t, err)
		assert.Equal(t, "valid\n", out)
	})

	t.Run("leaf at the root", func(t *testing.T) {
		_, err := executeCommand(t, "", "filter", "validate", `{"propertyName":"status","operator":"=","value":1}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid filter")
	})
}

func TestFilterNormalize(t *testing.T) {
	out, err := executeCommand(t, "", "filter", "normalize",
		`{"logicalOperator":"OR","conditions":[{"logicalOperator":"OR","conditions":[]}]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"logicalOperator":"AND","conditions":[{"logicalOperator":"AND","conditions":[]}]}`, out)
}

func TestFilterGenerated(t *testing.T) {
	props := writeProps(t)

	_, err := executeCommand(t, "", "filter", "generated", "--properties", props,
		`{"logicalOperator":"AND","conditions":[{"propertyName":"missing","operator":"=","value":1}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFilterSerialize(t *testing.T) {
	props := writeProps(t)

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "serialize", "--properties", props, "-o", "json")
		require.NoError(t, err)

		var got []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, []any{"=", "<>"}, got[0]["operators"])
		assert.Equal(t, []any{"open", "shipped"}, got[0]["options"])
	})

	t.Run("table", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "serialize", "--properties", props)
		require.NoError(t, err)
		assert.Contains(t, out, "open, shipped")
	})

	t.Run("requires a schema", func(t *testing.T) {
		_, err := executeCommand(t, "", "filter", "serialize")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--properties")
	})
}

func TestFilterEdit(t *testing.T) {
	tree := `{"logicalOperator":"AND","conditions":[{"propertyName":"status","operator":"=","value":"open"},{"logicalOperator":"OR","conditions":[]}]}`

	t.Run("add condition", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "edit", "--op", "add_condition", "--path", "1",
			"--property", "total", "--properties", writeProps(t), tree)
		require.NoError(t, err)
		assert.JSONEq(t, `{"logicalOperator":"AND","conditions":[
			{"propertyName":"status","operator":"=","value":"open"},
			{"logicalOperator":"OR","conditions":[{"propertyName":"total","operator":"=","value":null}]}]}`, out)
	})

	t.Run("json value keeps large integers", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "edit", "--op", "update_value", "--path", "0",
			"--value", "12345678901234567890", tree)
		require.NoError(t, err)
		assert.Contains(t, out, `"value": 12345678901234567890`)
	})

	t.Run("plain string value", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "edit", "--op", "update_value", "--path", "0",
			"--value", "shipped", tree)
		require.NoError(t, err)
		assert.Contains(t, out, `"value": "shipped"`)
	})

	t.Run("logical operator", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "edit", "--op", "set_logical_operator",
			"--logical-operator", "or", tree)
		require.NoError(t, err)
		assert.Contains(t, out, `"logicalOperator": "OR"`)
	})

	t.Run("unknown property", func(t *testing.T) {
		_, err := executeCommand(t, "", "filter", "edit", "--op", "add_condition",
			"--property", "missing", "--properties", writeProps(t), tree)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown property")
	})

	t.Run("op is required", func(t *testing.T) {
		_, err := executeCommand(t, "", "filter", "edit", tree)
		require.Error(t, err)
	})
}

func TestFilterWhere(t *testing.T) {
	filterJSON := `{"logicalOperator":"AND","conditions":[{"propertyName":"status","operator":"=","value":"open"}]}`

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "where", "-o", "json", filterJSON)
		require.NoError(t, err)
		assert.JSONEq(t, `{"sql":"status = $1","args":["open"]}`, out)
	})

	t.Run("offset", func(t *testing.T) {
		out, err := executeCommand(t, "", "filter", "where", "--offset", "2", filterJSON)
		require.NoError(t, err)
		assert.Contains(t, out, "status = $3")
		assert.Contains(t, out, `"open"`)
	})
}

// =============================================================================
// sql
// =============================================================================

func TestSQLIdentifiers(t *testing.T) {
	out, err := executeCommand(t, "", "sql", "identifiers", "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", "id", "name"}, lines(out))

	_, err = executeCommand(t, "", "sql", "identifiers", "SELEC id FROM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error at position")
}

func TestSQLNeedsQuoting(t *testing.T) {
	out, err := executeCommand(t, "", "sql", "needs-quoting", "-o", "json", "users", "MyTable")
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"identifier":"users","needs_quoting":"false","quoted":"users"},
		{"identifier":"MyTable","needs_quoting":"true","quoted":"\"MyTable\""}
	]`, out)
}

func TestSQLCheck(t *testing.T) {
	t.Run("issues", func(t *testing.T) {
		out, err := executeCommand(t, "", "sql", "check", "--known", "MyTable,id", "SELECT id FROM MyTable")
		assert.ErrorIs(t, err, errQuotingIssues)
		assert.Contains(t, out, `"MyTable"`)
		assert.Contains(t, out, "contains uppercase characters")
	})

	t.Run("clean", func(t *testing.T) {
		out, err := executeCommand(t, "", "sql", "check", "--known", "MyTable", `SELECT id FROM "MyTable"`)
		require.NoError(t, err)
		assert.Contains(t, out, "no quoting issues")
	})

	t.Run("introspect without server", func(t *testing.T) {
		t.Setenv("STUDIOKIT_SERVER", "")
		_, err := executeCommand(t, "", "sql", "check", "--introspect", "SELECT 1")
		assert.ErrorIs(t, err, errNoServer)
	})

	t.Run("introspect", func(t *testing.T) {
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/sql/quoting", r.URL.Path)
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"known":[],"report":{"identifiers":["orders"],"issues":[],"valid":true}}`))
		}))
		defer srv.Close()

		out, err := executeCommand(t, "", "--server", srv.URL, "sql", "check", "--introspect", "SELECT * FROM orders")
		require.NoError(t, err)
		assert.Contains(t, out, "1 identifiers referenced")
		assert.Equal(t, true, gotBody["introspect"])
	})
}

// =============================================================================
// sanitize
// =============================================================================

func TestSanitize(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		out, err := executeCommand(t, `[{"user":"ann","password":"hunter2"}]`, "sanitize")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"user":"ann","password":"[REDACTED]"}]`, out)
	})

	t.Run("single document and custom options", func(t *testing.T) {
		out, err := executeCommand(t, "", "sanitize", "--redaction", "***", "--sensitive-key", "customerRef",
			`{"customerRef":"c-1","note":"ok"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"customerRef":"***","note":"ok"}`, out)
	})

	t.Run("depth", func(t *testing.T) {
		out, err := executeCommand(t, "", "sanitize", "--max-depth", "0", `[{"a":1}]`)
		require.NoError(t, err)
		assert.JSONEq(t, `["[REDACTED: max depth reached]"]`, out)
	})

	t.Run("list keys", func(t *testing.T) {
		out, err := executeCommand(t, "", "sanitize", "--list-keys", "--sensitive-key", "customerRef")
		require.NoError(t, err)
		keys := lines(out)
		assert.Contains(t, keys, "password")
		assert.Equal(t, "customerRef", keys[len(keys)-1])
	})

	t.Run("large integers are kept exactly", func(t *testing.T) {
		out, err := executeCommand(t, `[{"n":12345678901234567890,"f":1.50}]`, "sanitize", "-o", "json")
		require.NoError(t, err)
		assert.Contains(t, out, "12345678901234567890")
		assert.Contains(t, out, "1.50")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := executeCommand(t, "", "sanitize", "{")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := executeCommand(t, "", "sanitize", `[] []`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

// =============================================================================
// tables
// =============================================================================

func TestTablesCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/schemas/tables":
			assert.Equal(t, "public", r.URL.Query().Get("schema"))
			_, _ = w.Write([]byte(`[{"schema":"public","name":"Order Lines","qualified":"public.\"Order Lines\"","type":"table","columns":3}]`))
		case "/api/v1/schemas/public/tables/orders/properties":
			_, _ = w.Write([]byte(`{"schema":"public","table":"orders","properties":[
				{"name":"status","label":"status","type":"string","operators":["=","<>"],"options":["open","shipped"]}]}`))
		case "/api/v1/schemas/refresh":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"tables":4}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not found","code":"NOT_FOUND"}`))
		}
	}))
	defer srv.Close()

	t.Run("list", func(t *testing.T) {
		out, err := executeCommand(t, "", "--server", srv.URL, "tables", "list", "--schema", "public")
		require.NoError(t, err)
		assert.Contains(t, out, `public."Order Lines"`)
	})

	t.Run("properties as a schema file", func(t *testing.T) {
		out, err := executeCommand(t, "", "--server", srv.URL, "tables", "properties", "orders", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"name":"status","label":"status","type":"string","operators":["=","<>"],"options":["open","shipped"]}]`, out)
	})

	t.Run("filter validate against a table", func(t *testing.T) {
		out, err := executeCommand(t, "", "--server", srv.URL, "filter", "validate", "--table", "public.orders",
			`{"logicalOperator":"AND","conditions":[{"propertyName":"status","operator":"<>","value":"open"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "valid\n", out)
	})

	t.Run("refresh", func(t *testing.T) {
		out, err := executeCommand(t, "", "--server", srv.URL, "tables", "refresh")
		require.NoError(t, err)
		assert.Contains(t, out, "4 tables")
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := executeCommand(t, "", "--server", srv.URL, "tables", "properties", "public.nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOT_FOUND")
	})
}
