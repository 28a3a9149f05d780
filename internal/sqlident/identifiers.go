package sqlident

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/pganalyze/pg_query_go/v5/parser"
)

// Object is a decoded JSON object that remembers its key order, so a walk
// over it follows the parse tree's own field order.
type Object struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.Values[key]
	return v, ok
}

// DecodeAST decodes a JSON parse tree into []any, *Object and scalar values.
func DecodeAST(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode parse tree: %w", err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &Object{Values: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.Values[key]; !dup {
				obj.Keys = append(obj.Keys, key)
			}
			obj.Values[key] = val
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// ExtractIdentifiers walks a parse tree and collects the relation and schema
// name of every RangeVar node and the string fields of every ColumnRef node.
// Identifiers come back in traversal order with duplicates kept. Plain
// map[string]any objects are visited in sorted key order.
func ExtractIdentifiers(ast any) []string {
	out := []string{}
	walk(ast, &out)
	return out
}

func walk(node any, out *[]string) {
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			walk(item, out)
		}
	case *Object:
		if n == nil {
			return
		}
		collect(n, out)
		for _, k := range n.Keys {
			walk(n.Values[k], out)
		}
	case map[string]any:
		collect(n, out)
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(n[k], out)
		}
	}
}

func collect(node any, out *[]string) {
	if rv, ok := lookup(node, "RangeVar"); ok {
		if name, ok := stringField(rv, "relname"); ok {
			*out = append(*out, name)
		}
		if schema, ok := stringField(rv, "schemaname"); ok && schema != "" {
			*out = append(*out, schema)
		}
	}

	if ref, ok := lookup(node, "ColumnRef"); ok {
		fields, _ := lookup(ref, "fields")
		items, _ := fields.([]any)
		for _, f := range items {
			s, ok := lookup(f, "String")
			if !ok {
				continue
			}
			if v, ok := stringField(s, "sval"); ok {
				*out = append(*out, v)
			} else if v, ok := stringField(s, "str"); ok {
				*out = append(*out, v)
			}
		}
	}
}

func lookup(node any, key string) (any, bool) {
	switch n := node.(type) {
	case *Object:
		return n.Get(key)
	case map[string]any:
		v, ok := n[key]
		return v, ok
	}
	return nil, false
}

func stringField(node any, key string) (string, bool) {
	v, ok := lookup(node, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ParseIdentifiers parses sql with the PostgreSQL parser and extracts its
// identifiers. Parser errors are returned as is.
func ParseIdentifiers(sql string) ([]string, error) {
	tree, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return nil, err
	}
	ast, err := DecodeAST([]byte(tree))
	if err != nil {
		return nil, err
	}
	return ExtractIdentifiers(ast), nil
}

// SyntaxError describes where the parser gave up, if err came from it.
func SyntaxError(err error) (message string, position int, ok bool) {
	var pgErr *parser.Error
	if errors.As(err, &pgErr) {
		return pgErr.Message, pgErr.Cursorpos, true
	}
	return "", 0, false
}
