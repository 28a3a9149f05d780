package sanitize

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// identity is how a reference value is recognised when seen again. Slices
// also carry their length and type since several may share one backing array.
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type walker struct {
	s     *Sanitizer
	seen  map[identity]struct{}
	stats Stats
}

func newWalker(s *Sanitizer) *walker {
	return &walker{s: s, seen: make(map[identity]struct{})}
}

func (w *walker) value(v any, depth int) any {
	if v == nil {
		return nil
	}
	return w.walk(reflect.ValueOf(v), depth)
}

func (w *walker) redact() string {
	w.stats.Redactions++
	return w.s.redaction
}

func (w *walker) redactString(s string) string {
	out, n := redactString(s, w.s.redaction)
	w.stats.Redactions += n
	return out
}

func (w *walker) walk(rv reflect.Value, depth int) any {
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
	}

	if out, ok := w.simple(rv); ok {
		return out
	}

	if depth >= w.s.maxDepth {
		w.stats.Truncations++
		return w.s.truncationNotice
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return w.sequence(rv, depth)
	case reflect.Map:
		return w.mapValue(rv, depth)
	}

	if u, ok := asURL(rv); ok {
		return u
	}
	if rv.Type().Implements(errorType) && rv.CanInterface() {
		return w.errorValue(rv)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		if rv.Type().Implements(stringerType) {
			return w.stringValue(rv)
		}
		return w.pointer(rv, depth)
	case reflect.Struct:
		if rv.Type().Implements(stringerType) {
			return w.stringValue(rv)
		}
		return w.object(rv, depth)
	default:
		return w.stringValue(rv)
	}
}

// simple handles everything that is replaced or copied without looking at
// depth: scalars, strings, functions, times, regular expressions and
// binary buffers.
func (w *walker) simple(rv reflect.Value) (any, bool) {
	if rv.CanInterface() {
		switch t := rv.Interface().(type) {
		case json.Number:
			return t, true
		case *big.Int:
			return new(big.Int).Set(t), true
		case *big.Float:
			return new(big.Float).Copy(t), true
		case *big.Rat:
			return new(big.Rat).Set(t), true
		case time.Time:
			return t.UTC().Format(isoMillis), true
		case *time.Time:
			return t.UTC().Format(isoMillis), true
		case *regexp.Regexp:
			return "/" + t.String() + "/", true
		}
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return scalar(rv), true
	case reflect.String:
		return w.redactString(rv.String()), true
	case reflect.Func:
		return functionSentinel, true
	case reflect.Slice, reflect.Array:
		elem := rv.Type().Elem()
		switch {
		case (elem.Kind() == reflect.Uint8 || isTypedElem(elem.Kind())) && rv.Type().Implements(stringerType):
			// net.IP, uuid.UUID and friends render as text
			return w.stringValue(rv), true
		case elem.Kind() == reflect.Uint8:
			return fmt.Sprintf("[ArrayBuffer byteLength=%d]", rv.Len()), true
		case isTypedElem(elem.Kind()):
			return fmt.Sprintf("[TypedArray byteLength=%d]", rv.Len()*int(elem.Size())), true
		}
	case reflect.Pointer:
		switch rv.Elem().Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
			reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
			if rv.Type().Implements(errorType) {
				return nil, false
			}
			return w.simple(rv.Elem())
		}
	}
	return nil, false
}

// isTypedElem reports element kinds whose slices are treated as binary
// views rather than lists: the narrow fixed-width numerics.
func isTypedElem(k reflect.Kind) bool {
	switch k {
	case reflect.Int8, reflect.Int16, reflect.Uint16, reflect.Int32, reflect.Uint32, reflect.Float32:
		return true
	}
	return false
}

func scalar(rv reflect.Value) any {
	if rv.CanInterface() {
		return rv.Interface()
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return rv.Complex()
	}
}

// enter records rv as visited. It returns false when rv was already visited.
func (w *walker) enter(rv reflect.Value) bool {
	id := identity{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		id.len = rv.Len()
	}
	if _, ok := w.seen[id]; ok {
		w.stats.Circular++
		return false
	}
	w.seen[id] = struct{}{}
	return true
}

// trackable reports whether rv has an identity that can recur. Empty
// containers and zero-sized targets may share addresses without being the
// same value, and cannot lead back to themselves anyway.
func trackable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer:
		return rv.Type().Elem().Size() > 0
	}
	return false
}

func (w *walker) sequence(rv reflect.Value, depth int) any {
	if trackable(rv) && !w.enter(rv) {
		return circularSentinel
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = w.walk(rv.Index(i), depth+1)
	}
	return out
}

func (w *walker) pointer(rv reflect.Value, depth int) any {
	if trackable(rv) && !w.enter(rv) {
		return circularSentinel
	}
	return w.walk(rv.Elem(), depth)
}

func (w *walker) mapValue(rv reflect.Value, depth int) any {
	if trackable(rv) && !w.enter(rv) {
		return circularSentinel
	}

	t := rv.Type()
	switch {
	case t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0:
		return w.set(rv, depth)
	case t.Key().Kind() == reflect.String:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if w.s.IsSensitiveKey(key) {
				out[key] = w.redact()
				continue
			}
			out[key] = w.walk(iter.Value(), depth+1)
		}
		return out
	default:
		return w.pairs(rv, depth)
	}
}

type keyed struct {
	sortKey string
	key     reflect.Value
	value   reflect.Value
}

func sortedEntries(rv reflect.Value) []keyed {
	entries := make([]keyed, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, keyed{sortKey: keyString(iter.Key()), key: iter.Key(), value: iter.Value()})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].sortKey < entries[j].sortKey })
	return entries
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

// set renders map[K]struct{} as a list of its sanitized members.
func (w *walker) set(rv reflect.Value, depth int) any {
	entries := sortedEntries(rv)
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = w.walk(e.key, depth+1)
	}
	return out
}

// pairs renders a map whose key type is not plain string as [key, value]
// pairs. A sensitive key hides both halves.
func (w *walker) pairs(rv reflect.Value, depth int) any {
	entries := sortedEntries(rv)
	out := make([]any, len(entries))
	for i, e := range entries {
		if w.s.IsSensitiveKey(e.sortKey) {
			out[i] = []any{w.redact(), w.redact()}
			continue
		}
		out[i] = []any{w.walk(e.key, depth+1), w.walk(e.value, depth+1)}
	}
	return out
}

// object renders a struct as a map keyed by its JSON field names.
func (w *walker) object(rv reflect.Value, depth int) any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}
		if w.s.IsSensitiveKey(name) {
			out[name] = w.redact()
			continue
		}
		out[name] = w.walk(rv.Field(i), depth+1)
	}
	return out
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}

func asURL(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() {
		return "", false
	}
	switch u := rv.Interface().(type) {
	case *url.URL:
		return u.String(), true
	case url.URL:
		return u.String(), true
	}
	return "", false
}

func (w *walker) errorValue(rv reflect.Value) any {
	name := strings.TrimPrefix(rv.Type().String(), "*")
	message := safeCall(rv, func() string {
		return rv.Interface().(error).Error()
	})
	return map[string]any{
		"name":    name,
		"message": w.redactString(message),
		"stack":   w.s.truncationNotice,
	}
}

// stringValue is the fallback for values with no structural rendering.
func (w *walker) stringValue(rv reflect.Value) any {
	str := safeCall(rv, func() string {
		if rv.CanInterface() {
			if s, ok := rv.Interface().(fmt.Stringer); ok {
				return s.String()
			}
		}
		return typeTag(rv)
	})
	return w.redactString(str)
}

// safeCall runs fn and falls back to the type tag if it panics.
func safeCall(rv reflect.Value, fn func() string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = typeTag(rv)
		}
	}()
	return fn()
}

func typeTag(rv reflect.Value) string {
	return "[object " + rv.Type().String() + "]"
}
