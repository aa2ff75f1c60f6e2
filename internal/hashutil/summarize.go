package hashutil

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// SummarizeContent yields a short human-readable string describing v,
// bounded by max characters:
//   - strings are truncated with an ellipsis
//   - maps render as "dict with keys: [...]", itself truncated
//   - slices/arrays render as "list of N items"
//   - everything else renders as "<TypeName>"
func SummarizeContent(v any, max int) string {
	if max <= 0 {
		max = 1
	}
	s := summarizeValue(v)
	return TruncateRunes(s, max)
}

func summarizeValue(v any) string {
	if v == nil {
		return "<nil>"
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "<nil>"
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			keys = append(keys, fmt.Sprintf("%v", iter.Key().Interface()))
		}
		sort.Strings(keys)
		return fmt.Sprintf("dict with keys: [%s]", strings.Join(keys, ", "))
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("list of %d items", rv.Len())
	case reflect.Struct:
		return fmt.Sprintf("<%s>", rv.Type().Name())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// TruncateRunes truncates s to at most max runes, appending an ellipsis
// when truncation occurs. Operates on runes (not bytes) so multi-byte
// UTF-8 text is never split mid-character.
func TruncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
