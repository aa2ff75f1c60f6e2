// Package hashutil provides canonical JSON encoding, content hashing, and
// Merkle tree construction shared by the audit chain (internal/audit) and
// the rule store (internal/rules) for deterministic, tamper-evident IDs.
//
// All functions here are pure and deterministic: the same value always
// canonicalizes, hashes, and summarizes to the same bytes, independent of
// map iteration order or process.
package hashutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// CanonicalJSON renders v as JSON with mapping keys sorted lexicographically
// at every level, timestamps as RFC3339Nano with an explicit timezone, and
// ordered sequences serialized in declared order. Unknown/unmarshalable
// leaf types fall back to their fmt.Sprintf("%v", ...) string form, matching
// the "coerce unknown types via string fallback" rule.
func CanonicalJSON(v any) ([]byte, error) {
	norm, err := normalize(reflect.ValueOf(v))
	if err != nil {
		return nil, fmt.Errorf("hashutil: canonicalize: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm); err != nil {
		return nil, fmt.Errorf("hashutil: encode canonical json: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; trim it so the hash
	// input is stable regardless of how the caller concatenates it.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalize walks v and produces a tree of Go maps/slices/scalars with map
// keys ready for json.Marshal's default sorted-key behavior (encoding/json
// already sorts map[string]any keys; normalize's job is to get every level
// into that shape, including struct values and non-string-keyed maps).
func normalize(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem())

	case reflect.Struct:
		// time.Time gets the canonical timestamp format.
		if t, ok := rv.Interface().(time.Time); ok {
			return formatTimestamp(t), nil
		}
		return normalizeStruct(rv)

	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			val, err := normalize(iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			val, err := normalize(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface(), nil

	default:
		// Unknown/unmarshalable leaf type (func, chan, complex, unsafe pointer):
		// coerce to its string form rather than failing the whole hash.
		return fmt.Sprintf("%v", rv.Interface()), nil
	}
}

func normalizeStruct(rv reflect.Value) (any, error) {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		name := field.Name
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if tag != "" {
			for j, r := range tag {
				if r == ',' {
					name = tag[:j]
					break
				}
				if j == len(tag)-1 {
					name = tag
				}
			}
			if name == "" {
				name = field.Name
			}
		}
		val, err := normalize(rv.Field(i))
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// HashContent returns hex(SHA256(CanonicalJSON(v))). Panics never escape:
// a normalization failure is folded into the hash of the error string so
// callers always receive a stable digest.
func HashContent(v any) string {
	b, err := CanonicalJSON(v)
	if err != nil {
		b = []byte(err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
