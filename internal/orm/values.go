package orm

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/deppfellow/abaita/internal/schema"
)

// normalize brings a value to the canonical form kept in instances:
// integers widen to int64, unsigned integers that fit too, and bytes of
// non-binary columns become strings.
func normalize(col schema.Column, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		if uint64(x) <= 1<<63-1 {
			return int64(x)
		}
	case uint64:
		if x <= 1<<63-1 {
			return int64(x)
		}
	case float32:
		return float64(x)
	case []byte:
		if col.Binary() {
			return append([]byte(nil), x...)
		}
		return string(x)
	}
	return v
}

// encodeKey turns primary-key values into an identity-map key.
func encodeKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}

// completeKey reports whether no key component is nil.
func completeKey(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v == nil {
			return false
		}
	}
	return true
}

// sequence returns the elements of v when it is a slice or array (other
// than []byte), or nil, false for a scalar.
func sequence(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if items, ok := v.([]any); ok {
		return items, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// emptyKey reports the null sentinels accepted by LoadByKey.
func emptyKey(key any) bool {
	switch k := key.(type) {
	case nil:
		return true
	case string:
		return k == ""
	case Attrs:
		return len(k) == 0
	case map[string]any:
		return len(k) == 0
	}
	if items, ok := sequence(key); ok {
		return len(items) == 0
	}
	return false
}
