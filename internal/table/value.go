package table

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Stringify renders a raw record value the way search, filters, and plain
// cells see it. Nil becomes the empty string; lists are joined with commas.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.DateOnly)
	case fmt.Stringer:
		return t.String()
	}
	if items, ok := listItems(v); ok {
		return strings.Join(items, ",")
	}
	return fmt.Sprint(v)
}

// numeric returns v as a float64 when v holds a Go number. Numeric-looking
// strings are not numbers.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// listItems stringifies the elements of a slice value.
func listItems(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = Stringify(e)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is text, not a list.
		return nil, false
	}
	out := make([]string, rv.Len())
	for i := range out {
		out[i] = Stringify(rv.Index(i).Interface())
	}
	return out, true
}
