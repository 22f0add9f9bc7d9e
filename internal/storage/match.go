package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// MatchField reports whether the top-level field of a document equals value
// under the same comparison rules the engine's index lookups use: strings
// compare exactly, numbers and booleans compare numerically.
func MatchField(body json.RawMessage, field string, value any) (bool, error) {
	want, err := normalizeIndexValue(value)
	if err != nil {
		return false, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, fmt.Errorf("%w: decode body: %v", ErrInvalidRecord, err)
	}
	raw, ok := doc[field]
	if !ok {
		return false, nil
	}

	var got any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&got); err != nil {
		return false, fmt.Errorf("%w: decode field %s: %v", ErrInvalidRecord, field, err)
	}
	return sqlEqual(got, want), nil
}

func normalizeIndexValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: index value is nil", ErrInvalidRecord)
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string, int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64:
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported index value type %T", ErrInvalidRecord, value)
	}
}

func sqlEqual(got, want any) bool {
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		return ok && g == w
	case json.Number:
		gf, err := g.Float64()
		if err != nil {
			return false
		}
		wf, ok := numeric(want)
		return ok && gf == wf
	case bool:
		gf := 0.0
		if g {
			gf = 1
		}
		wf, ok := numeric(want)
		return ok && gf == wf
	default:
		return false
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
