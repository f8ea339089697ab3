package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Metadata is an open key/value map persisted as a JSON column.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value at key when it is a non-empty string.
func (m Metadata) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok && s != ""
}

// Int returns the value at key as an int. JSON numbers decode as float64,
// so whole floats and numeric strings are accepted too. Values outside the
// INT column range are rejected.
func (m Metadata) Int(key string) (int, bool) {
	var n int64
	switch v := m[key].(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if math.Abs(v) > math.MaxInt32 || v != math.Trunc(v) {
			return 0, false
		}
		n = int64(v)
	case json.Number:
		var err error
		if n, err = v.Int64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if n, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}
