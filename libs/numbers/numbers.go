package numbers

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractInt converts common scalar payload types into int64.
// Fractional floats are rejected rather than truncated.
func ExtractInt(val any) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("non-integral value %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseInt(s, 10, 64)
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported int type %T", val)
	}
}

// ExtractBool accepts booleans, 0/1 style numbers, and "true"/"false" strings.
// A missing value reads as false.
func ExtractBool(val any) (bool, error) {
	switch v := val.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid bool %q", v)
		}
		return n != 0, nil
	default:
		n, err := ExtractInt(val)
		if err != nil {
			return false, fmt.Errorf("unsupported bool type %T", val)
		}
		return n != 0, nil
	}
}
