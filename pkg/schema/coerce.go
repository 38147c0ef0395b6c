// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"time"

	"github.com/joomcode/errorx"
)

// Coerce converts a decoded value to the canonical Go representation of the attribute type:
//
//	string  -> string
//	integer -> int64
//	float   -> float64
//	boolean -> bool
//	date    -> string (RFC 3339, UTC)
//	binary  -> []byte
//
// Values produced by the JSON, YAML and TOML decoders are all accepted. A nil value stays nil.
func Coerce(t AttributeType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInteger:
		return toInt64(v)
	case TypeFloat:
		return toFloat64(v)
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(time.RFC3339Nano), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, d)
			if err != nil {
				return nil, errorx.IllegalFormat.Wrap(err, "invalid date %q", d)
			}
			return parsed.UTC().Format(time.RFC3339Nano), nil
		}
	case TypeBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, errorx.IllegalFormat.Wrap(err, "invalid base64 value")
			}
			return decoded, nil
		}
	default:
		return nil, errorx.IllegalArgument.New("unsupported attribute type %q", t)
	}

	return nil, errorx.IllegalArgument.New("cannot use %T value as %s", v, t)
}

func toInt64(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, errorx.IllegalArgument.New("integer %d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, errorx.IllegalArgument.New("integer %d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, errorx.IllegalFormat.Wrap(err, "invalid integer %q", n.String())
		}
		return i, nil
	}

	return nil, errorx.IllegalArgument.New("cannot use %T value as %s", v, TypeInteger)
}

func floatToInt64(f float64) (interface{}, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, errorx.IllegalArgument.New("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, errorx.IllegalFormat.Wrap(err, "invalid float %q", n.String())
		}
		return f, nil
	}

	return nil, errorx.IllegalArgument.New("cannot use %T value as %s", v, TypeFloat)
}
