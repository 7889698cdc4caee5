package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// convert coerces a raw value into the field's kind. Nil stays nil.
func convert(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var (
		out any
		err error
	)
	switch f.kind() {
	case KindString:
		out, err = toString(v)
	case KindDate:
		out, err = toDate(v)
	case KindInt:
		out, err = toInt64(v)
	case KindFloat:
		out, err = toFloat64(v)
	case KindBool:
		out, err = toBool(v)
	default:
		err = fmt.Errorf("unknown kind %q", f.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidField, f.SourceName(), err)
	}
	return out, nil
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339), nil
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		return types.KeyString(v), nil
	}
}

// toDate reduces timestamps to their calendar date. Time of day and zone are dropped;
// the date is the one observed in the timestamp's own location.
func toDate(v any) (civil.Date, error) {
	switch t := v.(type) {
	case civil.Date:
		return t, nil
	case time.Time:
		return civil.DateOf(t), nil
	case *time.Time:
		if t == nil {
			return civil.Date{}, nil
		}
		return civil.DateOf(*t), nil
	case string:
		return parseDateString(t)
	case []byte:
		return parseDateString(string(t))
	}
	ms, err := toInt64(v)
	if err != nil {
		return civil.Date{}, fmt.Errorf("unsupported date value %T", v)
	}
	return civil.DateOf(time.UnixMilli(ms).UTC()), nil
}

func parseDateString(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, fmt.Errorf("empty date")
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(ts), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unparsable date %q", s)
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("unparsable integer %q", t)
		}
		return floatToInt(f)
	default:
		return 0, fmt.Errorf("unsupported integer value %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("value %v is not integral", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("unparsable float %q", t)
		}
		return f, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("unsupported float value %T", v)
	}
	return float64(i), nil
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("unparsable bool %q", t)
		}
		return b, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("unsupported bool value %T", v)
	}
	return i != 0, nil
}
