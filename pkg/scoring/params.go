package scoring

import (
	"fmt"
	"strconv"
	"time"
)

// Params are the parameters of one modifier use.
type Params map[string]any

// Float returns the numeric parameter key, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return f, nil
}

// String returns the string parameter key. It is an error when absent.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("param %s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %s must be a non-empty string", key)
	}
	return s, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", v)
	}
}

// toTime accepts time.Time, RFC 3339 strings, dates and unix seconds.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		if ts, err := time.Parse(time.DateOnly, t); err == nil {
			return ts, nil
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", t)
	default:
		secs, err := toFloat(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}
}
