package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// evaluateOperator compares actual against expected.
func evaluateOperator(op string, actual, expected any) (bool, error) {
	switch op {
	case "eq":
		return evaluateEqual(actual, expected), nil
	case "ne":
		return !evaluateEqual(actual, expected), nil
	case "lt", "gt", "le", "ge":
		a, b, err := toNumeric(actual, expected)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		switch op {
		case "lt":
			return a < b, nil
		case "gt":
			return a > b, nil
		case "le":
			return a <= b, nil
		default:
			return a >= b, nil
		}
	case "contains":
		return evaluateContains(actual, expected)
	case "matches":
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("matches requires a string field, got %T", actual)
		}
		pattern, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("matches requires a string pattern, got %T", expected)
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case "starts_with", "ends_with":
		s, ok1 := actual.(string)
		affix, ok2 := expected.(string)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("%s requires string operands, got %T and %T", op, actual, expected)
		}
		if op == "starts_with" {
			return strings.HasPrefix(s, affix), nil
		}
		return strings.HasSuffix(s, affix), nil
	case "in":
		return evaluateIn(actual, expected)
	case "not_in":
		in, err := evaluateIn(actual, expected)
		return !in, err
	default:
		return false, fmt.Errorf("unknown operator: %q", op)
	}
}

// evaluateEqual compares numbers by value and everything else deeply.
func evaluateEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	a, errA := convertToFloat64(actual)
	b, errB := convertToFloat64(expected)
	if errA == nil && errB == nil {
		return a == b
	}
	return reflect.DeepEqual(actual, expected)
}

// evaluateContains checks substring containment for strings and element
// membership for lists.
func evaluateContains(actual, expected any) (bool, error) {
	if s, ok := actual.(string); ok {
		sub, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("contains on a string requires a string value, got %T", expected)
		}
		return strings.Contains(s, sub), nil
	}
	return evaluateIn(expected, actual)
}

// evaluateIn checks whether actual is an element of the list expected.
func evaluateIn(actual, expected any) (bool, error) {
	list := reflect.ValueOf(expected)
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return false, fmt.Errorf("in requires a list, got %T", expected)
	}
	for i := 0; i < list.Len(); i++ {
		if evaluateEqual(actual, list.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

func toNumeric(actual, expected any) (float64, float64, error) {
	a, err := convertToFloat64(actual)
	if err != nil {
		return 0, 0, fmt.Errorf("field value: %w", err)
	}
	b, err := convertToFloat64(expected)
	if err != nil {
		return 0, 0, fmt.Errorf("comparison value: %w", err)
	}
	return a, b, nil
}

// convertToFloat64 converts numeric values to float64.
func convertToFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case interface{ Float64() (float64, error) }:
		return val.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", v)
	}
}
