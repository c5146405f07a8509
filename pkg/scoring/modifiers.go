package scoring

import (
	"math"
	"reflect"
	"strings"

	"mercator-hq/compass/pkg/rules"
)

// attribute looks up a dot-separated attribute path.
func attribute(c *rules.Context, path string) (any, bool) {
	var cur any = c.Attributes
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// TimeDecay subtracts rate_per_day for each day between the timestamp
// attribute and the as-of time, after grace_days and up to max_penalty. A
// missing timestamp contributes zero.
func TimeDecay(in Input) (float64, error) {
	field, err := in.Params.String("field")
	if err != nil {
		return 0, err
	}
	rate, err := in.Params.Float("rate_per_day", 1)
	if err != nil {
		return 0, err
	}
	maxPenalty, err := in.Params.Float("max_penalty", 0)
	if err != nil {
		return 0, err
	}
	grace, err := in.Params.Float("grace_days", 0)
	if err != nil {
		return 0, err
	}

	raw, ok := attribute(in.Context, field)
	if !ok {
		return 0, nil
	}
	ts, err := toTime(raw)
	if err != nil {
		return 0, err
	}

	days := in.AsOf.Sub(ts).Hours()/24 - grace
	if days <= 0 {
		return 0, nil
	}
	penalty := rate * days
	if maxPenalty > 0 && penalty > maxPenalty {
		penalty = maxPenalty
	}
	return -penalty, nil
}

// Magnitude adds factor × log10(1 + amount), capped at cap when cap > 0.
func Magnitude(in Input) (float64, error) {
	field, err := in.Params.String("field")
	if err != nil {
		return 0, err
	}
	factor, err := in.Params.Float("factor", 1)
	if err != nil {
		return 0, err
	}
	limit, err := in.Params.Float("cap", 0)
	if err != nil {
		return 0, err
	}

	raw, ok := attribute(in.Context, field)
	if !ok {
		return 0, nil
	}
	amount, err := toFloat(raw)
	if err != nil {
		return 0, err
	}

	v := factor * math.Log10(1+amount)
	if limit > 0 && v > limit {
		v = limit
	}
	return v, nil
}

// Signal adds weight × the caller-supplied signal override name.
func Signal(in Input) (float64, error) {
	name, err := in.Params.String("name")
	if err != nil {
		return 0, err
	}
	weight, err := in.Params.Float("weight", 1)
	if err != nil {
		return 0, err
	}
	return weight * in.Context.SignalOverrides[name], nil
}

// AttributeBoost adds boost when the attribute field equals the value equals.
func AttributeBoost(in Input) (float64, error) {
	field, err := in.Params.String("field")
	if err != nil {
		return 0, err
	}
	boost, err := in.Params.Float("boost", 0)
	if err != nil {
		return 0, err
	}

	raw, ok := attribute(in.Context, field)
	if !ok {
		return 0, nil
	}
	want := in.Params["equals"]
	if a, errA := toFloat(raw); errA == nil {
		if b, errB := toFloat(want); errB == nil && a == b {
			return boost, nil
		}
		return 0, nil
	}
	if reflect.DeepEqual(raw, want) {
		return boost, nil
	}
	return 0, nil
}
