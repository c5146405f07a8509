package scoring

import (
	"errors"
	"math"
	"testing"
	"time"

	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/logging"
)

var asOf = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithLogger(logging.Discard()))
}

func TestScore_BaseOnly(t *testing.T) {
	e := newTestEngine()
	res := e.Score(&rules.Rule{ID: "r", BaseScore: 42.5}, &rules.Context{}, asOf)
	if res.Score != 42.5 || len(res.Contributions) != 0 {
		t.Errorf("Score() = %+v, want 42.5 with no contributions", res)
	}
}

func TestScore_TimeDecayScenario(t *testing.T) {
	e := newTestEngine()
	r := &rules.Rule{
		ID:        "stale-followup",
		BaseScore: 40,
		Modifiers: []rules.ModifierSpec{{
			Name:   "time_decay",
			Params: map[string]any{"field": "last_activity_at", "rate_per_day": 1},
		}},
	}
	c := &rules.Context{Attributes: map[string]any{
		"last_activity_at": asOf.Add(-10 * 24 * time.Hour).Format(time.RFC3339),
	}}

	res := e.Score(r, c, asOf)
	if !AlmostEqual(res.Score, 30) {
		t.Errorf("Score() = %v, want 30", res.Score)
	}
	if len(res.Contributions) != 1 || !AlmostEqual(res.Contributions[0].Value, -10) {
		t.Errorf("Contributions = %+v, want one -10 time_decay", res.Contributions)
	}
}

func TestTimeDecay(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		last   any
		want   float64
	}{
		{"missing timestamp", map[string]any{"field": "last"}, nil, 0},
		{"within grace", map[string]any{"field": "last", "rate_per_day": 2, "grace_days": 5}, asOf.Add(-72 * time.Hour), 0},
		{"after grace", map[string]any{"field": "last", "rate_per_day": 2, "grace_days": 5}, asOf.Add(-7 * 24 * time.Hour), -4},
		{"capped", map[string]any{"field": "last", "rate_per_day": 5, "max_penalty": 12}, asOf.Add(-30 * 24 * time.Hour), -12},
		{"unix seconds", map[string]any{"field": "last"}, float64(asOf.Add(-48 * time.Hour).Unix()), -2},
		{"future timestamp", map[string]any{"field": "last"}, asOf.Add(24 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := map[string]any{}
			if tt.last != nil {
				attrs["last"] = tt.last
			}
			got, err := TimeDecay(Input{Context: &rules.Context{Attributes: attrs}, AsOf: asOf, Params: tt.params})
			if err != nil {
				t.Fatalf("TimeDecay() error = %v", err)
			}
			if !AlmostEqual(got, tt.want) {
				t.Errorf("TimeDecay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuiltinModifiers(t *testing.T) {
	c := &rules.Context{
		Attributes:      map[string]any{"amount": 999, "segment": "enterprise", "tier": 2},
		SignalOverrides: map[string]float64{"intent": 0.5},
	}

	tests := []struct {
		name string
		fn   Modifier
		p    Params
		want float64
	}{
		{"magnitude", Magnitude, Params{"field": "amount", "factor": 2}, 6},
		{"magnitude capped", Magnitude, Params{"field": "amount", "factor": 10, "cap": 25}, 25},
		{"magnitude missing", Magnitude, Params{"field": "nope"}, 0},
		{"signal", Signal, Params{"name": "intent", "weight": 20}, 10},
		{"signal absent", Signal, Params{"name": "churn", "weight": 20}, 0},
		{"boost string", AttributeBoost, Params{"field": "segment", "equals": "enterprise", "boost": 7}, 7},
		{"boost number", AttributeBoost, Params{"field": "tier", "equals": 2.0, "boost": 3}, 3},
		{"boost mismatch", AttributeBoost, Params{"field": "segment", "equals": "smb", "boost": 7}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(Input{Context: c, AsOf: asOf, Params: tt.p})
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !AlmostEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_FailingModifiersContributeZero(t *testing.T) {
	e := newTestEngine()
	e.Register("panics", func(Input) (float64, error) { panic("boom") })
	e.Register("errors", func(Input) (float64, error) { return 0, errors.New("lookup failed") })
	e.Register("nan", func(Input) (float64, error) { return math.NaN(), nil })
	e.Register("inf", func(Input) (float64, error) { return math.Inf(1), nil })
	e.Register("plus5", func(Input) (float64, error) { return 5, nil })

	r := &rules.Rule{ID: "r", BaseScore: 50, Modifiers: []rules.ModifierSpec{
		{Name: "panics"}, {Name: "errors"}, {Name: "nan"}, {Name: "inf"}, {Name: "unregistered"}, {Name: "plus5"},
		{Name: "magnitude", Params: map[string]any{"field": "amount"}},
	}}
	c := &rules.Context{Attributes: map[string]any{"amount": -5}}

	res := e.Score(r, c, asOf)
	if !AlmostEqual(res.Score, 55) {
		t.Errorf("Score() = %v, want 55", res.Score)
	}
	failed := 0
	for _, contrib := range res.Contributions {
		if contrib.Error != "" {
			failed++
			if contrib.Value != 0 {
				t.Errorf("failed modifier %s contributed %v", contrib.Modifier, contrib.Value)
			}
		}
	}
	if failed != 6 {
		t.Errorf("failed contributions = %d, want 6", failed)
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := newTestEngine()
	r := &rules.Rule{ID: "r", BaseScore: 10.1, Modifiers: []rules.ModifierSpec{
		{Name: "magnitude", Params: map[string]any{"field": "amount", "factor": 3.3}},
		{Name: "signal", Params: map[string]any{"name": "intent", "weight": 0.7}},
		{Name: "time_decay", Params: map[string]any{"field": "last", "rate_per_day": 0.37}},
	}}
	c := &rules.Context{
		Attributes:      map[string]any{"amount": 12345.67, "last": "2026-02-11T08:30:00Z"},
		SignalOverrides: map[string]float64{"intent": 0.123},
	}

	first := e.Score(r, c, asOf).Score
	for i := 0; i < 100; i++ {
		if got := e.Score(r, c, asOf).Score; math.Float64bits(got) != math.Float64bits(first) {
			t.Fatalf("run %d: Score() = %v, want bit-identical %v", i, got, first)
		}
	}
}

func TestAlmostEqual(t *testing.T) {
	if !AlmostEqual(0.1+0.2, 0.3) {
		t.Error("AlmostEqual(0.1+0.2, 0.3) = false")
	}
	if AlmostEqual(1, 1.00001) {
		t.Error("AlmostEqual(1, 1.00001) = true")
	}
}
