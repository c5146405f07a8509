package condition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"

	"mercator-hq/compass/pkg/rules"
)

// JSONLogicPredicate applies JSONLogic documents to the context view. The
// result is interpreted with JSONLogic truthiness.
type JSONLogicPredicate struct{}

// Evaluate implements Predicate.
func (JSONLogicPredicate) Evaluate(_ context.Context, cond *rules.Condition, c *rules.Context) (bool, error) {
	logic, err := encodeLogic(cond)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(c.View())
	if err != nil {
		return false, fmt.Errorf("encode context: %w", err)
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(logic), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("apply: %w", err)
	}

	var result any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false, fmt.Errorf("decode result: %w", err)
	}
	return truthy(result), nil
}

// Compile implements Predicate.
func (JSONLogicPredicate) Compile(cond *rules.Condition) error {
	logic, err := encodeLogic(cond)
	if err != nil {
		return err
	}
	if !jsonlogic.IsValid(bytes.NewReader(logic)) {
		return errors.New("invalid JSONLogic document")
	}
	return nil
}

func encodeLogic(cond *rules.Condition) ([]byte, error) {
	if cond.Logic == nil {
		return nil, errors.New("jsonlogic condition has no logic document")
	}
	logic, err := json.Marshal(cond.Logic)
	if err != nil {
		return nil, fmt.Errorf("encode logic: %w", err)
	}
	return logic, nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
