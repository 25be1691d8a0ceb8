// Package targeting matches evaluation contexts against JSON Logic expressions
// (jsonlogic.com) carried on flags in the snapshot.
package targeting

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// Attributes is the data an expression sees, e.g. {"key": "...", "kind": "device", "name": "Linux"}.
type Attributes map[string]any

// ErrInvalidExpression is returned when an expression is not valid JSON Logic.
var ErrInvalidExpression = errors.New("invalid expression: not valid JSON Logic")

// Match applies expression to attrs and reports whether the result is truthy.
// A blank expression targets everyone.
func Match(expression string, attrs Attributes) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	if attrs == nil {
		attrs = Attributes{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return false, err
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), bytes.NewReader(data), &out); err != nil {
		return false, ErrInvalidExpression
	}

	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false, err
	}
	return truthy(result), nil
}

// truthy follows JavaScript truthiness, which is what JSON Logic authors expect.
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
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
