package flagclient

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TimurManjosov/flagpage/internal/evaluation"
)

// DefaultKind is used when NewContext gets an empty kind.
const DefaultKind = "user"

var kindPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// EvaluationContext identifies who or what a flag is evaluated for.
// It is immutable; build a new one instead of changing it.
type EvaluationContext struct {
	key  string
	kind string
	name string
}

// NewContext validates and builds a context. key must be non-empty; kind may only
// contain letters, digits, '.', '_' and '-' and cannot be the literal "kind".
func NewContext(key, kind, name string) (EvaluationContext, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return EvaluationContext{}, fmt.Errorf("%w: key is required", ErrInvalidContext)
	}
	if kind == "" {
		kind = DefaultKind
	}
	if kind == "kind" || !kindPattern.MatchString(kind) {
		return EvaluationContext{}, fmt.Errorf("%w: kind %q is not allowed", ErrInvalidContext, kind)
	}
	return EvaluationContext{key: key, kind: kind, name: name}, nil
}

func (c EvaluationContext) Key() string  { return c.key }
func (c EvaluationContext) Kind() string { return c.kind }
func (c EvaluationContext) Name() string { return c.name }

// Attributes is the view targeting expressions get of the context.
func (c EvaluationContext) Attributes() map[string]any {
	attrs := map[string]any{"key": c.key, "kind": c.kind}
	if c.name != "" {
		attrs["name"] = c.name
	}
	return attrs
}

func (c EvaluationContext) evaluationContext() evaluation.Context {
	return evaluation.Context{Key: c.key, Attributes: c.Attributes()}
}
