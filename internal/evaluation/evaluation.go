// Package evaluation evaluates a single flag from the local snapshot for one context.
//
// Evaluation is pure: no I/O and no shared state, so callers may run it from any
// number of goroutines against the same snapshot.
//
// Evaluation order (each step can short-circuit):
//
//  1. flag disabled            -> Enabled=false, Reason DISABLED
//  2. expression present       -> no match: TARGETING_MISS; invalid: ERROR
//  3. rollout below 100        -> context outside the bucket range: ROLLOUT_EXCLUDED
//  4. variants configured      -> assign a variant, variant config wins over flag config
//  5. otherwise                -> Enabled=true, Reason MATCH
package evaluation

import (
	"github.com/TimurManjosov/flagpage/internal/rollout"
	"github.com/TimurManjosov/flagpage/internal/snapshot"
	"github.com/TimurManjosov/flagpage/internal/targeting"
)

// Reason explains how a result was reached.
type Reason string

const (
	ReasonDisabled        Reason = "DISABLED"
	ReasonTargetingMiss   Reason = "TARGETING_MISS"
	ReasonRolloutExcluded Reason = "ROLLOUT_EXCLUDED"
	ReasonMatch           Reason = "MATCH"
	ReasonError           Reason = "ERROR"
)

// Context is what the evaluator knows about the caller: a key for bucketing and
// attributes for targeting expressions.
type Context struct {
	Key        string
	Attributes map[string]any
}

// Result is the outcome for one flag. Err is set only when Reason is ERROR.
type Result struct {
	Key     string         `json:"key"`
	Enabled bool           `json:"enabled"`
	Variant string         `json:"variant,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
	Reason  Reason         `json:"reason"`
	Err     error          `json:"-"`
}

// EvaluateFlag runs the steps listed in the package doc. An empty salt is allowed
// but weakens bucketing.
func EvaluateFlag(flag snapshot.FlagView, ctx Context, salt string) Result {
	result := Result{Key: flag.Key}

	if !flag.Enabled {
		result.Reason = ReasonDisabled
		return result
	}

	if flag.Expression != nil {
		matched, err := targeting.Match(*flag.Expression, attributesFor(ctx))
		if err != nil {
			result.Reason = ReasonError
			result.Err = err
			return result
		}
		if !matched {
			result.Reason = ReasonTargetingMiss
			return result
		}
	}

	if flag.Rollout < 100 {
		in, err := rollout.Included(ctx.Key, flag.Key, flag.Rollout, salt)
		if err != nil {
			result.Reason = ReasonError
			result.Err = err
			return result
		}
		if !in {
			result.Reason = ReasonRolloutExcluded
			return result
		}
	}

	result.Enabled = true
	result.Reason = ReasonMatch
	result.Variant, result.Config = resolveVariant(flag, ctx.Key, salt)
	return result
}

// attributesFor exposes the context to expressions. "key" always reflects ctx.Key.
func attributesFor(ctx Context) targeting.Attributes {
	attrs := make(targeting.Attributes, len(ctx.Attributes)+1)
	for k, v := range ctx.Attributes {
		attrs[k] = v
	}
	if ctx.Key != "" {
		attrs["key"] = ctx.Key
	}
	return attrs
}

// resolveVariant falls back to the flag config whenever no variant applies
// or the chosen variant carries no config of its own.
func resolveVariant(flag snapshot.FlagView, contextKey, salt string) (string, map[string]any) {
	if len(flag.Variants) == 0 {
		return "", flag.Config
	}
	variants := make([]rollout.Variant, len(flag.Variants))
	for i, v := range flag.Variants {
		variants[i] = rollout.Variant{Name: v.Name, Weight: v.Weight, Config: v.Config}
	}
	picked, ok, err := rollout.Pick(contextKey, flag.Key, variants, salt)
	if err != nil || !ok {
		return "", flag.Config
	}
	if picked.Config != nil {
		return picked.Name, picked.Config
	}
	return picked.Name, flag.Config
}
