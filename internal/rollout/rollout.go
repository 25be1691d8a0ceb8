// Package rollout assigns evaluation contexts to percentage buckets and variants.
//
// Bucketing hashes the context key together with the flag key and a salt, so a
// given context always lands in the same bucket (0-99) for a given flag. Raising a
// rollout percentage therefore only adds contexts, it never removes any.
package rollout

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const buckets = 100

var (
	// ErrInvalidRollout is returned when a rollout percentage is outside 0..100.
	ErrInvalidRollout = errors.New("rollout must be between 0 and 100")

	// ErrInvalidVariantWeights is returned when variant weights don't sum to 100.
	ErrInvalidVariantWeights = errors.New("variant weights must sum to 100")
)

// Variant is one arm of a multi-variant flag.
type Variant struct {
	Name   string
	Weight int
	Config map[string]any
}

// Bucket returns the deterministic bucket (0-99) for a context key on a flag,
// or -1 when the context key is empty.
func Bucket(contextKey, flagKey, salt string) int {
	if contextKey == "" {
		return -1
	}
	sum := xxhash.Sum64String(contextKey + ":" + flagKey + ":" + salt)
	return int(sum % buckets)
}

// Included reports whether a context falls inside a percentage rollout.
// 0 excludes everyone and 100 includes everyone, including anonymous contexts;
// anything in between requires a context key.
func Included(contextKey, flagKey string, percent int32, salt string) (bool, error) {
	switch {
	case percent < 0 || percent > 100:
		return false, ErrInvalidRollout
	case percent == 0:
		return false, nil
	case percent == 100:
		return true, nil
	}
	b := Bucket(contextKey, flagKey, salt)
	if b < 0 {
		return false, nil
	}
	return b < int(percent), nil
}

// ValidateVariants checks names are non-empty and unique and weights sum to 100.
// An empty list is valid.
func ValidateVariants(variants []Variant) error {
	if len(variants) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(variants))
	total := 0
	for _, v := range variants {
		if v.Name == "" {
			return errors.New("variant name cannot be empty")
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("duplicate variant name: %s", v.Name)
		}
		seen[v.Name] = struct{}{}
		if v.Weight < 0 || v.Weight > 100 {
			return fmt.Errorf("variant %s: weight must be between 0 and 100", v.Name)
		}
		total += v.Weight
	}
	if total != 100 {
		return ErrInvalidVariantWeights
	}
	return nil
}

// Pick selects the variant for a context by walking cumulative weights.
// Example: [A:50, B:30, C:20] maps buckets 0-49 to A, 50-79 to B, 80-99 to C.
//
// ok is false when there are no variants or the context key is empty.
func Pick(contextKey, flagKey string, variants []Variant, salt string) (v Variant, ok bool, err error) {
	if len(variants) == 0 {
		return Variant{}, false, nil
	}
	if err := ValidateVariants(variants); err != nil {
		return Variant{}, false, err
	}
	b := Bucket(contextKey, flagKey, salt)
	if b < 0 {
		return Variant{}, false, nil
	}
	cumulative := 0
	for _, candidate := range variants {
		cumulative += candidate.Weight
		if b < cumulative {
			return candidate, true, nil
		}
	}
	// unreachable once weights are validated
	return variants[len(variants)-1], true, nil
}
