// Package validation checks flag keys, environment names and the flags a
// snapshot carries.
package validation

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
)

const (
	// MaxKeyLength is the maximum length for flag keys
	MaxKeyLength = 64
	// MaxEnvLength is the maximum length for environment names
	MaxEnvLength = 32
	// MinRollout is the minimum rollout percentage
	MinRollout = 0
	// MaxRollout is the maximum rollout percentage
	MaxRollout = 100
	// MaxVariantNameLength is the maximum length for variant names
	MaxVariantNameLength = 64
)

// keyPattern matches alphanumeric characters, underscores, and hyphens
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// Err returns nil for a valid result and otherwise one error listing every field in order.
func (v *ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	fields := make([]string, 0, len(v.Errors))
	for f := range v.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + v.Errors[f]
	}
	return errors.New(strings.Join(parts, "; "))
}

// ValidateKey validates a flag key
func ValidateKey(key string) *ValidationResult {
	result := NewValidationResult()
	key = strings.TrimSpace(key)

	if key == "" {
		result.AddError("key", "Key is required")
		return result
	}
	if utf8.RuneCountInString(key) > MaxKeyLength {
		result.AddError("key", "Key must not exceed 64 characters")
		return result
	}
	if !keyPattern.MatchString(key) {
		result.AddError("key", "Key must contain only alphanumeric characters, underscores, and hyphens")
	}
	return result
}

// ValidateEnv validates an environment name
func ValidateEnv(env string) *ValidationResult {
	result := NewValidationResult()
	env = strings.TrimSpace(env)

	if env == "" {
		result.AddError("env", "Environment is required")
		return result
	}
	if utf8.RuneCountInString(env) > MaxEnvLength {
		result.AddError("env", "Environment must not exceed 32 characters")
	}
	return result
}

// ValidateRollout validates a rollout percentage
func ValidateRollout(rollout int32) *ValidationResult {
	result := NewValidationResult()
	if rollout < MinRollout || rollout > MaxRollout {
		result.AddError("rollout", "Rollout must be between 0 and 100")
	}
	return result
}

// ValidateVariants checks names are present and unique and weights sum to 100.
// No variants is valid.
func ValidateVariants(variants []snapshot.Variant) *ValidationResult {
	result := NewValidationResult()
	if len(variants) == 0 {
		return result
	}

	totalWeight := 0
	seenNames := make(map[string]bool)
	for _, v := range variants {
		switch {
		case strings.TrimSpace(v.Name) == "":
			result.AddError("variants", "Variant name cannot be empty")
		case utf8.RuneCountInString(v.Name) > MaxVariantNameLength:
			result.AddError("variants", "Variant name must not exceed 64 characters")
		case seenNames[v.Name]:
			result.AddError("variants", "Duplicate variant name: "+v.Name)
		case v.Weight < 0 || v.Weight > 100:
			result.AddError("variants", "Variant weight must be between 0 and 100")
		}
		if !result.Valid {
			return result
		}
		seenNames[v.Name] = true
		totalWeight += v.Weight
	}

	if totalWeight != 100 {
		result.AddError("variants", "Variant weights must sum to 100")
	}
	return result
}

// ValidateFlagView checks a flag received in a snapshot.
func ValidateFlagView(flag snapshot.FlagView) *ValidationResult {
	result := ValidateKey(flag.Key)
	result.Merge(ValidateRollout(flag.Rollout))
	result.Merge(ValidateVariants(flag.Variants))
	return result
}
