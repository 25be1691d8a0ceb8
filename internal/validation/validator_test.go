package validation

import (
	"strings"
	"testing"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		wantValid   bool
		wantMessage string
	}{
		{name: "valid alphanumeric", key: "my_flag_123", wantValid: true},
		{name: "valid with hyphen", key: "test-flag", wantValid: true},
		{name: "empty key", key: "", wantMessage: "Key is required"},
		{name: "whitespace only", key: "   ", wantMessage: "Key is required"},
		{name: "too long", key: strings.Repeat("a", 65), wantMessage: "Key must not exceed 64 characters"},
		{name: "exactly 64 chars", key: strings.Repeat("a", 64), wantValid: true},
		{name: "contains spaces", key: "my flag", wantMessage: "Key must contain only alphanumeric characters, underscores, and hyphens"},
		{name: "contains dot", key: "my.flag", wantMessage: "Key must contain only alphanumeric characters, underscores, and hyphens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateKey(tt.key)
			if result.Valid != tt.wantValid {
				t.Errorf("ValidateKey(%q).Valid = %v, want %v", tt.key, result.Valid, tt.wantValid)
			}
			if !tt.wantValid && result.Errors["key"] != tt.wantMessage {
				t.Errorf("ValidateKey(%q) error = %q, want %q", tt.key, result.Errors["key"], tt.wantMessage)
			}
		})
	}
}

func TestValidateEnv(t *testing.T) {
	tests := []struct {
		env       string
		wantValid bool
	}{
		{"prod", true},
		{"", false},
		{"  ", false},
		{strings.Repeat("e", 32), true},
		{strings.Repeat("e", 33), false},
	}
	for _, tt := range tests {
		if got := ValidateEnv(tt.env).Valid; got != tt.wantValid {
			t.Errorf("ValidateEnv(%q).Valid = %v, want %v", tt.env, got, tt.wantValid)
		}
	}
}

func TestValidateRollout(t *testing.T) {
	for _, r := range []int32{0, 50, 100} {
		if !ValidateRollout(r).Valid {
			t.Errorf("Expected rollout %d to be valid", r)
		}
	}
	for _, r := range []int32{-1, 101} {
		if ValidateRollout(r).Valid {
			t.Errorf("Expected rollout %d to be invalid", r)
		}
	}
}

func TestValidateVariants(t *testing.T) {
	tests := []struct {
		name        string
		variants    []snapshot.Variant
		wantValid   bool
		wantMessage string
	}{
		{name: "none", wantValid: true},
		{name: "valid split", variants: []snapshot.Variant{{Name: "a", Weight: 30}, {Name: "b", Weight: 70}}, wantValid: true},
		{name: "empty name", variants: []snapshot.Variant{{Name: "", Weight: 100}}, wantMessage: "Variant name cannot be empty"},
		{name: "duplicate", variants: []snapshot.Variant{{Name: "a", Weight: 50}, {Name: "a", Weight: 50}}, wantMessage: "Duplicate variant name: a"},
		{name: "weight out of range", variants: []snapshot.Variant{{Name: "a", Weight: 101}}, wantMessage: "Variant weight must be between 0 and 100"},
		{name: "bad sum", variants: []snapshot.Variant{{Name: "a", Weight: 50}, {Name: "b", Weight: 40}}, wantMessage: "Variant weights must sum to 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateVariants(tt.variants)
			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", result.Valid, tt.wantValid)
			}
			if !tt.wantValid && result.Errors["variants"] != tt.wantMessage {
				t.Errorf("Error = %q, want %q", result.Errors["variants"], tt.wantMessage)
			}
		})
	}
}

func TestValidateFlagView(t *testing.T) {
	ok := snapshot.FlagView{Key: "test-flag", Rollout: 100}
	if err := ValidateFlagView(ok).Err(); err != nil {
		t.Errorf("Expected valid flag, got %v", err)
	}

	bad := snapshot.FlagView{Key: "bad key", Rollout: 150}
	result := ValidateFlagView(bad)
	if result.Valid {
		t.Fatal("Expected invalid flag")
	}
	err := result.Err()
	if err == nil || !strings.Contains(err.Error(), "key:") || !strings.Contains(err.Error(), "rollout:") {
		t.Errorf("Expected key and rollout errors, got %v", err)
	}
}
