// Package snapshot holds the client-side copy of a flagship flag set.
//
// A Snapshot mirrors the body of the service's GET /v1/flags/snapshot endpoint
// and is never mutated once built; updates replace the whole value.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Variant is one weighted arm of a flag.
type Variant struct {
	Name   string         `json:"name"`
	Weight int            `json:"weight"`
	Config map[string]any `json:"config,omitempty"`
}

// FlagView is a single flag as served to SDK consumers.
type FlagView struct {
	Key         string         `json:"key"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Rollout     int32          `json:"rollout"`
	Expression  *string        `json:"expression,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Variants    []Variant      `json:"variants,omitempty"`
	Env         string         `json:"env"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Snapshot struct {
	ETag        string              `json:"etag"`
	Flags       map[string]FlagView `json:"flags"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	RolloutSalt string              `json:"rolloutSalt,omitempty"`
}

// Build creates a snapshot from flags with a weak ETag derived from their content,
// the same way the flagship service computes it.
func Build(flags []FlagView, salt string) *Snapshot {
	byKey := make(map[string]FlagView, len(flags))
	for _, f := range flags {
		byKey[f.Key] = f
	}
	blob, _ := json.Marshal(byKey) // map keys are sorted, so the ETag is stable
	sum := sha256.Sum256(blob)
	return &Snapshot{
		ETag:        `W/"` + hex.EncodeToString(sum[:]) + `"`,
		Flags:       byKey,
		UpdatedAt:   time.Now().UTC(),
		RolloutSalt: salt,
	}
}

// Flag looks up a flag by key.
func (s *Snapshot) Flag(key string) (FlagView, bool) {
	if s == nil {
		return FlagView{}, false
	}
	f, ok := s.Flags[key]
	return f, ok
}
