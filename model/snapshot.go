package model

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// SpriteConfig holds the global settings stored in sprite_config.json.
type SpriteConfig struct {
	PortraitSize       int            `json:"portrait_size"`
	PortraitTileX      int            `json:"portrait_tile_x"`
	PortraitTileY      int            `json:"portrait_tile_y"`
	Emotions           []string       `json:"emotions"`
	Actions            []string       `json:"actions"`
	ActionMap          map[int]string `json:"action_map"`
	CompletionEmotions [][]int        `json:"completion_emotions"`
	CompletionActions  [][]int        `json:"completion_actions"`
}

// CreditName is one row of credit_names.txt.
type CreditName struct {
	Name     string `json:"name,omitempty"`    // Display name, may be empty
	CreditID string `json:"credit_id"`         // Id used in the tracker credits
	Contact  string `json:"contact,omitempty"` // Free-form contact information
}

// CreditNames is the ordered list of known contributors.
type CreditNames []CreditName

// Get returns the entry for creditID.
func (c CreditNames) Get(creditID string) (CreditName, bool) {
	for _, n := range c {
		if n.CreditID == creditID {
			return n, true
		}
	}
	return CreditName{}, false
}

// Snapshot is one complete, immutable view of the upstream data. It is
// replaced as a whole on refresh and never mutated after publication.
type Snapshot struct {
	SpriteConfig SpriteConfig
	Tracker      *Tracker // Shared by reference; expensive to copy
	CreditNames  CreditNames
}

// NewSnapshot bundles freshly parsed data files into a Snapshot.
func NewSnapshot(spriteConfig SpriteConfig, tracker Tracker, creditNames CreditNames) *Snapshot {
	return &Snapshot{
		SpriteConfig: spriteConfig,
		Tracker:      &tracker,
		CreditNames:  creditNames,
	}
}

// Equal reports whether s and other hold structurally identical data. nil
// and empty collections are treated as equal.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	opt := cmpopts.EquateEmpty()
	return cmp.Equal(s.SpriteConfig, other.SpriteConfig, opt) &&
		cmp.Equal(s.Tracker, other.Tracker, opt) &&
		cmp.Equal(s.CreditNames, other.CreditNames, opt)
}
