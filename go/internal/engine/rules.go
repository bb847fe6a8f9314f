package engine

import (
	"fmt"
	"sort"
)

// Tier selects chamber bounds, starting health and (for bot rooms) the bot profile.
type Tier string

const (
	TierPvP     Tier = "pvp"
	TierPeasant Tier = "peasant"
	TierPrince  Tier = "prince"
	TierTsar    Tier = "tsar"
	TierEmperor Tier = "emperor"
)

// Valid reports whether the tier is known.
func (t Tier) Valid() bool {
	switch t {
	case TierPvP, TierPeasant, TierPrince, TierTsar, TierEmperor:
		return true
	}
	return false
}

// TierBounds describes how a chamber sequence may be drawn. LiveCounts maps a
// sequence length to the set of permitted live counts for that length.
type TierBounds struct {
	MinLength  int           `yaml:"min_length" json:"minLength"`
	MaxLength  int           `yaml:"max_length" json:"maxLength"`
	LiveCounts map[int][]int `yaml:"live_counts" json:"liveCounts"`
}

// Validate rejects bounds that could produce an unplayable chamber.
func (b TierBounds) Validate() error {
	if b.MinLength < 2 || b.MaxLength < b.MinLength {
		return fmt.Errorf("%w: length range [%d, %d]", ErrInvalidRules, b.MinLength, b.MaxLength)
	}
	for length := b.MinLength; length <= b.MaxLength; length++ {
		counts := b.LiveCounts[length]
		if len(counts) == 0 {
			return fmt.Errorf("%w: no live counts for length %d", ErrInvalidRules, length)
		}
		for _, c := range counts {
			if c < 1 || c > length-1 {
				return fmt.Errorf("%w: live count %d not in [1, %d] for length %d", ErrInvalidRules, c, length-1, length)
			}
		}
	}
	return nil
}

// Permits reports whether a chamber of the given length and live count could
// have been drawn from these bounds.
func (b TierBounds) Permits(length, live int) bool {
	if length < b.MinLength || length > b.MaxLength {
		return false
	}
	for _, c := range b.LiveCounts[length] {
		if c == live {
			return true
		}
	}
	return false
}

// Rules are the per-match tunables.
type Rules struct {
	MaxHealth      int        `yaml:"max_health" json:"maxHealth"`
	AFKStrikeLimit int        `yaml:"afk_strike_limit" json:"afkStrikeLimit"`
	ItemsPerReload int        `yaml:"items_per_reload" json:"itemsPerReload"`
	Chamber        TierBounds `yaml:"chamber" json:"chamber"`
}

// Validate checks the rules before a match is created with them.
func (r Rules) Validate() error {
	if r.MaxHealth < 1 {
		return fmt.Errorf("%w: max health %d", ErrInvalidRules, r.MaxHealth)
	}
	if r.AFKStrikeLimit < 1 {
		return fmt.Errorf("%w: afk strike limit %d", ErrInvalidRules, r.AFKStrikeLimit)
	}
	if r.ItemsPerReload < 0 {
		return fmt.Errorf("%w: items per reload %d", ErrInvalidRules, r.ItemsPerReload)
	}
	return r.Chamber.Validate()
}

func standardBounds() TierBounds {
	return TierBounds{MinLength: 6, MaxLength: 6, LiveCounts: map[int][]int{6: {2, 3, 4}}}
}

// DefaultRules returns the rules used for player-versus-player rooms.
func DefaultRules() Rules {
	return Rules{
		MaxHealth:      5,
		AFKStrikeLimit: 2,
		ItemsPerReload: 1,
		Chamber:        standardBounds(),
	}
}

// RulesForTier returns the built-in rules for a tier. Unknown tiers get DefaultRules.
func RulesForTier(t Tier) Rules {
	r := DefaultRules()
	switch t {
	case TierPeasant:
		r.MaxHealth = 3
		r.Chamber = TierBounds{MinLength: 4, MaxLength: 6, LiveCounts: map[int][]int{
			4: {1, 2},
			5: {2, 3},
			6: {2, 3},
		}}
	case TierPrince:
		r.MaxHealth = 4
	case TierTsar:
		r.Chamber = TierBounds{MinLength: 6, MaxLength: 7, LiveCounts: map[int][]int{
			6: {2, 3, 4},
			7: {3, 4},
		}}
	case TierEmperor:
		r.Chamber = TierBounds{MinLength: 6, MaxLength: 8, LiveCounts: map[int][]int{
			6: {2, 3, 4},
			7: {3, 4},
			8: {3, 4, 5},
		}}
	}
	return r
}

// RuleBook resolves rules per tier, with optional overrides loaded from config.
type RuleBook struct {
	overrides map[Tier]Rules
}

// NewRuleBook validates the overrides and returns a book that falls back to
// the built-in tier rules.
func NewRuleBook(overrides map[Tier]Rules) (*RuleBook, error) {
	tiers := make([]string, 0, len(overrides))
	for t := range overrides {
		tiers = append(tiers, string(t))
	}
	sort.Strings(tiers)
	for _, name := range tiers {
		t := Tier(name)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidRules, name)
		}
		if err := overrides[t].Validate(); err != nil {
			return nil, fmt.Errorf("tier %s: %w", name, err)
		}
	}
	return &RuleBook{overrides: overrides}, nil
}

// For returns the rules for a tier.
func (b *RuleBook) For(t Tier) Rules {
	if b != nil {
		if r, ok := b.overrides[t]; ok {
			return r
		}
	}
	return RulesForTier(t)
}
