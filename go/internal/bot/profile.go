package bot

import "github.com/mcdev12/lastround/go/internal/engine"

// Strategy is how eagerly a bot spends items.
type Strategy string

const (
	StrategyImmediate Strategy = "immediate"
	StrategyBasic     Strategy = "basic"
	StrategyAdvanced  Strategy = "advanced"
	StrategyImperial  Strategy = "imperial"
)

// Profile holds the behavior knobs of one difficulty tier.
type Profile struct {
	Tier             engine.Tier
	Level            int
	Label            string
	UsesProbability  bool
	RandomTarget     bool
	Strategy         Strategy
	HealThreshold    int
	HandcuffChance   float64
	HandcuffPriority bool
	DoubleThreshold  float64
	PeekChance       float64
	EjectChance      float64
	InvertChance     float64
	ScanChance       float64
	ForgetPeekChance float64
}

var profiles = map[engine.Tier]Profile{
	engine.TierPeasant: {
		Tier:             engine.TierPeasant,
		Level:            1,
		Label:            "Peasant",
		RandomTarget:     true,
		Strategy:         StrategyImmediate,
		HealThreshold:    5,
		ForgetPeekChance: 0.35,
	},
	engine.TierPrince: {
		Tier:             engine.TierPrince,
		Level:            2,
		Label:            "Prince",
		UsesProbability:  true,
		Strategy:         StrategyBasic,
		HealThreshold:    2,
		HandcuffChance:   0.4,
		DoubleThreshold:  0.55,
		PeekChance:       0.15,
		EjectChance:      0.1,
		InvertChance:     0.1,
		ScanChance:       0.15,
		ForgetPeekChance: 0.1,
	},
	engine.TierTsar: {
		Tier:             engine.TierTsar,
		Level:            3,
		Label:            "Tsar",
		UsesProbability:  true,
		Strategy:         StrategyAdvanced,
		HealThreshold:    4,
		HandcuffPriority: true,
		DoubleThreshold:  0.7,
		PeekChance:       0.6,
		EjectChance:      0.5,
		InvertChance:     0.35,
		ScanChance:       0.4,
	},
	engine.TierEmperor: {
		Tier:             engine.TierEmperor,
		Level:            4,
		Label:            "Emperor",
		UsesProbability:  true,
		Strategy:         StrategyImperial,
		HealThreshold:    4,
		HandcuffPriority: true,
		DoubleThreshold:  0.85,
		PeekChance:       0.9,
		EjectChance:      0.85,
		InvertChance:     0.7,
		ScanChance:       0.6,
	},
}

// ProfileFor returns the bot profile of a tier. The pvp tier has no bot.
func ProfileFor(t engine.Tier) (Profile, bool) {
	p, ok := profiles[t]
	return p, ok
}

// ProfileForLevel maps the 1-4 star levels used by clients to a profile.
func ProfileForLevel(level int) (Profile, bool) {
	for _, p := range profiles {
		if p.Level == level {
			return p, true
		}
	}
	return Profile{}, false
}
