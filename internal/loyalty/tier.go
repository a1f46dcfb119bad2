package loyalty

import (
	"fmt"
	"strings"
)

// Tier is a benefit level. Higher values rank better.
type Tier int

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// RankedTiers lists the benefit tiers from best to worst.
var RankedTiers = []Tier{TierPlatinum, TierGold, TierSilver, TierBronze}

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "Bronze"
	case TierSilver:
		return "Silver"
	case TierGold:
		return "Gold"
	case TierPlatinum:
		return "Platinum"
	default:
		return "None"
	}
}

// Better returns the higher ranked of t and other.
func (t Tier) Better(other Tier) Tier {
	if other > t {
		return other
	}
	return t
}

func ParseTier(raw string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return TierNone, nil
	case "bronze":
		return TierBronze, nil
	case "silver":
		return TierSilver, nil
	case "gold":
		return TierGold, nil
	case "platinum":
		return TierPlatinum, nil
	default:
		return TierNone, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, raw)
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(data []byte) error {
	parsed, err := ParseTier(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
