package loyalty

import (
	"fmt"
	"math"
)

// TierTable holds one value per benefit tier.
type TierTable[T any] struct {
	Bronze   T `json:"bronze" yaml:"bronze"`
	Silver   T `json:"silver" yaml:"silver"`
	Gold     T `json:"gold" yaml:"gold"`
	Platinum T `json:"platinum" yaml:"platinum"`
}

// For returns the value configured for tier. TierNone yields the zero value.
func (t TierTable[T]) For(tier Tier) T {
	switch tier {
	case TierBronze:
		return t.Bronze
	case TierSilver:
		return t.Silver
	case TierGold:
		return t.Gold
	case TierPlatinum:
		return t.Platinum
	default:
		var zero T
		return zero
	}
}

// TierConfig is the administrator-tunable program policy.
type TierConfig struct {
	SpendThresholds      TierTable[float64] `json:"spendThresholds" yaml:"spend_thresholds"`
	PointsThresholds     TierTable[int64]   `json:"pointsThresholds" yaml:"points_thresholds"`
	Discounts            TierTable[float64] `json:"discounts" yaml:"discounts"`
	ExpiryDays           TierTable[int]     `json:"expiryDays" yaml:"expiry_days"`
	PointsConversionRate float64            `json:"pointsConversionRate" yaml:"points_conversion_rate"`
}

func DefaultTierConfig() TierConfig {
	return TierConfig{
		SpendThresholds:      TierTable[float64]{Bronze: 5000, Silver: 10000, Gold: 20000, Platinum: 50000},
		PointsThresholds:     TierTable[int64]{Bronze: 100, Silver: 250, Gold: 500, Platinum: 1000},
		Discounts:            TierTable[float64]{Bronze: 5, Silver: 10, Gold: 15, Platinum: 20},
		ExpiryDays:           TierTable[int]{Bronze: 365, Silver: 365, Gold: 365, Platinum: 365},
		PointsConversionRate: 1,
	}
}

// Validate rejects negative or non-finite values. Thresholds need not be
// monotonic; the resolver always checks from the best tier down.
func (c TierConfig) Validate() error {
	for _, tier := range RankedTiers {
		if err := checkAmount("spend threshold", tier, c.SpendThresholds.For(tier)); err != nil {
			return err
		}
		if c.PointsThresholds.For(tier) < 0 {
			return fmt.Errorf("%w: %s points threshold is negative", ErrInvalidConfig, tier)
		}
		discount := c.Discounts.For(tier)
		if err := checkAmount("discount", tier, discount); err != nil {
			return err
		}
		if discount > 100 {
			return fmt.Errorf("%w: %s discount exceeds 100%%", ErrInvalidConfig, tier)
		}
		if c.ExpiryDays.For(tier) < 0 {
			return fmt.Errorf("%w: %s expiry days is negative", ErrInvalidConfig, tier)
		}
	}
	if math.IsNaN(c.PointsConversionRate) || math.IsInf(c.PointsConversionRate, 0) || c.PointsConversionRate < 0 {
		return fmt.Errorf("%w: points conversion rate must be a non-negative number", ErrInvalidConfig)
	}
	return nil
}

func checkAmount(name string, tier Tier, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %s %s must be a non-negative number", ErrInvalidConfig, tier, name)
	}
	return nil
}
