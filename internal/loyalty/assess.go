package loyalty

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

const day = 24 * time.Hour

// PointsTierState is the kind of PointsTierStatus.
type PointsTierState int

const (
	// NoTier: no points tier qualifies, or the customer has no history.
	NoTier PointsTierState = iota
	// NeverExpires: the qualifying tier has no expiry window.
	NeverExpires
	// ExpiresIn: the tier is active and lapses after Days of inactivity.
	ExpiresIn
	// JustExpired: the tier lapsed. This also suppresses the spend tier.
	JustExpired
)

func (s PointsTierState) String() string {
	switch s {
	case NeverExpires:
		return "never_expires"
	case ExpiresIn:
		return "expires_in"
	case JustExpired:
		return "expired"
	default:
		return "no_tier"
	}
}

// PointsTierStatus describes the points tier's expiry. Days is set only for
// ExpiresIn and is at least 1.
type PointsTierStatus struct {
	State PointsTierState
	Days  int
}

// DaysRemaining gives the nullable count used by older clients: absent for
// NoTier and NeverExpires, 0 for JustExpired.
func (s PointsTierStatus) DaysRemaining() (int, bool) {
	switch s.State {
	case ExpiresIn:
		return s.Days, true
	case JustExpired:
		return 0, true
	default:
		return 0, false
	}
}

// Label renders the status the way the customer search screen shows it.
func (s PointsTierStatus) Label() string {
	switch s.State {
	case ExpiresIn:
		if s.Days == 1 {
			return "1 day left"
		}
		return strconv.Itoa(s.Days) + " days left"
	case JustExpired:
		return "Expired"
	default:
		return "No Expiry"
	}
}

type pointsTierStatusJSON struct {
	State         string `json:"state"`
	DaysRemaining *int   `json:"daysRemaining"`
}

func (s PointsTierStatus) MarshalJSON() ([]byte, error) {
	out := pointsTierStatusJSON{State: s.State.String()}
	if days, ok := s.DaysRemaining(); ok {
		out.DaysRemaining = &days
	}
	return json.Marshal(out)
}

func (s *PointsTierStatus) UnmarshalJSON(data []byte) error {
	var in pointsTierStatusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case "never_expires":
		*s = PointsTierStatus{State: NeverExpires}
	case "expires_in":
		days := 1
		if in.DaysRemaining != nil {
			days = *in.DaysRemaining
		}
		*s = PointsTierStatus{State: ExpiresIn, Days: days}
	case "expired":
		*s = PointsTierStatus{State: JustExpired}
	default:
		*s = PointsTierStatus{State: NoTier}
	}
	return nil
}

// TierAssessment is derived on demand and never stored.
type TierAssessment struct {
	SpendTier        Tier             `json:"spendTier"`
	PointsTier       Tier             `json:"pointsTier"`
	PointsTierStatus PointsTierStatus `json:"pointsTierStatus"`
	EffectiveTier    Tier             `json:"effectiveTier"`
}

// Assess resolves the customer's tiers at now. It has no side effects.
func Assess(customer Customer, cfg TierConfig, now time.Time) TierAssessment {
	spendTier := TierNone
	for _, tier := range RankedTiers {
		if customer.TotalSpent >= cfg.SpendThresholds.For(tier) {
			spendTier = tier
			break
		}
	}

	candidate := TierNone
	for _, tier := range RankedTiers {
		if customer.Points >= cfg.PointsThresholds.For(tier) {
			candidate = tier
			break
		}
	}

	pointsTier := TierNone
	status := PointsTierStatus{State: NoTier}
	if last, ok := customer.LastTransaction(); ok && candidate != TierNone {
		deadlineDays := cfg.ExpiryDays.For(candidate)
		if deadlineDays <= 0 {
			pointsTier = candidate
			status = PointsTierStatus{State: NeverExpires}
		} else {
			expiry := last.Date.UTC().AddDate(0, 0, deadlineDays)
			if !now.After(expiry) {
				pointsTier = candidate
				status = PointsTierStatus{State: ExpiresIn, Days: daysUntil(now, expiry)}
			} else {
				status = PointsTierStatus{State: JustExpired}
			}
		}
	}

	effective := TierNone
	if status.State != JustExpired {
		effective = spendTier.Better(pointsTier)
	}

	return TierAssessment{
		SpendTier:        spendTier,
		PointsTier:       pointsTier,
		PointsTierStatus: status,
		EffectiveTier:    effective,
	}
}

func daysUntil(now time.Time, expiry time.Time) int {
	days := int(math.Ceil(float64(expiry.Sub(now)) / float64(day)))
	if days < 1 {
		return 1
	}
	return days
}
