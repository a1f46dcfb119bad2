package loyalty

import "math"

// BillInput carries the operator-entered values for one visit.
type BillInput struct {
	GrossBill      float64 `json:"grossBill"`
	CashTendered   float64 `json:"cashTendered"`
	PointsToRedeem int64   `json:"pointsToRedeem"`
	ApplyBenefits  bool    `json:"applyBenefits"`
}

// BillSummary is the financial outcome of a visit.
type BillSummary struct {
	Subtotal          float64 `json:"subtotal"`
	DiscountPercent   float64 `json:"discountPercent"`
	DiscountAmount    float64 `json:"discountAmount"`
	BillAfterDiscount float64 `json:"billAfterDiscount"`
	RedeemedValue     float64 `json:"redeemedValue"`
	Payable           float64 `json:"payable"`
	PointsEarned      int64   `json:"pointsEarned"`
}

// ComputeBill applies discount, then redemption, then derives earned points
// from the change. It does not validate; Settle does.
func ComputeBill(in BillInput, assessment TierAssessment, cfg TierConfig) BillSummary {
	if in.GrossBill <= 0 {
		return BillSummary{}
	}

	var percent float64
	if in.ApplyBenefits && assessment.EffectiveTier != TierNone {
		percent = cfg.Discounts.For(assessment.EffectiveTier)
	}
	discount := in.GrossBill * percent / 100
	afterDiscount := in.GrossBill - discount

	var redeemed float64
	if in.ApplyBenefits {
		redeemed = math.Min(float64(in.PointsToRedeem)*cfg.PointsConversionRate, afterDiscount)
	}
	payable := afterDiscount - redeemed

	var earned int64
	if in.CashTendered > payable {
		earned = int64(math.Floor(in.CashTendered - payable))
	}

	return BillSummary{
		Subtotal:          in.GrossBill,
		DiscountPercent:   percent,
		DiscountAmount:    discount,
		BillAfterDiscount: afterDiscount,
		RedeemedValue:     redeemed,
		Payable:           payable,
		PointsEarned:      earned,
	}
}
