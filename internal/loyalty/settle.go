package loyalty

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// GuestName is used for new customers who give no name.
	GuestName = "Guest"
	pinLength = 4
)

type SettleRequest struct {
	Mobile string `json:"mobile"`
	Name   string `json:"name,omitempty"`
	PIN    string `json:"pin"`
	BillInput
}

// SettlementResult is everything a settlement produces. Nothing is persisted
// by Settle itself.
type SettlementResult struct {
	Customer     Customer       `json:"customer"`
	Transaction  Transaction    `json:"transaction"`
	Summary      BillSummary    `json:"summary"`
	Before       TierAssessment `json:"before"`
	After        TierAssessment `json:"after"`
	Notification Notification   `json:"notification"`
	NewCustomer  bool           `json:"newCustomer"`
}

// VerifyPin checks pin against an existing customer, or validates the format
// of a new customer's pin when existing is nil.
func VerifyPin(existing *Customer, pin string) error {
	if existing != nil {
		if existing.PIN != pin {
			return ErrAuthenticationFailed
		}
		return nil
	}
	if !validPin(pin) {
		return ErrInvalidPin
	}
	return nil
}

// Settle validates req against the customer's pre-transaction state and
// returns the updated customer. existing is nil for a first visit and is
// never modified. All validation happens before any value is derived.
func Settle(req SettleRequest, existing *Customer, cfg TierConfig, now time.Time) (SettlementResult, error) {
	mobile := strings.TrimSpace(req.Mobile)
	if mobile == "" {
		return SettlementResult{}, fmt.Errorf("%w: mobile is required", ErrInvalidInput)
	}
	if err := VerifyPin(existing, req.PIN); err != nil {
		return SettlementResult{}, err
	}
	if err := validateAmounts(req.BillInput); err != nil {
		return SettlementResult{}, err
	}

	var current Customer
	if existing != nil {
		current = existing.Clone()
	} else {
		current = Customer{Mobile: mobile}
	}

	before := Assess(current, cfg, now)
	summary := ComputeBill(req.BillInput, before, cfg)

	if req.CashTendered < summary.Payable {
		return SettlementResult{}, ErrInsufficientPayment
	}
	if req.ApplyBenefits && req.PointsToRedeem > current.Points {
		return SettlementResult{}, ErrOverRedemption
	}

	var redeemed int64
	if req.ApplyBenefits {
		redeemed = req.PointsToRedeem
	}
	tx := Transaction{
		Date:            now.UTC(),
		Bill:            req.GrossBill,
		Points:          summary.PointsEarned,
		DiscountApplied: summary.DiscountAmount,
		PointsRedeemed:  redeemed,
		FinalAmount:     summary.Payable,
	}

	updated := current
	if existing != nil {
		updated.TotalSpent += req.GrossBill
		updated.Points = updated.Points - redeemed + summary.PointsEarned
	} else {
		updated.Name = strings.TrimSpace(req.Name)
		if updated.Name == "" {
			updated.Name = GuestName
		}
		updated.PIN = req.PIN
		updated.TotalSpent = req.GrossBill
		updated.Points = summary.PointsEarned - redeemed
	}
	updated.History = append(updated.History, tx)

	after := Assess(updated, cfg, now)
	return SettlementResult{
		Customer:    updated,
		Transaction: tx,
		Summary:     summary,
		Before:      before,
		After:       after,
		Notification: Notification{
			Timestamp: now.UTC(),
			Recipient: updated.Mobile,
			Message:   SettlementMessage(updated, after),
		},
		NewCustomer: existing == nil,
	}, nil
}

func validateAmounts(in BillInput) error {
	if math.IsNaN(in.GrossBill) || math.IsInf(in.GrossBill, 0) || in.GrossBill <= 0 {
		return ErrInvalidBill
	}
	if math.IsNaN(in.CashTendered) || math.IsInf(in.CashTendered, 0) || in.CashTendered < 0 {
		return fmt.Errorf("%w: cash tendered must be a non-negative number", ErrInvalidInput)
	}
	if in.PointsToRedeem < 0 {
		return fmt.Errorf("%w: points to redeem must not be negative", ErrInvalidInput)
	}
	return nil
}

func validPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
