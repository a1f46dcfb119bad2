package server

import (
	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

type verifyRequest struct {
	PIN string `json:"pin"`
}

type importRequest struct {
	Customers []loyalty.Customer `json:"customers"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// customerView is a Customer without its PIN.
type customerView struct {
	Mobile     string                `json:"mobile"`
	Name       string                `json:"name"`
	Points     int64                 `json:"points"`
	TotalSpent float64               `json:"totalSpent"`
	History    []loyalty.Transaction `json:"history"`
}

type customerStatusView struct {
	Customer   customerView           `json:"customer"`
	Assessment loyalty.TierAssessment `json:"assessment"`
}

type settlementView struct {
	Customer     customerView           `json:"customer"`
	Transaction  loyalty.Transaction    `json:"transaction"`
	Summary      loyalty.BillSummary    `json:"summary"`
	Before       loyalty.TierAssessment `json:"before"`
	After        loyalty.TierAssessment `json:"after"`
	Notification loyalty.Notification   `json:"notification"`
	NewCustomer  bool                   `json:"newCustomer"`
}

func newCustomerView(customer loyalty.Customer) customerView {
	history := customer.History
	if history == nil {
		history = []loyalty.Transaction{}
	}
	return customerView{
		Mobile:     customer.Mobile,
		Name:       customer.Name,
		Points:     customer.Points,
		TotalSpent: customer.TotalSpent,
		History:    history,
	}
}

func newCustomerStatusView(status ledger.CustomerStatus) customerStatusView {
	return customerStatusView{
		Customer:   newCustomerView(status.Customer),
		Assessment: status.Assessment,
	}
}

func newSettlementView(result loyalty.SettlementResult) settlementView {
	return settlementView{
		Customer:     newCustomerView(result.Customer),
		Transaction:  result.Transaction,
		Summary:      result.Summary,
		Before:       result.Before,
		After:        result.After,
		Notification: result.Notification,
		NewCustomer:  result.NewCustomer,
	}
}
