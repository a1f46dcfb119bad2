package loyalty

import "time"

// Transaction is one settled visit. It is never modified after it is
// appended to a customer's history.
type Transaction struct {
	Date            time.Time `json:"date"`
	Bill            float64   `json:"bill"`
	Points          int64     `json:"points"`
	DiscountApplied float64   `json:"discountApplied,omitempty"`
	PointsRedeemed  int64     `json:"pointsRedeemed,omitempty"`
	FinalAmount     float64   `json:"finalAmount"`
}

// Customer is keyed by mobile. Points is the authoritative balance; the
// history is not re-summed to derive it.
type Customer struct {
	Mobile     string        `json:"mobile"`
	Name       string        `json:"name"`
	PIN        string        `json:"pin"`
	Points     int64         `json:"points"`
	TotalSpent float64       `json:"totalSpent"`
	History    []Transaction `json:"history"`
}

// LastTransaction returns the most recent history entry.
func (c Customer) LastTransaction() (Transaction, bool) {
	if len(c.History) == 0 {
		return Transaction{}, false
	}
	return c.History[len(c.History)-1], true
}

// Clone returns a deep copy so callers can mutate history safely.
func (c Customer) Clone() Customer {
	out := c
	if c.History != nil {
		out.History = make([]Transaction, len(c.History))
		copy(out.History, c.History)
	}
	return out
}

// Notification is the post-settlement message for a customer.
type Notification struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
}
