package loyalty

import "fmt"

// ExpiryNotice describes the points tier expiry in customer-facing words.
func ExpiryNotice(assessment TierAssessment) string {
	switch assessment.PointsTierStatus.State {
	case ExpiresIn:
		return fmt.Sprintf("Your %s tier benefits expire in %d days of inactivity.",
			assessment.PointsTier, assessment.PointsTierStatus.Days)
	case JustExpired:
		return "Your previous tier has expired due to inactivity."
	default:
		return "Your tier has no expiry date."
	}
}

// SettlementMessage is the text sent to the customer after a visit.
func SettlementMessage(customer Customer, assessment TierAssessment) string {
	return fmt.Sprintf("Hi %s, thanks for your purchase! Your new points balance is %d. %s",
		customer.Name, customer.Points, ExpiryNotice(assessment))
}
