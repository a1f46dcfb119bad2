package ledger

import (
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

// SampleCustomers returns the development seed set. Visits that keep a tier
// active are dated relative to now.
func SampleCustomers(now time.Time) []loyalty.Customer {
	daysAgo := func(n int) time.Time {
		return now.UTC().AddDate(0, 0, -n)
	}
	visit := func(date time.Time, bill float64, points int64) loyalty.Transaction {
		return loyalty.Transaction{Date: date, Bill: bill, Points: points, FinalAmount: bill}
	}

	return []loyalty.Customer{
		{
			Mobile: "9876543210", Name: "Aarav Sharma", PIN: "9876", Points: 125, TotalSpent: 8500,
			History: []loyalty.Transaction{
				visit(fixedDate("2023-10-15T10:00:00Z"), 2500, 50),
				visit(fixedDate("2023-11-02T14:30:00Z"), 3000, 25),
				visit(fixedDate("2023-11-20T19:45:00Z"), 3000, 50),
			},
		},
		{
			Mobile: "9123456789", Name: "Priya Patel", PIN: "9123", Points: 340, TotalSpent: 15200,
			History: []loyalty.Transaction{
				visit(fixedDate("2023-09-05T12:10:00Z"), 7000, 150),
				visit(fixedDate("2023-10-25T18:00:00Z"), 4200, 90),
				visit(fixedDate("2023-11-18T11:05:00Z"), 4000, 100),
			},
		},
		{
			Mobile: "8887776665", Name: "Rohan Mehta", PIN: "8887", Points: 50, TotalSpent: 1800,
			History: []loyalty.Transaction{
				visit(fixedDate("2023-11-21T20:00:00Z"), 1800, 50),
			},
		},
		{
			Mobile: "7001002003", Name: "Sneha Verma", PIN: "7001", Points: 85, TotalSpent: 4500,
			History: []loyalty.Transaction{
				visit(fixedDate("2023-10-10T13:00:00Z"), 2000, 40),
				visit(fixedDate("2023-11-12T15:20:00Z"), 2500, 45),
			},
		},
		{
			Mobile: "9990001112", Name: "Vikram Singh", PIN: "9990", Points: 210, TotalSpent: 11000,
			History: []loyalty.Transaction{
				visit(fixedDate("2023-08-20T09:30:00Z"), 5000, 100),
				visit(fixedDate("2023-10-28T16:00:00Z"), 6000, 110),
			},
		},
		{
			Mobile: "8123456789", Name: "Anika Reddy", PIN: "8123", Points: 650, TotalSpent: 22000,
			History: []loyalty.Transaction{
				visit(fixedDate("2024-04-10T11:00:00Z"), 10000, 300),
				visit(daysAgo(15), 12000, 350),
			},
		},
		{
			Mobile: "7890123456", Name: "Kabir Khan", PIN: "7890", Points: 1500, TotalSpent: 55000,
			History: []loyalty.Transaction{
				visit(fixedDate("2024-01-05T18:20:00Z"), 25000, 700),
				visit(daysAgo(25), 30000, 800),
			},
		},
		{
			Mobile: "8880001111", Name: "Ishaan Joshi", PIN: "8880", Points: 110, TotalSpent: 5100,
			History: []loyalty.Transaction{
				visit(daysAgo(5), 5100, 110),
			},
		},
		{
			Mobile: "9008007001", Name: "Meera Iyer", PIN: "9008", Points: 400, TotalSpent: 18000,
			History: []loyalty.Transaction{
				visit(fixedDate("2022-12-01T14:00:00Z"), 8000, 200),
				visit(fixedDate("2023-01-15T16:30:00Z"), 10000, 200),
			},
		},
		{
			Mobile: "9555666777", Name: "Zara Ali", PIN: "9555", Points: 30, TotalSpent: 2500,
			History: []loyalty.Transaction{
				visit(daysAgo(90), 1500, 20),
				visit(daysAgo(40), 1000, 10),
			},
		},
		{
			Mobile: "7111222333", Name: "Arjun Nair", PIN: "7111", Points: 300, TotalSpent: 9000,
			History: []loyalty.Transaction{
				visit(fixedDate("2024-03-01T12:00:00Z"), 7000, 150),
				{
					Date:            daysAgo(60),
					Bill:            4000,
					Points:          200,
					DiscountApplied: 200,
					PointsRedeemed:  200,
					FinalAmount:     3000,
				},
			},
		},
	}
}

func fixedDate(value string) time.Time {
	date, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return date
}
