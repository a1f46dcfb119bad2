package loyalty

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	newCustomerWindowDays = 30
	topCustomerCount      = 5
)

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type Overview struct {
	TotalCustomers int     `json:"totalCustomers"`
	TotalRevenue   float64 `json:"totalRevenue"`
	TotalPoints    int64   `json:"totalPoints"`
}

type MonthlyTotal struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
	Points  int64   `json:"points"`
}

type TierCount struct {
	Tier  Tier `json:"tier"`
	Count int  `json:"count"`
}

type WeekdayActivity struct {
	Day          string `json:"day"`
	Transactions int    `json:"transactions"`
}

type TopCustomer struct {
	Mobile     string  `json:"mobile"`
	Name       string  `json:"name"`
	TotalSpent float64 `json:"totalSpent"`
	Points     int64   `json:"points"`
}

type Analytics struct {
	Overview
	TotalTransactions  int               `json:"totalTransactions"`
	AverageOrderValue  float64           `json:"averageOrderValue"`
	NewCustomers30Days int               `json:"newCustomers30Days"`
	Monthly            []MonthlyTotal    `json:"monthly"`
	TierDistribution   []TierCount       `json:"tierDistribution"`
	WeekdayActivity    []WeekdayActivity `json:"weekdayActivity"`
	TopCustomers       []TopCustomer     `json:"topCustomers"`
}

func Summarize(customers []Customer) Overview {
	out := Overview{TotalCustomers: len(customers)}
	for _, customer := range customers {
		out.TotalRevenue += customer.TotalSpent
		out.TotalPoints += customer.Points
	}
	return out
}

// Analyze aggregates program-wide statistics. Months are keyed YYYY-MM in UTC
// and returned in calendar order; tiers with no customers are omitted.
func Analyze(customers []Customer, cfg TierConfig, now time.Time) Analytics {
	out := Analytics{Overview: Summarize(customers)}

	windowStart := now.AddDate(0, 0, -newCustomerWindowDays)
	monthly := make(map[string]*MonthlyTotal)
	tierCounts := make(map[Tier]int)
	var weekdays [7]int

	for _, customer := range customers {
		out.TotalTransactions += len(customer.History)
		tierCounts[Assess(customer, cfg, now).EffectiveTier]++

		if len(customer.History) == 0 {
			continue
		}
		if !customer.History[0].Date.Before(windowStart) {
			out.NewCustomers30Days++
		}
		for _, tx := range customer.History {
			date := tx.Date.UTC()
			key := date.Format("2006-01")
			total, ok := monthly[key]
			if !ok {
				total = &MonthlyTotal{Month: key}
				monthly[key] = total
			}
			total.Revenue += tx.Bill
			total.Points += tx.Points
			weekdays[date.Weekday()]++
		}
	}

	if out.TotalTransactions > 0 {
		out.AverageOrderValue = math.Round(out.TotalRevenue / float64(out.TotalTransactions))
	}

	months := make([]string, 0, len(monthly))
	for key := range monthly {
		months = append(months, key)
	}
	sort.Strings(months)
	out.Monthly = make([]MonthlyTotal, 0, len(months))
	for _, key := range months {
		out.Monthly = append(out.Monthly, *monthly[key])
	}

	out.TierDistribution = make([]TierCount, 0, len(RankedTiers)+1)
	for _, tier := range append(append([]Tier{}, RankedTiers...), TierNone) {
		if count := tierCounts[tier]; count > 0 {
			out.TierDistribution = append(out.TierDistribution, TierCount{Tier: tier, Count: count})
		}
	}

	out.WeekdayActivity = make([]WeekdayActivity, len(weekdayNames))
	for i, name := range weekdayNames {
		out.WeekdayActivity[i] = WeekdayActivity{Day: name, Transactions: weekdays[i]}
	}

	out.TopCustomers = topCustomers(customers, topCustomerCount)
	return out
}

func topCustomers(customers []Customer, n int) []TopCustomer {
	ranked := make([]Customer, len(customers))
	copy(ranked, customers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalSpent > ranked[j].TotalSpent
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	out := make([]TopCustomer, 0, len(ranked))
	for _, customer := range ranked {
		out = append(out, TopCustomer{
			Mobile:     customer.Mobile,
			Name:       customer.Name,
			TotalSpent: customer.TotalSpent,
			Points:     customer.Points,
		})
	}
	return out
}

// ExportHeader and ExportRows give the customer CSV layout.
var ExportHeader = []string{"Name", "Mobile", "TotalSpent", "Points"}

func ExportRows(customers []Customer) [][]string {
	rows := make([][]string, 0, len(customers))
	for _, customer := range customers {
		rows = append(rows, []string{
			spreadsheetSafe(customer.Name),
			spreadsheetSafe(customer.Mobile),
			strconv.FormatFloat(customer.TotalSpent, 'f', -1, 64),
			strconv.FormatInt(customer.Points, 10),
		})
	}
	return rows
}

// spreadsheetSafe prefixes cells that spreadsheet applications would evaluate
// as formulas.
func spreadsheetSafe(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
