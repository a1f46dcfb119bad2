package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var tierColors = map[loyalty.Tier]*color.Color{
	loyalty.TierBronze:   color.New(color.FgRed),
	loyalty.TierSilver:   color.New(color.FgWhite, color.Bold),
	loyalty.TierGold:     color.New(color.FgYellow, color.Bold),
	loyalty.TierPlatinum: color.New(color.FgMagenta, color.Bold),
}

func tierBadge(tier loyalty.Tier) string {
	c, ok := tierColors[tier]
	if !ok {
		return gray("None")
	}
	return c.Sprint(tier.String())
}

func money(value float64) string {
	return "₹" + strconv.FormatFloat(value, 'f', 2, 64)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

func (c *cliState) print(value any, text func()) error {
	if c.json {
		return printJSON(value)
	}
	text()
	return nil
}

func printAssessment(assessment loyalty.TierAssessment) {
	fmt.Printf("  tier      %s\n", tierBadge(assessment.EffectiveTier))
	fmt.Printf("  spend     %s\n", tierBadge(assessment.SpendTier))
	fmt.Printf("  points    %s %s\n", tierBadge(assessment.PointsTier), gray("("+assessment.PointsTierStatus.Label()+")"))
}

func printCustomer(status ledger.CustomerStatus) {
	customer := status.Customer
	fmt.Printf("%s %s\n", bold(customer.Name), gray(customer.Mobile))
	printAssessment(status.Assessment)
	fmt.Printf("  balance   %d pts\n", customer.Points)
	fmt.Printf("  spent     %s over %d visits\n", money(customer.TotalSpent), len(customer.History))
	if last, ok := customer.LastTransaction(); ok {
		fmt.Printf("  last      %s %s\n", last.Date.Format("2006-01-02"), money(last.FinalAmount))
	}
}

func printSummary(summary loyalty.BillSummary) {
	fmt.Printf("  subtotal  %s\n", money(summary.Subtotal))
	if summary.DiscountAmount > 0 {
		fmt.Printf("  discount  -%s (%s%%)\n", money(summary.DiscountAmount), strconv.FormatFloat(summary.DiscountPercent, 'f', -1, 64))
	}
	if summary.RedeemedValue > 0 {
		fmt.Printf("  redeemed  -%s\n", money(summary.RedeemedValue))
	}
	fmt.Printf("  payable   %s\n", bold(money(summary.Payable)))
	fmt.Printf("  earned    %s\n", green(strconv.FormatInt(summary.PointsEarned, 10)+" pts"))
}

func printTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = cell + strings.Repeat(" ", widths[i]-len([]rune(cell)))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Println(bold(line(header)))
	for _, row := range rows {
		fmt.Println(line(row))
	}
}
