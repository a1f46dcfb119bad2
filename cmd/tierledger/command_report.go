package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func newOverviewCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show customer, revenue and points totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			overview, err := state.client.Overview(ctx)
			if err != nil {
				return err
			}
			return state.print(overview, func() {
				printOverview(overview)
			})
		},
	}
}

func printOverview(overview loyalty.Overview) {
	fmt.Printf("customers %s\n", bold(strconv.Itoa(overview.TotalCustomers)))
	fmt.Printf("revenue   %s\n", bold(money(overview.TotalRevenue)))
	fmt.Printf("points    %s\n", bold(strconv.FormatInt(overview.TotalPoints, 10)))
}

func newAnalyticsCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show monthly revenue, tier mix, weekday activity and top customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			analytics, err := state.client.Analytics(ctx)
			if err != nil {
				return err
			}
			return state.print(analytics, func() {
				printAnalytics(analytics)
			})
		},
	}
}

func printAnalytics(a loyalty.Analytics) {
	printOverview(a.Overview)
	fmt.Printf("visits    %d (avg %s)\n", a.TotalTransactions, money(a.AverageOrderValue))
	fmt.Printf("new (30d) %d\n\n", a.NewCustomers30Days)

	monthly := make([][]string, 0, len(a.Monthly))
	for _, m := range a.Monthly {
		monthly = append(monthly, []string{m.Month, money(m.Revenue), strconv.FormatInt(m.Points, 10)})
	}
	printTable([]string{"MONTH", "REVENUE", "POINTS"}, monthly)
	fmt.Println()

	for _, tc := range a.TierDistribution {
		fmt.Printf("%s %d\n", tierBadge(tc.Tier), tc.Count)
	}
	fmt.Println()

	for _, day := range a.WeekdayActivity {
		fmt.Printf("%s %s %d\n", day.Day, cyan(bar(day.Transactions)), day.Transactions)
	}
	fmt.Println()

	top := make([][]string, 0, len(a.TopCustomers))
	for i, c := range a.TopCustomers {
		top = append(top, []string{strconv.Itoa(i + 1), c.Name, c.Mobile, money(c.TotalSpent), strconv.FormatInt(c.Points, 10)})
	}
	printTable([]string{"#", "NAME", "MOBILE", "SPENT", "POINTS"}, top)
}

func bar(n int) string {
	out := make([]rune, n)
	for i := range out {
		out[i] = '█'
	}
	return string(out)
}

func newNotificationsCommand(state *cliState) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show sent settlement notices, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			notices, err := state.client.Notifications(ctx, limit)
			if err != nil {
				return err
			}
			return state.print(notices, func() {
				for _, n := range notices {
					fmt.Printf("%s %s\n  %s\n", gray(n.Timestamp.Local().Format("2006-01-02 15:04")), bold(n.Recipient), n.Message)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum notices to show (0 for all)")
	return cmd
}

func newExportCommand(state *cliState) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export customers as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			if out == "" {
				return state.client.ExportCSV(ctx, os.Stdout)
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := state.client.ExportCSV(ctx, file); err != nil {
				_ = file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().StringVar(&out, "file", "", "output file; defaults to stdout")
	return cmd
}
