package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func bindSettleFlags(flags *pflag.FlagSet, req *loyalty.SettleRequest) {
	flags.StringVar(&req.Mobile, "mobile", "", "customer mobile number")
	flags.StringVar(&req.Name, "name", "", "customer name (new customers)")
	flags.StringVar(&req.PIN, "pin", "", "4 digit PIN")
	flags.Float64Var(&req.GrossBill, "bill", 0, "gross bill amount")
	flags.Float64Var(&req.CashTendered, "cash", 0, "cash tendered")
	flags.Int64Var(&req.PointsToRedeem, "redeem", 0, "points to redeem")
	flags.BoolVar(&req.ApplyBenefits, "benefits", false, "apply tier discount and redemption")
}

func newSettleCommand(state *cliState) *cobra.Command {
	var req loyalty.SettleRequest
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a bill and award points",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Mobile == "" {
				return errors.New("settle requires --mobile")
			}
			ctx, cancel := state.withContext()
			defer cancel()
			result, err := state.client.Settle(ctx, req)
			if err != nil {
				return errors.New(loyalty.UserMessage(err))
			}
			return state.print(result, func() {
				label := "settled"
				if result.NewCustomer {
					label = "new customer settled"
				}
				fmt.Printf("%s %s %s\n", green("✔"), label, gray(result.Customer.Mobile))
				printSummary(result.Summary)
				if result.Before.EffectiveTier != result.After.EffectiveTier {
					fmt.Printf("  tier      %s -> %s\n", tierBadge(result.Before.EffectiveTier), tierBadge(result.After.EffectiveTier))
				} else {
					fmt.Printf("  tier      %s\n", tierBadge(result.After.EffectiveTier))
				}
				fmt.Printf("  balance   %d pts\n", result.Customer.Points)
				fmt.Printf("\n%s\n", cyan(result.Notification.Message))
			})
		},
	}
	bindSettleFlags(cmd.Flags(), &req)
	return cmd
}

func newPreviewCommand(state *cliState) *cobra.Command {
	var req loyalty.SettleRequest
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute a bill without settling it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Mobile == "" {
				return errors.New("preview requires --mobile")
			}
			ctx, cancel := state.withContext()
			defer cancel()
			preview, err := state.client.Preview(ctx, req)
			if err != nil {
				return errors.New(loyalty.UserMessage(err))
			}
			return state.print(preview, func() {
				printPreview(preview)
			})
		},
	}
	bindSettleFlags(cmd.Flags(), &req)
	return cmd
}

func printPreview(preview ledger.Preview) {
	if preview.NewCustomer {
		fmt.Println(yellow("new customer"))
	}
	printAssessment(preview.Assessment)
	printSummary(preview.Summary)
	if preview.Problem != "" {
		fmt.Printf("%s %s\n", red("✘"), preview.Problem)
	}
}

func newVerifyCommand(state *cliState) *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "verify <mobile>",
		Short: "Check a customer's PIN",
		Args:  requireArgs(1, "<mobile> --pin NNNN"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			verification, err := state.client.VerifyPin(ctx, args[0], pin)
			if err != nil {
				return errors.New(loyalty.UserMessage(err))
			}
			return state.print(verification, func() {
				if verification.New {
					fmt.Printf("%s PIN accepted for new customer %s\n", green("✔"), verification.Mobile)
					return
				}
				fmt.Printf("%s %s %s\n", green("✔"), bold(verification.Name), gray(verification.Mobile))
				if verification.Assessment != nil {
					printAssessment(*verification.Assessment)
				}
				fmt.Printf("  balance   %d pts\n", verification.Points)
			})
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "4 digit PIN")
	return cmd
}
