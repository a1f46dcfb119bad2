package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

const (
	maxImportBytes  int64 = 10 << 20
	importBatchSize       = 50
)

func newCustomerCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Look up customers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <mobile>",
		Short: "Show a customer and their tier",
		Args:  requireArgs(1, "<mobile>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			status, err := state.client.Lookup(ctx, args[0])
			if errors.Is(err, ledger.ErrCustomerNotFound) {
				return fmt.Errorf("no customer with mobile %s", args[0])
			}
			if err != nil {
				return err
			}
			return state.print(status, func() {
				printCustomer(status)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List customers by mobile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			statuses, err := state.client.ListCustomers(ctx)
			if err != nil {
				return err
			}
			return state.print(statuses, func() {
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					c := status.Customer
					rows = append(rows, []string{
						c.Mobile,
						c.Name,
						status.Assessment.EffectiveTier.String(),
						strconv.FormatInt(c.Points, 10),
						money(c.TotalSpent),
						status.Assessment.PointsTierStatus.Label(),
					})
				}
				printTable([]string{"MOBILE", "NAME", "TIER", "POINTS", "SPENT", "EXPIRY"}, rows)
			})
		},
	})
	return cmd
}

func newImportCommand(state *cliState) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import customers from a JSON array or NDJSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader = os.Stdin
			if path != "" {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()
				reader = file
			}

			customers, err := readCustomers(reader)
			if err != nil {
				return err
			}
			if len(customers) == 0 {
				return errors.New("import requires at least one customer")
			}

			bar := progressbar.Default(int64(len(customers)), "importing")
			imported := 0
			for start := 0; start < len(customers); start += importBatchSize {
				end := min(start+importBatchSize, len(customers))
				ctx, cancel := state.withContext()
				n, err := state.client.Import(ctx, customers[start:end])
				cancel()
				if err != nil {
					return fmt.Errorf("import stopped after %d customers: %w", imported, err)
				}
				imported += n
				_ = bar.Add(n)
			}
			_ = bar.Finish()
			fmt.Printf("%s imported %d customers\n", green("✔"), imported)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "input file; defaults to stdin")
	return cmd
}

func readCustomers(input io.Reader) ([]loyalty.Customer, error) {
	reader := bufio.NewReader(io.LimitReader(input, maxImportBytes))
	first, err := firstNonSpaceByte(reader)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(reader)
	if first == '[' {
		var customers []loyalty.Customer
		if err := decoder.Decode(&customers); err != nil {
			return nil, fmt.Errorf("decode customers: %w", err)
		}
		return customers, nil
	}

	var customers []loyalty.Customer
	for {
		var customer loyalty.Customer
		err := decoder.Decode(&customer)
		if errors.Is(err, io.EOF) {
			return customers, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode customer %d: %w", len(customers)+1, err)
		}
		customers = append(customers, customer)
	}
}

func firstNonSpaceByte(reader *bufio.Reader) (byte, error) {
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := reader.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func newSeedCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			n, err := state.client.Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s loaded %d sample customers\n", green("✔"), n)
			return nil
		},
	}
}

func newResetCommand(state *cliState) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all customers and notifications and restore default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes all data; pass --yes to confirm")
			}
			ctx, cancel := state.withContext()
			defer cancel()
			if err := state.client.Reset(ctx); err != nil {
				return err
			}
			fmt.Printf("%s ledger reset\n", green("✔"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
