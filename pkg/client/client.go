package client

import (
	"context"
	"io"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

// Client is implemented by LocalClient and HTTPClient. Customers returned by
// either carry no PIN.
type Client interface {
	Settle(ctx context.Context, req loyalty.SettleRequest) (loyalty.SettlementResult, error)
	Preview(ctx context.Context, req loyalty.SettleRequest) (ledger.Preview, error)
	VerifyPin(ctx context.Context, mobile string, pin string) (ledger.Verification, error)
	Lookup(ctx context.Context, mobile string) (ledger.CustomerStatus, error)
	ListCustomers(ctx context.Context) ([]ledger.CustomerStatus, error)
	Overview(ctx context.Context) (loyalty.Overview, error)
	Analytics(ctx context.Context) (loyalty.Analytics, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	Config(ctx context.Context) (loyalty.TierConfig, error)
	SaveConfig(ctx context.Context, cfg loyalty.TierConfig) (loyalty.TierConfig, error)
	Notifications(ctx context.Context, limit int) ([]loyalty.Notification, error)
	Import(ctx context.Context, customers []loyalty.Customer) (int, error)
	Seed(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

var (
	_ Client = (*LocalClient)(nil)
	_ Client = (*HTTPClient)(nil)
)

func withoutPin(customer loyalty.Customer) loyalty.Customer {
	customer.PIN = ""
	return customer
}
