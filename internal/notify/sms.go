package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

const maxGatewayResponseBytes = 64 << 10

type SMSGatewayOptions struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	HTTPClient *http.Client
}

// SMSGateway posts messages to a Twilio-compatible Messages endpoint.
type SMSGateway struct {
	endpoint   string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

type gatewayMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func NewSMSGateway(opts SMSGatewayOptions) (*SMSGateway, error) {
	if opts.BaseURL == "" || opts.AccountSID == "" || opts.From == "" {
		return nil, fmt.Errorf("%w: base url, account and from number are required", ErrDelivery)
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &SMSGateway{
		endpoint:   base.String() + "/2010-04-01/Accounts/" + url.PathEscape(opts.AccountSID) + "/Messages.json",
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		from:       opts.From,
		client:     httpClient,
	}, nil
}

func (g *SMSGateway) Send(ctx context.Context, n loyalty.Notification) error {
	form := url.Values{}
	form.Set("To", n.Recipient)
	form.Set("From", g.from)
	form.Set("Body", n.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}

	var payload gatewayMessage
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return fmt.Errorf("%w: gateway status %d: %s", ErrDelivery, resp.StatusCode, payload.Message)
	}
	return fmt.Errorf("%w: gateway status %d", ErrDelivery, resp.StatusCode)
}
