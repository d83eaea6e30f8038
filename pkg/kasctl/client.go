package kasctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
	"github.com/kaswalletd/kaswalletd/pkg/walletservice"
)

// DefaultDaemonAddress is kasctl's default --daemonaddress.
const DefaultDaemonAddress = "http://127.0.0.1:8082"

// Client is kasctl's HTTP transport to a kaswalletd instance's pkg/api
// surface. One Client is built per invocation.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against a daemon listening at daemonAddress.
func New(daemonAddress string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(daemonAddress, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("%s", errBody.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding daemon response: %w", err)
	}
	return nil
}

// GetVersion calls GET /api/v1/version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &resp)
	return resp.Version, err
}

// GetAddresses calls GET /api/v1/addresses.
func (c *Client) GetAddresses(ctx context.Context) ([]string, error) {
	var resp struct {
		Addresses []string `json:"addresses"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/addresses", nil, &resp)
	return resp.Addresses, err
}

// NewAddress calls POST /api/v1/addresses/new.
func (c *Client) NewAddress(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/addresses/new", nil, &resp)
	return resp.Address, err
}

// GetBalance calls GET /api/v1/balance.
func (c *Client) GetBalance(ctx context.Context, perAddress bool) (walletservice.BalanceResult, error) {
	path := "/api/v1/balance"
	if perAddress {
		path += "?per_address=true"
	}
	var resp walletservice.BalanceResult
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// GetUtxos calls GET /api/v1/utxos.
func (c *Client) GetUtxos(ctx context.Context, addresses []string, includePending, includeDust bool) ([]walletservice.UtxoView, error) {
	path := fmt.Sprintf("/api/v1/utxos?include_pending=%t&include_dust=%t", includePending, includeDust)
	if len(addresses) > 0 {
		path += "&addresses=" + strings.Join(addresses, ",")
	}
	var resp struct {
		Utxos []walletservice.UtxoView `json:"utxos"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Utxos, err
}

// CreateUnsignedTransactions calls POST /api/v1/transactions/unsigned.
func (c *Client) CreateUnsignedTransactions(ctx context.Context, req walletmodel.PaymentRequest) ([]walletmodel.WalletSignableTransaction, error) {
	body := struct {
		walletmodel.PaymentRequest
		ManualSelection bool `json:"manual_selection"`
	}{PaymentRequest: req}

	var resp struct {
		Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/transactions/unsigned", body, &resp)
	return resp.Transactions, err
}

// Sign calls POST /api/v1/transactions/sign.
func (c *Client) Sign(ctx context.Context, txs []walletmodel.WalletSignableTransaction, password string) ([]walletmodel.WalletSignableTransaction, error) {
	body := struct {
		Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
		Password     string                                  `json:"password"`
	}{txs, password}

	var resp struct {
		Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/transactions/sign", body, &resp)
	return resp.Transactions, err
}

// Broadcast calls POST /api/v1/transactions/broadcast.
func (c *Client) Broadcast(ctx context.Context, txs []walletmodel.WalletSignableTransaction) ([]string, error) {
	body := struct {
		Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
	}{txs}

	var resp struct {
		TransactionIDs []string `json:"transaction_ids"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/transactions/broadcast", body, &resp)
	return resp.TransactionIDs, err
}

// SendResult is Send's response: the broadcast transaction ids plus the
// signed transactions themselves, the latter only used by --show-serialized.
type SendResult struct {
	TransactionIDs     []string                                `json:"transaction_ids"`
	SignedTransactions []walletmodel.WalletSignableTransaction `json:"signed_transactions"`
}

// Send calls POST /api/v1/send.
func (c *Client) Send(ctx context.Context, req walletmodel.PaymentRequest, password string) (SendResult, error) {
	body := struct {
		walletmodel.PaymentRequest
		Password        string `json:"password"`
		ManualSelection bool   `json:"manual_selection"`
	}{PaymentRequest: req, Password: password}

	var resp SendResult
	err := c.do(ctx, http.MethodPost, "/api/v1/send", body, &resp)
	return resp, err
}
