package rpcnode

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// HTTPClient is a minimal JSON-over-HTTP implementation of Client: POST
// method name, JSON body, JSON response. A deployment pointing at a node
// that speaks a different transport swaps this type for its own Client
// implementation without touching any caller.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL (e.g.
// "http://127.0.0.1:16110").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) call(ctx context.Context, method string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "marshaling %s request", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "building %s request", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "calling node method %s", method)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return walletmodel.NewInternalServerError("node method %s returned status %d", method, httpResp.StatusCode)
	}

	if resp == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return walletmodel.WrapInternalServerError(err, "decoding %s response", method)
	}
	return nil
}

func (c *HTTPClient) GetBlockDAGInfo(ctx context.Context) (BlockDAGInfo, error) {
	var resp BlockDAGInfo
	err := c.call(ctx, "get_block_dag_info", struct{}{}, &resp)
	return resp, err
}

func (c *HTTPClient) GetBalancesByAddresses(ctx context.Context, addresses []string) ([]AddressBalance, error) {
	var resp []AddressBalance
	err := c.call(ctx, "get_balances_by_addresses", struct {
		Addresses []string `json:"addresses"`
	}{addresses}, &resp)
	return resp, err
}

func (c *HTTPClient) GetUtxosByAddresses(ctx context.Context, addresses []string) ([]AddressUtxo, error) {
	var resp []AddressUtxo
	err := c.call(ctx, "get_utxos_by_addresses", struct {
		Addresses []string `json:"addresses"`
	}{addresses}, &resp)
	return resp, err
}

func (c *HTTPClient) GetMempoolEntriesByAddresses(ctx context.Context, addresses []string, includeSending, includeReceiving bool) ([]MempoolEntriesByAddress, error) {
	var resp []MempoolEntriesByAddress
	err := c.call(ctx, "get_mempool_entries_by_addresses", struct {
		Addresses        []string `json:"addresses"`
		IncludeSending   bool     `json:"include_sending"`
		IncludeReceiving bool     `json:"include_receiving"`
	}{addresses, includeSending, includeReceiving}, &resp)
	return resp, err
}

func (c *HTTPClient) GetFeeEstimate(ctx context.Context) (FeeEstimate, error) {
	var resp FeeEstimate
	err := c.call(ctx, "get_fee_estimate", struct{}{}, &resp)
	return resp, err
}

func (c *HTTPClient) SubmitTransaction(ctx context.Context, rawTransaction []byte, allowOrphan bool) (string, error) {
	var resp struct {
		TxID string `json:"tx_id"`
	}
	err := c.call(ctx, "submit_transaction", struct {
		Transaction []byte `json:"transaction"`
		AllowOrphan bool   `json:"allow_orphan"`
	}{rawTransaction, allowOrphan}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", walletmodel.NewInternalServerError("submit_transaction returned an empty tx_id")
	}
	return resp.TxID, nil
}

var _ Client = (*HTTPClient)(nil)
