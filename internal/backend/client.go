// Package backend talks to the authoritative ledger over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

var ErrNotConfigured = errors.New("backend url not configured")

var (
	_ syncqueue.Deliverer     = (*Client)(nil)
	_ syncqueue.Prober        = (*Client)(nil)
	_ reconcile.BalanceSource = (*Client)(nil)
)

type Config struct {
	BaseURL   string
	AccountID string
	// Token is sent as a bearer token. Without one the client is considered
	// unauthenticated and remote balance checks are skipped.
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TransactionRequest is the body of POST /accounts/{id}/transactions.
type TransactionRequest struct {
	TransactionID string         `json:"transactionId"`
	Type          string         `json:"type"`
	Amount        int64          `json:"amount"`
	Reason        string         `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// InventoryRequest is the body of POST /accounts/{id}/inventory.
type InventoryRequest struct {
	TransactionID string    `json:"transactionId"`
	ItemID        string    `json:"itemId"`
	Category      string    `json:"category"`
	Delta         int64     `json:"delta"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Result is the backend's answer to an accepted mutation. Status is
// "applied" or "duplicate".
type Result struct {
	Status  string `json:"status"`
	Balance int64  `json:"balance"`
}

// BalanceResponse is the body of GET /accounts/{id}/balance.
type BalanceResponse struct {
	AccountID string `json:"accountId"`
	Balance   int64  `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Deliver sends tx to the route its Endpoint names. Repeated deliveries of the
// same id are answered with status "duplicate" and no effect.
func (c *Client) Deliver(ctx context.Context, tx syncqueue.Transaction) error {
	var (
		path string
		body any
	)

	switch tx.Endpoint {
	case syncqueue.EndpointLedger:
		path = "transactions"
		body = TransactionRequest{
			TransactionID: tx.ID,
			Type:          string(tx.Type),
			Amount:        tx.Amount,
			Reason:        tx.Reason,
			Metadata:      tx.Metadata,
			CreatedAt:     tx.CreatedAt,
		}

	case syncqueue.EndpointInventory:
		if tx.Item == nil {
			return fmt.Errorf("%w: inventory transaction %s has no item", syncqueue.ErrRejected, tx.ID)
		}

		path = "inventory"
		body = InventoryRequest{
			TransactionID: tx.ID,
			ItemID:        tx.Item.ItemID,
			Category:      tx.Item.Category,
			Delta:         tx.Item.Delta,
			CreatedAt:     tx.CreatedAt,
		}

	default:
		return fmt.Errorf("%w: unknown endpoint %q", syncqueue.ErrRejected, tx.Endpoint)
	}

	var res Result

	err := c.do(ctx, http.MethodPost, c.accountURL(path), body, &res)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", tx.ID, err)
	}

	return nil
}

// FetchBalance returns the backend's balance for the configured account.
func (c *Client) FetchBalance(ctx context.Context) (int64, error) {
	var res BalanceResponse

	err := c.do(ctx, http.MethodGet, c.accountURL("balance"), nil, &res)
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}

	return res.Balance, nil
}

// Ping checks /healthz.
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}

	return nil
}

func (c *Client) Authenticated() bool {
	return c.cfg.Token != "" && c.cfg.BaseURL != ""
}

func (c *Client) accountURL(suffix string) string {
	return fmt.Sprintf("%s/accounts/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountID), suffix)
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("%w: %w", syncqueue.ErrNetwork, ErrNotConfigured)
	}

	var reader io.Reader

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", syncqueue.ErrRejected, err)
		}

		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %w", syncqueue.ErrTimeout, err)
		}

		return fmt.Errorf("%w: %w", syncqueue.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", syncqueue.ErrNetwork, err)
	}

	err = statusError(resp.StatusCode, respBody)
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	err = json.Unmarshal(respBody, out)
	if err != nil {
		return fmt.Errorf("%w: decode response: %w", syncqueue.ErrNetwork, err)
	}

	return nil
}

// statusError maps an HTTP status onto the queue taxonomy. Client errors
// about the request itself are permanent; everything else may pass.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	msg := http.StatusText(code)

	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	switch code {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %d %s", syncqueue.ErrRejected, code, msg)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %d %s", syncqueue.ErrTimeout, code, msg)
	default:
		return fmt.Errorf("%w: %d %s", syncqueue.ErrNetwork, code, msg)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }

	return errors.As(err, &te) && te.Timeout()
}
