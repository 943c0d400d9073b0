// Package ledger is the HTTP client for the external Pi ledger. Every call
// goes through a resilience.Executor; submissions that time out are
// reconciled by memo before being sent again.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/platform/resilience"
)

const serviceName = "pi-ledger"

// PaymentIntent is the ledger's acknowledgement of a submitted payment.
type PaymentIntent struct {
	Identifier string          `json:"identifier"`
	Memo       string          `json:"memo"`
	Amount     decimal.Decimal `json:"amount"`
}

// Transaction is a confirmed ledger transaction.
type Transaction struct {
	ID               string          `json:"identifier"`
	Amount           decimal.Decimal `json:"amount"`
	Memo             string          `json:"memo"`
	Verified         bool            `json:"verified"`
	BlockConfirmedAt *time.Time      `json:"block_confirmed_at,omitempty"`
}

// SubmitRequest is the body of a payment submission.
type SubmitRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Memo     string            `json:"memo"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"error_message"`
}

// Client talks to the ledger REST API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	executor *resilience.Executor
	logger   *slog.Logger
}

func NewClient(cfg config.LedgerConfig, resilienceCfg config.ResilienceConfig, logger *slog.Logger) *Client {
	return NewClientWithHTTP(cfg, resilience.NewExecutor(serviceName, resilienceCfg, cfg.CallTimeout, logger), &http.Client{}, logger)
}

func NewClientWithHTTP(cfg config.LedgerConfig, executor *resilience.Executor, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
		executor: executor,
		logger:   logger,
	}
}

// SubmitPayment registers a payment intent. Once any attempt has timed out,
// every later attempt looks the intent up by memo first and adopts it. A new
// submission is only sent after a lookup succeeded and found nothing.
func (c *Client) SubmitPayment(ctx context.Context, req SubmitRequest) (*PaymentIntent, error) {
	if req.Memo == "" {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "ledger memo is required"}
	}

	timedOut := false
	return resilience.Call(ctx, c.executor, func(ctx context.Context) (*PaymentIntent, error) {
		if timedOut {
			existing, err := c.findByMemo(ctx, req.Memo)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile timed out submission: %w", err)
			}
			if existing != nil {
				c.logger.Info("Adopted ledger intent after timed out submission", "memo", req.Memo)
				return existing, nil
			}
		}

		var intent PaymentIntent
		err := c.do(ctx, http.MethodPost, "/payments", req, &intent)
		if err != nil {
			if isTimeout(err) {
				timedOut = true
			}
			return nil, err
		}
		return &intent, nil
	})
}

// GetTransaction fetches a confirmed ledger transaction. A missing
// transaction is shared.NotFoundError.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	return resilience.Call(ctx, c.executor, func(ctx context.Context) (*Transaction, error) {
		var tx Transaction
		if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(txID), nil, &tx); err != nil {
			if errors.Is(err, errNotFound) {
				return nil, shared.NotFoundError{Resource: "ledger transaction", ID: txID}
			}
			return nil, err
		}
		return &tx, nil
	})
}

// FindPaymentByMemo returns the intent recorded under memo, or nil.
func (c *Client) FindPaymentByMemo(ctx context.Context, memo string) (*PaymentIntent, error) {
	return resilience.Call(ctx, c.executor, func(ctx context.Context) (*PaymentIntent, error) {
		return c.findByMemo(ctx, memo)
	})
}

func (c *Client) findByMemo(ctx context.Context, memo string) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := c.do(ctx, http.MethodGet, "/payments?memo="+url.QueryEscape(memo), nil, &intent)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

var errNotFound = errors.New("ledger resource not found")

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("failed to marshal ledger request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("failed to build ledger request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resilience.Permanent(errNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("ledger returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return resilience.Permanent(shared.ValidationError{
			Code:    shared.CodeInvalidRequest,
			Message: fmt.Sprintf("ledger rejected request (%d): %s", resp.StatusCode, apiErr.Message),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
