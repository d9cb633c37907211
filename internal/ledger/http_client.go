package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"civicreport/internal/config"

	"github.com/sethvargo/go-retry"
)

// HTTPClient talks JSON over HTTP to the anchoring ledger service.
//
// Transient failures (network errors, 5xx) are retried with exponential
// backoff inside the configured per-call timeout; 4xx responses are terminal.
// An unconfigured client logs once and fails every call with
// ErrNotConfigured without touching the network.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxRetries uint64
	hc         *http.Client
	log        *slog.Logger

	warnOnce sync.Once
}

func NewHTTPClient(cfg config.LedgerConfig, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: uint64(cfg.MaxRetries),
		hc:         &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

func (c *HTTPClient) Name() string { return "ledger-http" }

func (c *HTTPClient) configured() bool {
	return c.endpoint != "" && c.apiKey != ""
}

func (c *HTTPClient) guard() error {
	if c.configured() {
		return nil
	}
	c.warnOnce.Do(func() {
		c.log.Warn("ledger client not configured; anchoring disabled until LEDGER_ENDPOINT and LEDGER_API_KEY are set")
	})
	return ErrNotConfigured
}

type submitRequest struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

type submitResponse struct {
	TxID     string `json:"tx_id"`
	RecordID string `json:"record_id"`
}

func (c *HTTPClient) Submit(ctx context.Context, hash, initialStatus string) (SubmitResult, error) {
	if err := c.guard(); err != nil {
		return SubmitResult{}, err
	}
	if hash == "" {
		return SubmitResult{}, fmt.Errorf("ledger: empty hash")
	}

	var out submitResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/records", submitRequest{Hash: hash, Status: initialStatus}, &out)
	if err != nil {
		return SubmitResult{}, err
	}
	if out.TxID == "" || out.RecordID == "" {
		return SubmitResult{}, fmt.Errorf("ledger: submit response missing identifiers")
	}
	return SubmitResult{TxID: out.TxID, RecordID: out.RecordID}, nil
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	TxID string `json:"tx_id"`
}

func (c *HTTPClient) UpdateStatus(ctx context.Context, recordID, newStatus string) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	if recordID == "" {
		return "", fmt.Errorf("ledger: empty record id")
	}

	var out updateStatusResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/records/"+recordID+"/status", updateStatusRequest{Status: newStatus}, &out)
	if err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", fmt.Errorf("ledger: status update response missing tx id")
	}
	return out.TxID, nil
}

type recordResponse struct {
	RecordID   string    `json:"record_id"`
	Hash       string    `json:"hash"`
	Status     string    `json:"status"`
	TxID       string    `json:"tx_id"`
	AnchoredAt time.Time `json:"anchored_at"`
}

func (c *HTTPClient) FetchRecord(ctx context.Context, recordID string) (Record, error) {
	if err := c.guard(); err != nil {
		return Record{}, err
	}
	if recordID == "" {
		return Record{}, fmt.Errorf("ledger: empty record id")
	}

	var out recordResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/records/"+recordID, nil, &out)
	if err != nil {
		return Record{}, err
	}
	return Record{
		RecordID:   out.RecordID,
		Hash:       out.Hash,
		Status:     out.Status,
		TxID:       out.TxID,
		AnchoredAt: out.AnchoredAt,
	}, nil
}

type verifyResponse struct {
	Confirmed bool `json:"confirmed"`
}

func (c *HTTPClient) VerifyTransaction(ctx context.Context, txID string) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	if txID == "" {
		return false, fmt.Errorf("ledger: empty tx id")
	}

	var out verifyResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/transactions/"+txID, nil, &out)
	if err != nil {
		return false, err
	}
	return out.Confirmed, nil
}

// doJSON performs one logical call with retries on transient failures.
// The ctx deadline (set by the caller) still bounds the whole attempt chain.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ledger: encode request: %w", err)
		}
		body = b
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(250*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.apiKey)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			// Network-level failure; worth another attempt.
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrRecordNotFound
		case resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("ledger: %s %s returned %d", method, path, resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("ledger: %s %s returned %d", method, path, resp.StatusCode)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ledger: decode response: %w", err)
		}
		return nil
	})
}
