package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultMaxDelay   = 10 * time.Second
)

const maxResponseBytes = 8 << 20

// RPC method names.
const (
	methodPoolByAsset      = "swaps_poolByAsset"
	methodPoolBalance      = "swaps_poolBalance"
	methodFreeBalance      = "tokens_freeBalance"
	methodSubmitBatch      = "author_submitBatch"
	methodEstimateBatchFee = "payment_estimateBatchFee"
)

// HTTPClient reads pools and balances and submits batches over HTTP JSON-RPC 2.0.
// Reads retry transport failures with backoff; submissions go out exactly once.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times a failed read is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = max(n, 0) }
}

// WithRetryDelay sets the first retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

// WithRateLimit caps outgoing requests at perSecond with the given burst.
// A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewHTTPClient creates a node RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// read performs an idempotent call, retrying transport failures.
func (c *HTTPClient) read(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	return c.call(ctx, 1+c.maxRetries, method, result, params...)
}

// call sends method up to attempts times. Only transport and HTTP status failures are
// retried; an RPC error from the node is final.
func (c *HTTPClient) call(ctx context.Context, attempts int, method string, result interface{}, params ...interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(newRequest(c.requestID.Add(1), method, params...))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	delays := newBackoff(c.retryDelay, c.maxDelay)
	for attempt := 1; ; attempt++ {
		msg, err := c.post(ctx, body)
		if err == nil {
			return msg.decodeResult(result)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= attempts {
			if attempts > 1 {
				return fmt.Errorf("%s: giving up after %d attempts: %w", method, attempts, err)
			}
			return fmt.Errorf("%s: %w", method, err)
		}
		if err := sleep(ctx, delays.Next()); err != nil {
			return err
		}
	}
}

// post delivers one request body and decodes the reply envelope.
func (c *HTTPClient) post(ctx context.Context, body []byte) (*rpcMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &msg, nil
}

// readPlanck reads a nullable planck amount.
func (c *HTTPClient) readPlanck(ctx context.Context, method string, params ...interface{}) (*decimal.Decimal, error) {
	var raw *string
	if err := c.read(ctx, method, &raw, params...); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	amount, err := FromPlanck(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &amount, nil
}

// Pool retrieves the pool trading asset. Returns nil if no pool exists.
func (c *HTTPClient) Pool(ctx context.Context, asset domain.AssetID) (*domain.Pool, error) {
	var result *poolResult
	if err := c.read(ctx, methodPoolByAsset, &result, asset.String()); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.toDomain()
}

// TraderBalance retrieves the free balance of account in asset.
// A null result or an empty account yields an unavailable balance.
func (c *HTTPClient) TraderBalance(ctx context.Context, account domain.Account, asset domain.AssetID) (domain.Balance, error) {
	if account == "" {
		return domain.UnavailableBalance(), nil
	}
	amount, err := c.readPlanck(ctx, methodFreeBalance, account.String(), asset.String())
	if err != nil || amount == nil {
		return domain.UnavailableBalance(), err
	}
	return domain.AvailableBalance(*amount), nil
}

// PoolBalance retrieves the balance held by poolAccount in asset. Returns nil if absent.
func (c *HTTPClient) PoolBalance(ctx context.Context, poolAccount domain.Account, asset domain.AssetID) (*decimal.Decimal, error) {
	return c.readPlanck(ctx, methodPoolBalance, poolAccount.String(), asset.String())
}

// Submit sends tx once. A rejected batch returns a result carrying the node's reason
// verbatim together with an error wrapping ErrSubmissionFailed.
func (c *HTTPClient) Submit(ctx context.Context, tx *domain.BatchTransaction) (*domain.SubmitResult, error) {
	batch, err := encodeBatch(tx)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	var result submitResult
	if err := c.call(ctx, 1, methodSubmitBatch, &result, batch); err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		rejected := &domain.SubmitResult{BatchID: tx.ID, Reason: rpcErr.Message}
		return rejected, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	out := &domain.SubmitResult{
		SubmissionID: result.SubmissionID,
		BatchID:      tx.ID,
		TxHash:       result.TxHash,
		Success:      result.Success,
		Reason:       result.Error,
	}
	if !out.Success {
		return out, fmt.Errorf("%w: %s", ErrSubmissionFailed, out.Reason)
	}
	return out, nil
}

// EstimateFee returns the fee the node would charge for tx, in base units.
func (c *HTTPClient) EstimateFee(ctx context.Context, tx *domain.BatchTransaction) (decimal.Decimal, error) {
	batch, err := encodeBatch(tx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("encode batch: %w", err)
	}

	var raw string
	if err := c.read(ctx, methodEstimateBatchFee, &raw, batch); err != nil {
		return decimal.Zero, err
	}
	return FromPlanck(raw)
}
