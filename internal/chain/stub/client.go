// Package stub provides an in-memory chain client for tests and offline runs.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// ErrRejected is the default submission failure.
var ErrRejected = errors.New("batch rejected")

// Client implements the pool/balance source and the batch submitter in memory.
type Client struct {
	mu sync.RWMutex

	pools          map[domain.AssetID]*domain.Pool
	poolBalances   map[domain.Account]map[domain.AssetID]decimal.Decimal
	traderBalances map[domain.Account]map[domain.AssetID]decimal.Decimal

	// Fault injection
	failures map[string]error
	latency  time.Duration

	fee        decimal.Decimal
	submitErr  error
	submitted  []*domain.BatchTransaction
	queryCount int
}

// NewClient creates a new stub client.
func NewClient() *Client {
	return &Client{
		pools:          make(map[domain.AssetID]*domain.Pool),
		poolBalances:   make(map[domain.Account]map[domain.AssetID]decimal.Decimal),
		traderBalances: make(map[domain.Account]map[domain.AssetID]decimal.Decimal),
		failures:       make(map[string]error),
	}
}

// AddPool registers pool for each of its outcome assets together with its balances.
func (c *Client) AddPool(pool *domain.Pool, balances map[domain.AssetID]decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, asset := range pool.Assets {
		if asset.IsOutcome() {
			c.pools[asset] = pool
		}
	}
	if c.poolBalances[pool.Account] == nil {
		c.poolBalances[pool.Account] = make(map[domain.AssetID]decimal.Decimal)
	}
	for asset, amount := range balances {
		c.poolBalances[pool.Account][asset] = amount
	}
}

// SetPoolBalance overrides one pool balance.
func (c *Client) SetPoolBalance(poolAccount domain.Account, asset domain.AssetID, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poolBalances[poolAccount] == nil {
		c.poolBalances[poolAccount] = make(map[domain.AssetID]decimal.Decimal)
	}
	c.poolBalances[poolAccount][asset] = amount
}

// SetTraderBalance sets the free balance of account in asset.
func (c *Client) SetTraderBalance(account domain.Account, asset domain.AssetID, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.traderBalances[account] == nil {
		c.traderBalances[account] = make(map[domain.AssetID]decimal.Decimal)
	}
	c.traderBalances[account][asset] = amount
}

// Fail makes every call to method ("Pool", "TraderBalance", "PoolBalance", "Submit",
// "EstimateFee") return err. A nil err clears the failure.
func (c *Client) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, method)
		return
	}
	c.failures[method] = err
}

// SetLatency delays every query by d, honoring context cancellation.
func (c *Client) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

// SetFee sets the fee returned by EstimateFee.
func (c *Client) SetFee(fee decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fee = fee
}

// Reject makes Submit report failure with err. A nil err accepts submissions again.
func (c *Client) Reject(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// Submitted returns the transactions submitted so far.
func (c *Client) Submitted() []*domain.BatchTransaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.BatchTransaction, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// QueryCount returns the number of read queries served.
func (c *Client) QueryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryCount
}

// Pool returns the pool trading asset, or nil.
func (c *Client) Pool(ctx context.Context, asset domain.AssetID) (*domain.Pool, error) {
	if err := c.begin(ctx, "Pool"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, ok := c.pools[asset]
	if !ok {
		return nil, nil
	}
	cp := *pool
	cp.Assets = append([]domain.AssetID(nil), pool.Assets...)
	cp.Weights = make(map[domain.AssetID]decimal.Decimal, len(pool.Weights))
	for k, v := range pool.Weights {
		cp.Weights[k] = v
	}
	return &cp, nil
}

// TraderBalance returns the free balance of account in asset.
// Accounts without a recorded balance hold zero; an empty account is unavailable.
func (c *Client) TraderBalance(ctx context.Context, account domain.Account, asset domain.AssetID) (domain.Balance, error) {
	if err := c.begin(ctx, "TraderBalance"); err != nil {
		return domain.UnavailableBalance(), err
	}
	if account == "" {
		return domain.UnavailableBalance(), nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.AvailableBalance(c.traderBalances[account][asset]), nil
}

// PoolBalance returns the balance held by poolAccount in asset, or nil.
func (c *Client) PoolBalance(ctx context.Context, poolAccount domain.Account, asset domain.AssetID) (*decimal.Decimal, error) {
	if err := c.begin(ctx, "PoolBalance"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	amount, ok := c.poolBalances[poolAccount][asset]
	if !ok {
		return nil, nil
	}
	return &amount, nil
}

// Submit records tx and reports success unless a rejection is configured.
func (c *Client) Submit(ctx context.Context, tx *domain.BatchTransaction) (*domain.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failures["Submit"]; err != nil {
		return nil, err
	}
	c.submitted = append(c.submitted, tx)
	result := &domain.SubmitResult{
		SubmissionID: fmt.Sprintf("stub-%d", len(c.submitted)),
		BatchID:      tx.ID,
		Success:      c.submitErr == nil,
	}
	if c.submitErr != nil {
		result.Reason = c.submitErr.Error()
		return result, c.submitErr
	}
	result.TxHash = fmt.Sprintf("0x%064x", len(c.submitted))
	return result, nil
}

// EstimateFee returns the configured fee.
func (c *Client) EstimateFee(ctx context.Context, _ *domain.BatchTransaction) (decimal.Decimal, error) {
	if err := c.begin(ctx, "EstimateFee"); err != nil {
		return decimal.Zero, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fee, nil
}

func (c *Client) begin(ctx context.Context, method string) error {
	c.mu.Lock()
	c.queryCount++
	latency := c.latency
	failure := c.failures[method]
	c.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return failure
}
