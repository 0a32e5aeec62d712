// Package engine owns one trade slip and keeps its derived state current.
//
// The engine holds the slip, the latest snapshot and the DerivedState computed from
// them. Edits recompute synchronously against the current snapshot; Refresh fetches a
// new snapshot and recomputes. Submission is checked against the snapshot generation
// the caller saw and is never retried.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeslip/internal/batch"
	"tradeslip/internal/domain"
	"tradeslip/internal/events"
	"tradeslip/internal/observability"
	"tradeslip/internal/slip"
	"tradeslip/internal/snapshot"
	"tradeslip/internal/storage"
	"tradeslip/internal/storage/memory"
)

// DefaultSlipID is the slip loaded when none is configured.
const DefaultSlipID = "default"

// Engine errors
var (
	ErrStaleState         = errors.New("state generation is stale")
	ErrNothingToSubmit    = errors.New("no transaction to submit")
	ErrSubmitInProgress   = errors.New("submission already in progress")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrNoSubmitter        = errors.New("no submitter configured")
	ErrSnapshotDiscarded  = errors.New("snapshot discarded")
	ErrMissingSource      = errors.New("snapshot source is required")
	ErrInvalidSlipRecord  = errors.New("invalid persisted slip")
	ErrPersistSlipFailed  = errors.New("persist slip failed")
	ErrNoQuoteHistory     = errors.New("quote history is not recorded")
)

// Submitter sends assembled batches to the chain.
type Submitter interface {
	Submit(ctx context.Context, tx *domain.BatchTransaction) (*domain.SubmitResult, error)
	EstimateFee(ctx context.Context, tx *domain.BatchTransaction) (decimal.Decimal, error)
}

// Options configures an Engine.
type Options struct {
	SlipID          string // "" = DefaultSlipID
	Account         domain.Account
	DefaultSlippage *decimal.Decimal // slippage of a slip not found in the store

	Source      snapshot.Source
	Concurrency int // per-fetch source concurrency, 0 = snapshot.DefaultConcurrency
	Submitter   Submitter

	SlipStore       storage.SlipStore       // nil = in-memory
	QuoteStore      storage.QuoteStore      // optional
	SubmissionStore storage.SubmissionStore // optional
	Publisher       events.Publisher        // optional

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine serializes all access to one slip. It is safe for concurrent use.
type Engine struct {
	fetcher         *snapshot.Fetcher
	submitter       Submitter
	slipStore       storage.SlipStore
	quoteStore      storage.QuoteStore
	submissionStore storage.SubmissionStore
	publisher       events.Publisher
	logger          *slog.Logger
	now             func() time.Time

	mu         sync.Mutex
	slip       *slip.Slip
	account    domain.Account
	snap       *snapshot.Snapshot
	derived    *slip.DerivedState
	epoch      uint64
	inflight   map[uint64]context.CancelFunc
	nextFetch  uint64
	submitting bool

	fee     decimal.Decimal
	feeTxID string
}

// New loads the slip from the store, or starts an empty one, and computes its initial
// state. Every item is not ready until the first Refresh.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, ErrMissingSource
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	slipID := opts.SlipID
	if slipID == "" {
		slipID = DefaultSlipID
	}
	store := opts.SlipStore
	if store == nil {
		store = memory.NewSlipStore()
	}

	e := &Engine{
		fetcher: snapshot.NewFetcher(snapshot.FetcherOptions{
			Source:      opts.Source,
			Logger:      logger,
			Concurrency: opts.Concurrency,
		}),
		submitter:       opts.Submitter,
		slipStore:       store,
		quoteStore:      opts.QuoteStore,
		submissionStore: opts.SubmissionStore,
		publisher:       opts.Publisher,
		logger:          logger.With("component", "engine", "slip_id", slipID),
		now:             now,
		account:         opts.Account,
		inflight:        make(map[uint64]context.CancelFunc),
	}

	s, err := e.loadSlip(ctx, slipID, opts.DefaultSlippage)
	if err != nil {
		return nil, err
	}
	e.slip = s
	e.recomputeLocked()
	return e, nil
}

func (e *Engine) loadSlip(ctx context.Context, slipID string, slippage *decimal.Decimal) (*slip.Slip, error) {
	rec, err := e.slipStore.Load(ctx, slipID)
	if errors.Is(err, storage.ErrNotFound) {
		s := slip.New(slipID)
		if slippage != nil {
			if err := s.SetSlippage(*slippage); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load slip %s: %w", slipID, err)
	}
	s, err := slip.FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSlipRecord, err)
	}
	e.logger.Info("slip restored", "items", s.Len(), "slippage", s.Slippage().String())
	return s, nil
}

// recomputeLocked rebuilds the derived state from the slip and the current snapshot.
func (e *Engine) recomputeLocked() {
	start := time.Now()
	derived := slip.Recompute(e.slip.Items(), e.snap, e.slip.Slippage())
	e.derived = derived

	if derived.Transaction == nil || derived.Transaction.ID != e.feeTxID {
		e.fee = decimal.Zero
		e.feeTxID = ""
	}

	legs := 0
	if derived.Transaction != nil {
		legs = len(derived.Transaction.Legs)
	}
	reasons := make([]string, len(derived.Dropped))
	for i, d := range derived.Dropped {
		reasons[i] = batch.Reason(d.Reason)
	}
	observability.RecordRecompute(time.Since(start).Seconds(),
		derived.Ready, derived.NotReady, derived.Invalid, derived.Total.InexactFloat64())
	observability.RecordLegs(legs, reasons)
}

// saveLocked persists the slip.
func (e *Engine) saveLocked(ctx context.Context) error {
	rec := e.slip.Record()
	rec.UpdatedAt = e.now().UnixMilli()
	if err := e.slipStore.Save(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistSlipFailed, err)
	}
	return nil
}

// cancelInflightLocked cancels every running fetch and starts a new epoch, so their
// results are discarded.
func (e *Engine) cancelInflightLocked() {
	for id, cancel := range e.inflight {
		cancel()
		delete(e.inflight, id)
	}
	e.epoch++
}

// edit applies fn to the slip, recomputes and persists. The in-memory edit stands even
// when persisting fails.
func (e *Engine) edit(ctx context.Context, cancelFetch bool, fn func(*slip.Slip) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.slip); err != nil {
		return err
	}
	if cancelFetch {
		e.cancelInflightLocked()
	}
	e.recomputeLocked()
	return e.saveLocked(ctx)
}

// Add adds item, replacing an existing item with the same direction and asset.
func (e *Engine) Add(ctx context.Context, item domain.TradeItem) error {
	return e.edit(ctx, false, func(s *slip.Slip) error {
		return s.Add(item)
	})
}

// Replace swaps the item identified by old for item, keeping its position.
func (e *Engine) Replace(ctx context.Context, old domain.ItemKey, item domain.TradeItem) error {
	return e.edit(ctx, false, func(s *slip.Slip) error {
		return s.Replace(old, item)
	})
}

// Remove deletes the item identified by key and cancels any in-flight fetch.
func (e *Engine) Remove(ctx context.Context, key domain.ItemKey) error {
	return e.edit(ctx, true, func(s *slip.Slip) error {
		if !s.Remove(key) {
			return fmt.Errorf("%w: %s", slip.ErrItemNotFound, key)
		}
		return nil
	})
}

// Clear removes every item. The slippage setting is kept.
func (e *Engine) Clear(ctx context.Context) error {
	return e.edit(ctx, true, func(s *slip.Slip) error {
		s.Clear()
		return nil
	})
}

// SetSlippage sets the tolerance in percent.
func (e *Engine) SetSlippage(ctx context.Context, pct decimal.Decimal) error {
	return e.edit(ctx, false, func(s *slip.Slip) error {
		return s.SetSlippage(pct)
	})
}

// SetAccount switches the trader account. The current snapshot belongs to the previous
// account and is dropped, so every item is not ready until the next Refresh.
func (e *Engine) SetAccount(account domain.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if account == e.account {
		return
	}
	e.cancelInflightLocked()
	e.account = account
	e.snap = nil
	e.recomputeLocked()
	e.logger.Info("account changed", "account", account.String())
}

// Refresh fetches a new snapshot for the slip's assets and recomputes.
// A result that no longer matches the engine's account and epoch, or that is older than
// the current snapshot, is dropped with ErrSnapshotDiscarded.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	fetchCtx, cancel := context.WithCancel(ctx)
	id := e.nextFetch
	e.nextFetch++
	e.inflight[id] = cancel
	epoch := e.epoch
	account := e.account
	assets := e.slip.Assets()
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.inflight, id)
		e.mu.Unlock()
	}()

	snap, err := e.fetcher.Fetch(fetchCtx, account, assets)
	if err != nil {
		if ctx.Err() == nil && fetchCtx.Err() != nil {
			observability.RecordStaleSnapshot()
			return fmt.Errorf("%w: fetch cancelled", ErrSnapshotDiscarded)
		}
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	e.mu.Lock()
	if epoch != e.epoch || account != e.account ||
		(e.snap != nil && snap.Generation <= e.snap.Generation) {
		e.mu.Unlock()
		observability.RecordStaleSnapshot()
		e.logger.Debug("snapshot discarded", "generation", snap.Generation)
		return ErrSnapshotDiscarded
	}
	e.snap = snap
	e.recomputeLocked()
	quotes := e.derived.Quotes(e.slip.ID(), e.now().UnixMilli())
	e.mu.Unlock()

	e.recordQuotes(ctx, quotes)
	return nil
}

func (e *Engine) recordQuotes(ctx context.Context, quotes []domain.QuoteRecord) {
	if e.quoteStore == nil || len(quotes) == 0 {
		return
	}
	ptrs := make([]*domain.QuoteRecord, len(quotes))
	for i := range quotes {
		ptrs[i] = &quotes[i]
	}
	if err := e.quoteStore.InsertBulk(ctx, ptrs); err != nil {
		e.logger.Warn("record quotes failed", "count", len(quotes), "error", err)
	}
}

// QuoteHistory returns the quotes recorded for this slip with timestamps in
// [fromMs, toMs], oldest first.
func (e *Engine) QuoteHistory(ctx context.Context, fromMs, toMs int64) ([]*domain.QuoteRecord, error) {
	if e.quoteStore == nil {
		return nil, ErrNoQuoteHistory
	}
	return e.quoteStore.GetBySlip(ctx, e.SlipID(), fromMs, toMs)
}

// Submit sends the current transaction once. batchID must be the ID of the transaction
// the caller was shown; the ID covers the snapshot generation, the slippage and every
// leg, so any edit or refresh since then returns ErrStaleState and nothing is sent.
// On success the submitted items are removed from the slip; items added or edited while
// the submission was in flight are kept. A failed submission returns the submitter's
// result, if any, with its error wrapped.
func (e *Engine) Submit(ctx context.Context, batchID string) (*domain.SubmitResult, error) {
	if e.submitter == nil {
		return nil, ErrNoSubmitter
	}

	e.mu.Lock()
	derived := e.derived
	if derived.Transaction == nil {
		e.mu.Unlock()
		return nil, ErrNothingToSubmit
	}
	if derived.Transaction.ID != batchID {
		e.mu.Unlock()
		observability.RecordSubmission("stale")
		return nil, fmt.Errorf("%w: current batch %s, got %q", ErrStaleState, derived.Transaction.ID, batchID)
	}
	if e.submitting {
		e.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	e.submitting = true
	tx := derived.Transaction
	submittedItems := e.slip.Items()
	account := e.account
	slipID := e.slip.ID()
	e.mu.Unlock()

	result, submitErr := e.submitter.Submit(ctx, tx)
	success := submitErr == nil && result != nil && result.Success

	event := &domain.SubmissionEvent{
		SlipID:      slipID,
		Account:     account,
		BatchID:     tx.ID,
		Generation:  tx.Generation,
		Legs:        len(tx.Legs),
		Total:       derived.Total,
		Status:      domain.SubmissionStatusFailure,
		TimestampMs: e.now().UnixMilli(),
	}
	if result != nil {
		event.SubmissionID = result.SubmissionID
		event.TxHash = result.TxHash
		event.Reason = result.Reason
	}
	if event.SubmissionID == "" {
		event.SubmissionID = uuid.NewString()
	}
	if success {
		event.Status = domain.SubmissionStatusSuccess
	} else if event.Reason == "" && submitErr != nil {
		event.Reason = submitErr.Error()
	}
	observability.RecordSubmission(event.Status)
	e.recordSubmission(ctx, event)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitting = false

	if !success {
		e.logger.Warn("submission failed", "batch_id", tx.ID, "reason", event.Reason)
		if submitErr == nil {
			submitErr = fmt.Errorf("%w: %s", ErrSubmissionRejected, event.Reason)
		}
		return result, fmt.Errorf("submit batch %s: %w", tx.ID, submitErr)
	}

	e.logger.Info("batch submitted", "batch_id", tx.ID, "legs", len(tx.Legs), "tx_hash", result.TxHash)
	for _, item := range submittedItems {
		if cur, ok := e.slip.Get(item.Key()); ok && cur.Equal(item) {
			e.slip.Remove(item.Key())
		}
	}
	e.recomputeLocked()
	if err := e.saveLocked(ctx); err != nil {
		e.logger.Error("persist slip after submit failed", "error", err)
	}
	return result, nil
}

func (e *Engine) recordSubmission(ctx context.Context, event *domain.SubmissionEvent) {
	if e.submissionStore != nil {
		if err := e.submissionStore.Insert(ctx, event); err != nil {
			e.logger.Warn("store submission failed", "submission_id", event.SubmissionID, "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishSubmission(ctx, event); err != nil {
			e.logger.Warn("publish submission failed", "submission_id", event.SubmissionID, "error", err)
		}
	}
}

// EstimateFee asks the submitter for the fee of the current transaction and caches it
// until the transaction changes. It returns zero when there is nothing to submit.
func (e *Engine) EstimateFee(ctx context.Context) (decimal.Decimal, error) {
	if e.submitter == nil {
		return decimal.Zero, ErrNoSubmitter
	}

	e.mu.Lock()
	tx := e.derived.Transaction
	if tx == nil {
		e.mu.Unlock()
		return decimal.Zero, nil
	}
	if e.feeTxID == tx.ID {
		fee := e.fee
		e.mu.Unlock()
		return fee, nil
	}
	e.mu.Unlock()

	fee, err := e.submitter.EstimateFee(ctx, tx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("estimate fee: %w", err)
	}

	e.mu.Lock()
	if e.derived.Transaction != nil && e.derived.Transaction.ID == tx.ID {
		e.fee = fee
		e.feeTxID = tx.ID
	}
	e.mu.Unlock()
	return fee, nil
}

// Close cancels every in-flight fetch.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelInflightLocked()
}

// SlipID returns the identifier of the owned slip.
func (e *Engine) SlipID() string {
	return e.slip.ID()
}

// Account returns the current trader account.
func (e *Engine) Account() domain.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

// Slippage returns the current tolerance in percent.
func (e *Engine) Slippage() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slip.Slippage()
}

// Items returns the slip's items in order.
func (e *Engine) Items() []domain.TradeItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slip.Items()
}

// StateOf returns the derived state of the item identified by direction and asset.
func (e *Engine) StateOf(dir domain.Direction, asset domain.AssetID) (domain.ItemState, bool) {
	return e.State().StateOf(dir, asset)
}

// Total returns the slip total: proceeds of ready sells minus cost of ready buys.
func (e *Engine) Total() decimal.Decimal {
	return e.State().Total
}

// Transaction returns the assembled batch, or nil when nothing can be submitted.
func (e *Engine) Transaction() *domain.BatchTransaction {
	return e.State().Transaction
}

// EstimatedFee returns the cached fee of the current transaction, zero until estimated.
func (e *Engine) EstimatedFee() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fee
}

// State returns the current derived state. The returned value is never modified.
func (e *Engine) State() *slip.DerivedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.derived
}
