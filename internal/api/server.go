// Package api exposes the slip engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/engine"
	"tradeslip/internal/observability"
	"tradeslip/internal/slip"
)

// Request errors
var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrInvalidRange = errors.New("invalid time range")
)

// Server serves one engine.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates a server for eng.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, logger: logger.With("component", "api")}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observe(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())

	r.Route("/slip", func(r chi.Router) {
		r.Get("/", s.getSlip)
		r.Delete("/", s.clearSlip)
		r.Post("/items", s.addItem)
		r.Put("/items/{direction}/{asset}", s.replaceItem)
		r.Delete("/items/{direction}/{asset}", s.removeItem)
		r.Put("/slippage", s.setSlippage)
		r.Put("/account", s.setAccount)
		r.Post("/refresh", s.refresh)
		r.Get("/fee", s.estimateFee)
		r.Get("/quotes", s.quoteHistory)
		r.Post("/submit", s.submit)
	})
	return r
}

type itemRequest struct {
	Direction string          `json:"direction"`
	Asset     string          `json:"asset"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (req itemRequest) toItem() (domain.TradeItem, error) {
	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		return domain.TradeItem{}, err
	}
	asset, err := domain.ParseAssetID(req.Asset)
	if err != nil {
		return domain.TradeItem{}, err
	}
	return domain.NewTradeItem(dir, asset, req.Quantity)
}

type slippageRequest struct {
	SlippagePct decimal.Decimal `json:"slippage_pct"`
}

type accountRequest struct {
	Account string `json:"account"`
}

// submitRequest names the batch the caller was shown.
type submitRequest struct {
	BatchID string `json:"batch_id"`
}

type feeResponse struct {
	BatchID string          `json:"batch_id,omitempty"`
	Fee     decimal.Decimal `json:"fee"`
}

func (s *Server) getSlip(w http.ResponseWriter, r *http.Request) {
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := req.toItem()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.Add(r.Context(), item); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.refreshBestEffort(r)
	s.writeSlip(w, http.StatusCreated)
}

func (s *Server) replaceItem(w http.ResponseWriter, r *http.Request) {
	old, ok := itemKey(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Direction == "" {
		req.Direction = old.Direction.String()
	}
	if req.Asset == "" {
		req.Asset = old.Asset.String()
	}
	item, err := req.toItem()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.Replace(r.Context(), old, item); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if item.Asset != old.Asset {
		s.refreshBestEffort(r)
	}
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	key, ok := itemKey(w, r)
	if !ok {
		return
	}
	if err := s.engine.Remove(r.Context(), key); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) clearSlip(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) setSlippage(w http.ResponseWriter, r *http.Request) {
	var req slippageRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetSlippage(r.Context(), req.SlippagePct); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) setAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := domain.ParseAccount(req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	s.engine.SetAccount(account)
	s.refreshBestEffort(r)
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Refresh(r.Context()); err != nil && !errors.Is(err, engine.ErrSnapshotDiscarded) {
		s.writeEngineError(w, err)
		return
	}
	s.writeSlip(w, http.StatusOK)
}

func (s *Server) estimateFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.engine.EstimateFee(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := feeResponse{Fee: fee}
	if tx := s.engine.Transaction(); tx != nil {
		resp.BatchID = tx.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// quoteHistory serves recorded quotes between the from and to query parameters, in
// Unix milliseconds. Both default to the last hour.
func (s *Server) quoteHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, err := queryMillis(r, "from", now.Add(-time.Hour))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	to, err := queryMillis(r, "to", now)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if from > to {
		writeBadRequest(w, fmt.Errorf("%w: from after to", ErrInvalidRange))
		return
	}

	quotes, err := s.engine.QuoteHistory(r.Context(), from, to)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	views := make([]quoteView, 0, len(quotes))
	for _, q := range quotes {
		views = append(views, newQuoteView(q))
	}
	writeJSON(w, http.StatusOK, views)
}

func queryMillis(r *http.Request, name string, def time.Time) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def.UnixMilli(), nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidRange, name, raw)
	}
	return ms, nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := s.engine.Submit(r.Context(), req.BatchID)
	if err != nil {
		if result != nil {
			// Rejected by the chain: report the node's result with the failure.
			writeJSON(w, http.StatusBadGateway, result)
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// refreshBestEffort fetches data for newly referenced assets; failures are logged only.
func (s *Server) refreshBestEffort(r *http.Request) {
	if err := s.engine.Refresh(r.Context()); err != nil && !errors.Is(err, engine.ErrSnapshotDiscarded) {
		s.logger.Warn("refresh after edit failed", "error", err, "request_id", RequestID(r.Context()))
	}
}

func (s *Server) writeSlip(w http.ResponseWriter, status int) {
	writeJSON(w, status, newSlipView(s.engine))
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slip.ErrItemNotFound):
		writeJSONError(w, http.StatusNotFound, err)
	case errors.Is(err, slip.ErrInvalidSlippage),
		errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrNegativeQuantity),
		errors.Is(err, engine.ErrNothingToSubmit):
		writeBadRequest(w, err)
	case errors.Is(err, engine.ErrStaleState),
		errors.Is(err, engine.ErrSubmitInProgress):
		writeJSONError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrNoSubmitter),
		errors.Is(err, engine.ErrNoQuoteHistory):
		writeJSONError(w, http.StatusNotImplemented, err)
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

func itemKey(w http.ResponseWriter, r *http.Request) (domain.ItemKey, bool) {
	dir, err := domain.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeBadRequest(w, err)
		return domain.ItemKey{}, false
	}
	asset, err := domain.ParseAssetID(chi.URLParam(r, "asset"))
	if err != nil {
		writeBadRequest(w, err)
		return domain.ItemKey{}, false
	}
	return domain.ItemKey{Direction: dir, Asset: asset}, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, fmt.Errorf("%w: %v", ErrInvalidBody, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
