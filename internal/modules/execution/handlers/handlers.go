// Package handlers provides HTTP handlers for trade execution.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/execution"
)

// IdempotencyKeyHeader carries the caller-durable retry token
const IdempotencyKeyHeader = "Idempotency-Key"

// Handler handles trade execution HTTP requests
type Handler struct {
	pipeline *execution.Pipeline
	wallets  domain.WalletDirectory
	log      zerolog.Logger
}

// NewHandler creates a new execution handler. wallets may be nil, in which
// case a missing chain_id stays zero and the pipeline's payload defaults
// apply.
func NewHandler(pipeline *execution.Pipeline, wallets domain.WalletDirectory, log zerolog.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		wallets:  wallets,
		log:      log.With().Str("handler", "execution").Logger(),
	}
}

type executeRequest struct {
	Symbol   string            `json:"symbol"`
	Side     string            `json:"side"`
	Amount   float64           `json:"amount"`
	Price    float64           `json:"price"`
	UserID   int64             `json:"user_id"`
	BotID    string            `json:"bot_id,omitempty"`
	Mode     string            `json:"mode,omitempty"`
	WalletID string            `json:"wallet_id"`
	ChainID  int64             `json:"chain_id"`
	DryRun   bool              `json:"dry_run"`
	TxData   *domain.TxPayload `json:"tx_data,omitempty"`
}

// HandleExecute handles POST /api/execute
// The Idempotency-Key header makes retries safe; omitting it generates a
// single-use key.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WalletID == "" {
		http.Error(w, "wallet_id is required", http.StatusBadRequest)
		return
	}

	mode := domain.Mode(req.Mode)
	if mode == "" {
		mode = domain.ModePaper
	}

	signal := domain.TradeSignal{
		Symbol: req.Symbol,
		Side:   domain.Side(req.Side),
		Amount: req.Amount,
		Price:  req.Price,
		BotID:  req.BotID,
		UserID: req.UserID,
		Mode:   mode,
		TxData: req.TxData,
	}

	chainID := req.ChainID
	if chainID == 0 && h.wallets != nil {
		meta, err := h.wallets.ChainMetadata(r.Context(), req.UserID, req.WalletID)
		if err != nil {
			h.log.Warn().Err(err).Str("wallet_id", req.WalletID).Msg("Wallet metadata lookup failed, keeping zero chain id")
		} else {
			chainID = meta.ChainID
		}
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	result, err := h.pipeline.ExecuteTradeSignal(r.Context(), signal, req.UserID, req.WalletID, chainID, req.DryRun, key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeError maps the error taxonomy onto HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "trade rejected",
			"reasons": validationErr.Reasons,
		})
		return
	}

	if errors.Is(err, execution.ErrDuplicateInFlight) {
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "an execution with this idempotency key is still in progress",
		})
		return
	}

	var submissionErr *domain.SubmissionError
	if errors.As(err, &submissionErr) {
		h.log.Error().Err(err).Str("idempotency_key", submissionErr.Key).Msg("Broadcast failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     "broadcast failed",
			"retryable": submissionErr.Retryable,
		})
		return
	}

	var custodyErr *domain.CustodyError
	if errors.As(err, &custodyErr) {
		h.log.Error().Err(err).Msg("Custody operation failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "custody operation failed",
		})
		return
	}

	h.log.Error().Err(err).Msg("Trade execution failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
