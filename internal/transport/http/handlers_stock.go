package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/coordinator"
	"custodia/internal/platform/middleware"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type receiveStockRequest struct {
	Quantity    int       `json:"quantity"`
	Date        time.Time `json:"date"`
	SourceLabel string    `json:"source_label"`
}

type transferStockRequest struct {
	DestinationID domain.CustodianID `json:"destination_custodian_id"`
	Quantity      int                `json:"quantity"`
	Date          time.Time          `json:"date"`
	SourceKind    string             `json:"source_kind"`
	SourceLabel   string             `json:"source_label"`
}

type retrieveStockRequest struct {
	FromCustodianID domain.CustodianID `json:"from_custodian_id"`
	Quantity        int                `json:"quantity"`
	Date            time.Time          `json:"date"`
	Reason          string             `json:"reason"`
}

type createCustodianRequest struct {
	Name string `json:"name"`
}

// orNow lets callers omit the movement date; the server clock is the
// default, matching how field agents actually record same-day activity.
func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (h *Handler) handleReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req receiveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.coord.ReceiveStock(r.Context(), middleware.GetActorID(r.Context()), req.Quantity, orNow(req.Date), req.SourceLabel)
	if err != nil {
		h.logWarn(r, "receive stock failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleTransferStock(w http.ResponseWriter, r *http.Request) {
	var req transferStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	kind, err := coordinator.ParseSourceKind(req.SourceKind)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.coord.PerformTransfer(r.Context(), middleware.GetActorID(r.Context()),
		req.DestinationID, req.Quantity, orNow(req.Date), kind, req.SourceLabel)
	if err != nil {
		h.logWarn(r, "transfer stock failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRetrieveStock(w http.ResponseWriter, r *http.Request) {
	var req retrieveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.coord.RetrieveStock(r.Context(), middleware.GetActorID(r.Context()),
		req.FromCustodianID, req.Quantity, orNow(req.Date), req.Reason)
	if err != nil {
		h.logWarn(r, "retrieve stock failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	txs, err := h.coord.GetVisibleStock(r.Context(), middleware.GetActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	custodianID, err := domain.ParseCustodianID(chi.URLParam(r, "custodianID"))
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := h.coord.BalanceOf(r.Context(), custodianID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"custodian_id": custodianID,
		"balance":      balance,
	})
}

func (h *Handler) handleListCustodians(w http.ResponseWriter, r *http.Request) {
	custodians, err := h.coord.ListCustodians(r.Context(), middleware.GetActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"custodians": custodians})
}

func (h *Handler) handleCreateCustodian(w http.ResponseWriter, r *http.Request) {
	var req createCustodianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	custodian, err := h.coord.CreateFixedLocation(r.Context(), middleware.GetActorID(r.Context()), req.Name)
	if err != nil {
		h.logWarn(r, "create custodian failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, custodian)
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
