package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/delivery"
	"custodia/internal/platform/middleware"
	"custodia/internal/profile"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type recordDeliveryRequest struct {
	delivery.Draft
	// AcknowledgeDuplicate must be set on the retry after a duplicate
	// warning; the first matching submission is never written.
	AcknowledgeDuplicate bool `json:"acknowledge_duplicate"`
}

func (h *Handler) handleRecordDelivery(w http.ResponseWriter, r *http.Request) {
	var req recordDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.coord.PerformDelivery(r.Context(), middleware.GetActorID(r.Context()), req.Draft, req.AcknowledgeDuplicate)
	if err != nil {
		h.logWarn(r, "record delivery failed", err)
		writeError(w, err)
		return
	}
	if result.DuplicateWarning && result.Delivery == nil {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDeliveryID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var patch delivery.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.coord.EditDelivery(r.Context(), middleware.GetActorID(r.Context()), id, patch)
	if err != nil {
		h.logWarn(r, "update delivery failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.coord.GetVisibleDeliveries(r.Context(), middleware.GetActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.coord.DeleteRecord(r.Context(), middleware.GetActorID(r.Context()), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.logWarn(r, "delete record failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTeamRollup(w http.ResponseWriter, r *http.Request) {
	rollup, err := h.coord.GetTeamRollup(r.Context(), middleware.GetActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	target, err := domain.ParseActorID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var patch profile.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.coord.UpdateProfile(r.Context(), middleware.GetActorID(r.Context()), target, patch)
	if err != nil {
		h.logWarn(r, "update profile failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	h.coord.TerminateSession(r.Context(), middleware.GetActorID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
