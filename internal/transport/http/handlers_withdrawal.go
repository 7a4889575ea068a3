package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"assent/internal/domain"
	"assent/internal/platform/middleware"
	pkgerrors "assent/pkg/domain-errors"
)

func (h *Handler) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := h.withdrawals.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(record))
}

// handleDeletionStatus is the purge-job callback advancing the deletion
// tracker one step forward.
func (h *Handler) handleDeletionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := withdrawalIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req deletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.withdrawals.MarkDeletionStatus(ctx, id, domain.DeletionStatus(req.Status), middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "deletion status update failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(record))
}

func withdrawalIDParam(r *http.Request) (domain.WithdrawalID, error) {
	id, err := domain.ParseWithdrawalID(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		return domain.WithdrawalID{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid withdrawal id")
	}
	return id, nil
}
