package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"assent/internal/domain"
	"assent/internal/user"
	pkgerrors "assent/pkg/domain-errors"
)

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.Register(r.Context(), user.RegisterInput{
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	})
	if err != nil {
		h.logWarn(r, "register user failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// handleDeactivateUser soft-deletes; consent records and audit history stay.
func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.Deactivate(r.Context(), id)
	if err != nil {
		h.logWarn(r, "deactivate user failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func userIDParam(r *http.Request) (domain.UserID, error) {
	id, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		return domain.UserID{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	return id, nil
}
