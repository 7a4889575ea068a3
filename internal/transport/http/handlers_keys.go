package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"assent/internal/domain"
	"assent/internal/platform/middleware"
)

func (h *Handler) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req issueKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := h.keys.Issue(ctx, req.KeyType, req.Algorithm, middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "issue key failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toKeyResponse(key))
}

func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req rotateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := h.keys.Rotate(ctx, req.KeyType, middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "rotate key failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}

func (h *Handler) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Resolve(r.Context(), domain.KeyID(chi.URLParam(r, "keyID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}

func (h *Handler) handleExpireKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := h.keys.Expire(ctx, domain.KeyID(chi.URLParam(r, "keyID")), middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "expire key failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(key))
}
