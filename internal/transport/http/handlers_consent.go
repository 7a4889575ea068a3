package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"assent/internal/compliance"
	"assent/internal/domain"
	"assent/internal/ledger"
	"assent/internal/platform/middleware"
	pkgerrors "assent/pkg/domain-errors"
)

func (h *Handler) handleCreateConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
		return
	}
	if req.Jurisdiction == "" {
		req.Jurisdiction = ledger.DefaultJurisdiction
	}

	emotions := make([]domain.EmotionSignal, 0, len(req.Emotions))
	for _, e := range req.Emotions {
		emotions = append(emotions, domain.EmotionSignal{Emotion: e.Emotion, Confidence: e.Confidence})
	}

	record, err := h.ledger.Create(ctx, ledger.CreateInput{
		UserID:              userID,
		DocumentType:        req.DocumentType,
		DocumentHash:        req.DocumentHash,
		Emotions:            emotions,
		VoiceSentiment:      req.VoiceSentiment,
		VoiceConfidence:     req.VoiceConfidence,
		FacialLandmarks:     req.FacialLandmarks,
		UserConsent:         req.UserConsent,
		ConsentTimestamp:    req.ConsentTimestamp,
		ConsentDuration:     time.Duration(req.ConsentDurationDays) * 24 * time.Hour,
		DataUsagePurpose:    req.DataUsagePurpose,
		DataRetentionPeriod: req.DataRetentionPeriod,
		RightToWithdraw:     req.RightToWithdraw,
		Jurisdiction:        req.Jurisdiction,
		Request:             middleware.GetRequestMeta(ctx),
		EncryptedPayload:    req.EncryptedPayload,
		EncryptionKeyID:     domain.KeyID(req.EncryptionKeyID),
		DigitalSignature:    req.DigitalSignature,
		SignatureAlgorithm:  req.SignatureAlgorithm,
		Actor:               middleware.GetActor(ctx),
	})
	if err != nil {
		h.logWarn(r, "create consent failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(record))
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsentResponse(record))
}

func (h *Handler) handleListUserConsents(w http.ResponseWriter, r *http.Request) {
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
		return
	}
	records, err := h.ledger.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]consentRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toConsentResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": out})
}

func (h *Handler) handleUpdateConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := ledger.UpdateInput{
		DocumentType:        req.DocumentType,
		DocumentHash:        req.DocumentHash,
		DetectedEmotion:     req.DetectedEmotion,
		EmotionConfidence:   req.EmotionConfidence,
		VoiceSentiment:      req.VoiceSentiment,
		VoiceConfidence:     req.VoiceConfidence,
		DataUsagePurpose:    req.DataUsagePurpose,
		DataRetentionPeriod: req.DataRetentionPeriod,
		RightToWithdraw:     req.RightToWithdraw,
		Jurisdiction:        req.Jurisdiction,
		EncryptedPayload:    req.EncryptedPayload,
		DigitalSignature:    req.DigitalSignature,
		SignatureAlgorithm:  req.SignatureAlgorithm,
	}
	if req.ConsentDurationDays != nil {
		d := time.Duration(*req.ConsentDurationDays) * 24 * time.Hour
		in.ConsentDuration = &d
	}
	if req.EncryptionKeyID != nil {
		keyID := domain.KeyID(*req.EncryptionKeyID)
		in.EncryptionKeyID = &keyID
	}

	record, err := h.ledger.Update(ctx, id, in, middleware.GetActor(ctx), req.Reason)
	if err != nil {
		h.logWarn(r, "update consent failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsentResponse(record))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.ledger.Transition(ctx, id, domain.VerificationStatus(req.Target), middleware.GetActor(ctx), req.Reason)
	if err != nil {
		h.logWarn(r, "transition failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsentResponse(record))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req := verifyRequest{Standard: compliance.StandardDPDPA}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	evaluation, err := h.engine.Evaluate(ctx, id, req.Standard, middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "compliance evaluation failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerificationResponse(evaluation))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req withdrawRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	record, err := h.withdrawals.Withdraw(ctx, id, req.Reason, req.Method, middleware.GetActor(ctx))
	if err != nil {
		h.logWarn(r, "withdrawal failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalResponse(record))
}

// handleAuditExport streams a record's history in resumable pages. The
// cursor is the last sequence number the caller has seen.
func (h *Handler) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	id, err := recordIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// verify the record exists so an empty page is distinguishable from a
	// missing record
	if _, err := h.ledger.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	afterSeq, err := queryInt64(r, "after_seq", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt64(r, "limit", 100)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit < 1 || limit > 1000 {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be between 1 and 1000"))
		return
	}

	entries, err := h.recorder.Page(r.Context(), id, afterSeq, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	page := auditPageResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		page.Entries = append(page.Entries, toAuditResponse(e))
	}
	if len(entries) == int(limit) {
		page.NextCursor = entries[len(entries)-1].Seq
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleConsentStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.ledger.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"by_status": out})
}

func recordIDParam(r *http.Request) (domain.RecordID, error) {
	id, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		return domain.RecordID{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid consent record id")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid %s", name)
	}
	return v, nil
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
