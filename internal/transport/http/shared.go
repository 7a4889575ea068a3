// Package httptransport is the thin HTTP layer. Handlers decode, delegate
// to domain services, and encode; business rules live below.
package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "assent/pkg/domain-errors"
)

// errorEnvelope is the JSON error shape on every non-2xx response.
type errorEnvelope struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	EntityID string `json:"entity_id,omitempty"`
}

var statusByCode = map[pkgerrors.Code]int{
	pkgerrors.CodeValidation:             http.StatusBadRequest,
	pkgerrors.CodeNotFound:               http.StatusNotFound,
	pkgerrors.CodeKeyNotFound:            http.StatusNotFound,
	pkgerrors.CodeIllegalTransition:      http.StatusConflict,
	pkgerrors.CodeRecordImmutable:        http.StatusConflict,
	pkgerrors.CodeAlreadyWithdrawn:       http.StatusConflict,
	pkgerrors.CodeConflict:               http.StatusConflict,
	pkgerrors.CodeConcurrentModification: http.StatusConflict,
	pkgerrors.CodeWithdrawalNotAllowed:   http.StatusForbidden,
	pkgerrors.CodeComplianceEvaluation:   http.StatusUnprocessableEntity,
	pkgerrors.CodeUnavailable:            http.StatusServiceUnavailable,
	pkgerrors.CodeInternal:               http.StatusInternalServerError,
}

// writeError translates coded domain errors onto HTTP statuses with a
// consistent JSON envelope. Uncoded errors become opaque 500s.
func writeError(w http.ResponseWriter, err error) {
	envelope := errorEnvelope{
		Error:   string(pkgerrors.CodeInternal),
		Message: "internal error",
	}
	status := http.StatusInternalServerError

	var domainErr *pkgerrors.Error
	if errors.As(err, &domainErr) {
		envelope.Error = string(domainErr.Code)
		envelope.Message = domainErr.Message
		envelope.EntityID = domainErr.EntityID
		if s, ok := statusByCode[domainErr.Code]; ok {
			status = s
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON rejects malformed bodies and unknown fields up front.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeValidation, "invalid request body")
	}
	return nil
}
