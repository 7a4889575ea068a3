package httptransport

import (
	"encoding/json"
	"time"

	"assent/internal/compliance"
	"assent/internal/domain"
)

type emotionSignalDTO struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

type createConsentRequest struct {
	UserID              string             `json:"user_id"`
	DocumentType        string             `json:"document_type"`
	DocumentHash        string             `json:"document_hash,omitempty"`
	Emotions            []emotionSignalDTO `json:"emotions,omitempty"`
	VoiceSentiment      string             `json:"voice_sentiment,omitempty"`
	VoiceConfidence     float64            `json:"voice_confidence,omitempty"`
	FacialLandmarks     json.RawMessage    `json:"facial_landmarks,omitempty"`
	UserConsent         bool               `json:"user_consent"`
	ConsentTimestamp    time.Time          `json:"consent_timestamp"`
	ConsentDurationDays int                `json:"consent_duration_days,omitempty"`
	DataUsagePurpose    string             `json:"data_usage_purpose,omitempty"`
	DataRetentionPeriod string             `json:"data_retention_period,omitempty"`
	RightToWithdraw     bool               `json:"right_to_withdraw"`
	Jurisdiction        string             `json:"jurisdiction,omitempty"`
	EncryptedPayload    string             `json:"encrypted_payload,omitempty"`
	EncryptionKeyID     string             `json:"encryption_key_id,omitempty"`
	DigitalSignature    string             `json:"digital_signature,omitempty"`
	SignatureAlgorithm  string             `json:"signature_algorithm,omitempty"`
}

type updateConsentRequest struct {
	DocumentType        *string  `json:"document_type,omitempty"`
	DocumentHash        *string  `json:"document_hash,omitempty"`
	DetectedEmotion     *string  `json:"detected_emotion,omitempty"`
	EmotionConfidence   *float64 `json:"emotion_confidence,omitempty"`
	VoiceSentiment      *string  `json:"voice_sentiment,omitempty"`
	VoiceConfidence     *float64 `json:"voice_confidence,omitempty"`
	ConsentDurationDays *int     `json:"consent_duration_days,omitempty"`
	DataUsagePurpose    *string  `json:"data_usage_purpose,omitempty"`
	DataRetentionPeriod *string  `json:"data_retention_period,omitempty"`
	RightToWithdraw     *bool    `json:"right_to_withdraw,omitempty"`
	Jurisdiction        *string  `json:"jurisdiction,omitempty"`
	EncryptedPayload    *string  `json:"encrypted_payload,omitempty"`
	EncryptionKeyID     *string  `json:"encryption_key_id,omitempty"`
	DigitalSignature    *string  `json:"digital_signature,omitempty"`
	SignatureAlgorithm  *string  `json:"signature_algorithm,omitempty"`
	Reason              string   `json:"reason,omitempty"`
}

type transitionRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

type verifyRequest struct {
	Standard string `json:"standard,omitempty"`
}

type withdrawRequest struct {
	Reason string `json:"reason,omitempty"`
	Method string `json:"method,omitempty"`
}

type deletionRequest struct {
	Status string `json:"status"`
}

type registerUserRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
}

type consentRecordResponse struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	DocumentType        string          `json:"document_type"`
	DocumentHash        string          `json:"document_hash,omitempty"`
	DetectedEmotion     string          `json:"detected_emotion,omitempty"`
	EmotionConfidence   float64         `json:"emotion_confidence,omitempty"`
	VoiceSentiment      string          `json:"voice_sentiment,omitempty"`
	VoiceConfidence     float64         `json:"voice_confidence,omitempty"`
	FacialLandmarks     json.RawMessage `json:"facial_landmarks,omitempty"`
	UserConsent         bool            `json:"user_consent"`
	ConsentTimestamp    time.Time       `json:"consent_timestamp"`
	ConsentDurationDays int             `json:"consent_duration_days,omitempty"`
	DataUsagePurpose    string          `json:"data_usage_purpose,omitempty"`
	DataRetentionPeriod string          `json:"data_retention_period,omitempty"`
	RightToWithdraw     bool            `json:"right_to_withdraw"`
	Jurisdiction        string          `json:"jurisdiction"`
	ClientIP            string          `json:"client_ip,omitempty"`
	DeviceInfo          string          `json:"device_info,omitempty"`
	EncryptedPayload    string          `json:"encrypted_payload,omitempty"`
	EncryptionKeyID     string          `json:"encryption_key_id,omitempty"`
	DigitalSignature    string          `json:"digital_signature,omitempty"`
	SignatureAlgorithm  string          `json:"signature_algorithm,omitempty"`
	VerificationStatus  string          `json:"verification_status"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func toConsentResponse(r domain.ConsentRecord) consentRecordResponse {
	return consentRecordResponse{
		ID:                  r.ID.String(),
		UserID:              r.UserID.String(),
		DocumentType:        r.DocumentType,
		DocumentHash:        r.DocumentHash,
		DetectedEmotion:     r.DetectedEmotion,
		EmotionConfidence:   r.EmotionConfidence,
		VoiceSentiment:      r.VoiceSentiment,
		VoiceConfidence:     r.VoiceConfidence,
		FacialLandmarks:     r.FacialLandmarks,
		UserConsent:         r.UserConsent,
		ConsentTimestamp:    r.ConsentTimestamp,
		ConsentDurationDays: int(r.ConsentDuration / (24 * time.Hour)),
		DataUsagePurpose:    r.DataUsagePurpose,
		DataRetentionPeriod: r.DataRetentionPeriod,
		RightToWithdraw:     r.RightToWithdraw,
		Jurisdiction:        r.Jurisdiction,
		ClientIP:            r.Request.ClientIP,
		DeviceInfo:          r.Request.DeviceInfo,
		EncryptedPayload:    r.EncryptedPayload,
		EncryptionKeyID:     r.EncryptionKeyID.String(),
		DigitalSignature:    r.DigitalSignature,
		SignatureAlgorithm:  r.SignatureAlgorithm,
		VerificationStatus:  string(r.Status),
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type auditEntryResponse struct {
	ID            string            `json:"id"`
	RecordID      string            `json:"record_id"`
	Seq           int64             `json:"seq"`
	Action        string            `json:"action"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	OldValues     map[string]string `json:"old_values,omitempty"`
	NewValues     map[string]string `json:"new_values,omitempty"`
	Actor         string            `json:"actor"`
	Reason        string            `json:"reason,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

type auditPageResponse struct {
	Entries    []auditEntryResponse `json:"entries"`
	NextCursor int64                `json:"next_cursor,omitempty"`
}

func toAuditResponse(e domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:            e.ID.String(),
		RecordID:      e.RecordID.String(),
		Seq:           e.Seq,
		Action:        e.Action,
		ChangedFields: e.ChangedFields,
		OldValues:     e.OldValues,
		NewValues:     e.NewValues,
		Actor:         e.Actor,
		Reason:        e.Reason,
		Timestamp:     e.Timestamp,
	}
}

type verificationResponse struct {
	CheckID     string          `json:"check_id"`
	RecordID    string          `json:"record_id"`
	Standard    string          `json:"standard"`
	Verified    bool            `json:"verified"`
	Checks      map[string]bool `json:"checks"`
	Issues      []string        `json:"issues"`
	Remediation string          `json:"remediation,omitempty"`
	CheckedBy   string          `json:"checked_by"`
	CheckedAt   time.Time       `json:"checked_at"`
}

func toVerificationResponse(ev compliance.Evaluation) verificationResponse {
	issues := ev.Check.Issues
	if issues == nil {
		issues = []string{}
	}
	return verificationResponse{
		CheckID:     ev.Check.ID.String(),
		RecordID:    ev.Check.RecordID.String(),
		Standard:    ev.Check.Standard,
		Verified:    ev.Check.Result,
		Checks:      ev.Rules,
		Issues:      issues,
		Remediation: ev.Check.Remediation,
		CheckedBy:   ev.Check.CheckedBy,
		CheckedAt:   ev.Check.CheckedAt,
	}
}

type withdrawalResponse struct {
	ID                  string     `json:"id"`
	RecordID            string     `json:"record_id"`
	WithdrawnAt         time.Time  `json:"withdrawn_at"`
	Reason              string     `json:"reason,omitempty"`
	Method              string     `json:"method"`
	DeletionStatus      string     `json:"deletion_status"`
	DeletionCompletedAt *time.Time `json:"deletion_completed_at,omitempty"`
	VerifiedBy          string     `json:"verified_by"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toWithdrawalResponse(w domain.WithdrawalRecord) withdrawalResponse {
	return withdrawalResponse{
		ID:                  w.ID.String(),
		RecordID:            w.RecordID.String(),
		WithdrawnAt:         w.WithdrawnAt,
		Reason:              w.Reason,
		Method:              w.Method,
		DeletionStatus:      string(w.DeletionStatus),
		DeletionCompletedAt: w.DeletionCompletedAt,
		VerifiedBy:          w.VerifiedBy,
		CreatedAt:           w.CreatedAt,
	}
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Address     string    `json:"address,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type issueKeyRequest struct {
	KeyType   string `json:"key_type"`
	Algorithm string `json:"algorithm,omitempty"`
}

type rotateKeyRequest struct {
	KeyType string `json:"key_type"`
}

type keyResponse struct {
	ID        string     `json:"id"`
	KeyType   string     `json:"key_type"`
	Algorithm string     `json:"algorithm"`
	Version   int        `json:"version"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedBy string     `json:"created_by"`
}

// toKeyResponse deliberately omits HandleRef; handles never leave the
// process.
func toKeyResponse(k domain.EncryptionKey) keyResponse {
	return keyResponse{
		ID:        k.ID.String(),
		KeyType:   k.KeyType,
		Algorithm: k.Algorithm,
		Version:   k.Version,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		RotatedAt: k.RotatedAt,
		ExpiresAt: k.ExpiresAt,
		CreatedBy: k.CreatedBy,
	}
}
