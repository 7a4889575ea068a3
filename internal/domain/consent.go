package domain

import (
	"encoding/json"
	"time"
)

// VerificationStatus drives the consent record state machine.
type VerificationStatus string

const (
	StatusPending   VerificationStatus = "pending"
	StatusVerified  VerificationStatus = "verified"
	StatusRejected  VerificationStatus = "rejected"
	StatusWithdrawn VerificationStatus = "withdrawn"
)

// Terminal reports whether no transition leaves the status.
func (s VerificationStatus) Terminal() bool {
	return s == StatusRejected || s == StatusWithdrawn
}

// EmotionSignal is one emotion observation produced by the external
// detection service during capture. A capture may carry several.
type EmotionSignal struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// RequestMeta records where a capture came from. Populated by the transport
// layer from the incoming request.
type RequestMeta struct {
	ClientIP   string `json:"client_ip,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// ConsentRecord is the durable representation of one user's consent decision
// for one document event. ConsentTimestamp is immutable once set; mutations
// go through the ledger only, and each one produces exactly one audit entry.
type ConsentRecord struct {
	ID                  RecordID
	UserID              UserID
	DocumentType        string
	DocumentHash        string
	DetectedEmotion     string
	EmotionConfidence   float64
	VoiceSentiment      string
	VoiceConfidence     float64
	FacialLandmarks     json.RawMessage
	UserConsent         bool
	ConsentTimestamp    time.Time
	ConsentDuration     time.Duration
	DataUsagePurpose    string
	DataRetentionPeriod string
	RightToWithdraw     bool
	Jurisdiction        string
	Request             RequestMeta
	EncryptedPayload    string
	EncryptionKeyID     KeyID
	DigitalSignature    string
	SignatureAlgorithm  string
	Status              VerificationStatus

	// Version guards against lost updates: conditional saves carry the
	// version they read, and the store rejects stale writers.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
