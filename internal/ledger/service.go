// Package ledger is the single source of truth for consent records and the
// only component permitted to change verification status. Every mutation
// runs in one unit of work together with its audit entry.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"assent/internal/audit"
	"assent/internal/domain"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// DefaultJurisdiction applies when a capture names none.
const DefaultJurisdiction = "India"

// DefaultSignatureAlgorithm applies when a signature arrives without one.
const DefaultSignatureAlgorithm = "SHA-256"

type Service struct {
	tx       storage.Tx
	stores   storage.Stores
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(tx storage.Tx, stores storage.Stores, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		tx:       tx,
		stores:   stores,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("assent/ledger"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is the capture ingestion payload. Emotion observations arrive
// as a list; the ledger resolves the authoritative one.
type CreateInput struct {
	UserID              domain.UserID
	DocumentType        string
	DocumentHash        string
	Emotions            []domain.EmotionSignal
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
	Request             domain.RequestMeta
	EncryptedPayload    string
	EncryptionKeyID     domain.KeyID
	DigitalSignature    string
	SignatureAlgorithm  string
	Actor               string
}

// DominantEmotion resolves multiple emotion observations from one capture:
// the highest-confidence signal is authoritative; among equals the earliest
// observation wins.
func DominantEmotion(signals []domain.EmotionSignal) domain.EmotionSignal {
	var dominant domain.EmotionSignal
	for _, signal := range signals {
		if signal.Confidence > dominant.Confidence || dominant.Emotion == "" {
			dominant = signal
		}
	}
	return dominant
}

// Create validates the capture payload, persists the record in state
// pending, and appends the "created" audit entry in the same unit of work.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.ConsentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Create")
	defer span.End()

	if err := s.validateCreate(ctx, in); err != nil {
		return domain.ConsentRecord{}, err
	}

	dominant := DominantEmotion(in.Emotions)
	now := s.now()
	signatureAlgorithm := in.SignatureAlgorithm
	if in.DigitalSignature != "" && signatureAlgorithm == "" {
		signatureAlgorithm = DefaultSignatureAlgorithm
	}

	record := domain.ConsentRecord{
		ID:                  domain.NewRecordID(),
		UserID:              in.UserID,
		DocumentType:        in.DocumentType,
		DocumentHash:        in.DocumentHash,
		DetectedEmotion:     dominant.Emotion,
		EmotionConfidence:   dominant.Confidence,
		VoiceSentiment:      in.VoiceSentiment,
		VoiceConfidence:     in.VoiceConfidence,
		FacialLandmarks:     in.FacialLandmarks,
		UserConsent:         in.UserConsent,
		ConsentTimestamp:    in.ConsentTimestamp,
		ConsentDuration:     in.ConsentDuration,
		DataUsagePurpose:    in.DataUsagePurpose,
		DataRetentionPeriod: in.DataRetentionPeriod,
		RightToWithdraw:     in.RightToWithdraw,
		Jurisdiction:        in.Jurisdiction,
		Request:             in.Request,
		EncryptedPayload:    in.EncryptedPayload,
		EncryptionKeyID:     in.EncryptionKeyID,
		DigitalSignature:    in.DigitalSignature,
		SignatureAlgorithm:  signatureAlgorithm,
		Status:              domain.StatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	var created domain.AuditEntry
	ctx = storage.WithMutationKey(ctx, record.ID.String())
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if err := st.Consents.Insert(ctx, record); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist consent record")
		}
		var err error
		created, err = s.recorder.Append(ctx, st.Audit, domain.AuditEntry{
			RecordID:  record.ID,
			Action:    domain.AuditActionCreated,
			NewValues: snapshotFields(&record),
			Actor:     in.Actor,
			Timestamp: now,
		})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "append created audit entry")
		}
		return nil
	})
	if err != nil {
		return domain.ConsentRecord{}, err
	}

	s.recorder.Publish(created)
	if s.metrics != nil {
		s.metrics.RecordsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "consent record created",
		"record_id", record.ID.String(),
		"user_id", record.UserID.String(),
		"jurisdiction", record.Jurisdiction,
	)
	return record, nil
}

func (s *Service) validateCreate(ctx context.Context, in CreateInput) error {
	switch {
	case in.UserID.IsNil():
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case in.DocumentType == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "document type is required")
	case in.ConsentTimestamp.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "consent timestamp is required")
	case in.Jurisdiction == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "jurisdiction is required")
	}
	for _, signal := range in.Emotions {
		if signal.Confidence < 0 || signal.Confidence > 1 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "emotion confidence %v out of range [0,1]", signal.Confidence)
		}
	}
	if in.VoiceConfidence < 0 || in.VoiceConfidence > 1 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "voice confidence %v out of range [0,1]", in.VoiceConfidence)
	}
	if in.EncryptedPayload != "" && in.EncryptionKeyID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "encrypted payload requires an encryption key id")
	}
	if in.EncryptionKeyID != "" {
		if _, err := s.stores.Keys.Get(ctx, in.EncryptionKeyID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeKeyNotFound, "encryption key does not exist").WithEntity(in.EncryptionKeyID.String())
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "look up encryption key")
		}
	}

	user, err := s.stores.Users.Get(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user does not exist").WithEntity(in.UserID.String())
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "look up user")
	}
	if !user.Active {
		return pkgerrors.New(pkgerrors.CodeValidation, "user is deactivated").WithEntity(in.UserID.String())
	}
	return nil
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id domain.RecordID) (domain.ConsentRecord, error) {
	record, err := s.stores.Consents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.ConsentRecord{}, pkgerrors.New(pkgerrors.CodeNotFound, "consent record not found").WithEntity(id.String())
		}
		return domain.ConsentRecord{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read consent record")
	}
	return record, nil
}

// ListByUser returns the user's records, oldest first. A user with no
// records gets an empty list, not an error.
func (s *Service) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.ConsentRecord, error) {
	records, err := s.stores.Consents.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "list consent records")
	}
	return records, nil
}

// CountByStatus reports how many records sit in each verification status.
func (s *Service) CountByStatus(ctx context.Context) (map[domain.VerificationStatus]int, error) {
	counts, err := s.stores.Consents.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "count consent records")
	}
	return counts, nil
}

// Transition moves a record along a legal state machine edge. Callers reach
// withdrawn through the withdrawal processor, not through this method.
func (s *Service) Transition(ctx context.Context, id domain.RecordID, target domain.VerificationStatus, actor, reason string) (domain.ConsentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Transition")
	defer span.End()

	record, err := s.Get(ctx, id)
	if err != nil {
		return domain.ConsentRecord{}, err
	}

	var (
		updated domain.ConsentRecord
		entry   domain.AuditEntry
	)
	ctx = storage.WithMutationKey(ctx, id.String())
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		updated, entry, err = ApplyTransition(ctx, st, s.recorder, record, target, actor, reason, s.now())
		return err
	})
	if err != nil {
		return domain.ConsentRecord{}, err
	}

	s.recorder.Publish(entry)
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(target)).Inc()
	}
	s.logger.InfoContext(ctx, "consent record transitioned",
		"record_id", id.String(),
		"from", string(record.Status),
		"to", string(target),
		"actor", actor,
	)
	return updated, nil
}

// ApplyTransition validates the edge, saves the record under its version
// guard, and appends the status_changed audit entry through the given
// tx-scoped stores. The withdrawal processor shares this path so the
// withdrawn edge carries the same audit shape as every other transition.
func ApplyTransition(ctx context.Context, st storage.Stores, recorder *audit.Recorder, record domain.ConsentRecord, target domain.VerificationStatus, actor, reason string, at time.Time) (domain.ConsentRecord, domain.AuditEntry, error) {
	if !KnownStatus(target) {
		return domain.ConsentRecord{}, domain.AuditEntry{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown verification status %q", target)
	}
	if !CanTransition(record.Status, target) {
		return domain.ConsentRecord{}, domain.AuditEntry{}, pkgerrors.Newf(pkgerrors.CodeIllegalTransition,
			"cannot transition from %s to %s", record.Status, target).WithEntity(record.ID.String())
	}

	before := record
	record.Status = target
	record.UpdatedAt = at

	if err := st.Consents.SaveVersioned(ctx, record, before.Version); err != nil {
		return domain.ConsentRecord{}, domain.AuditEntry{}, translateSaveErr(err, record.ID)
	}
	record.Version = before.Version + 1

	changed, oldValues, newValues := diffRecords(&before, &record)
	entry, err := recorder.Append(ctx, st.Audit, domain.AuditEntry{
		RecordID:      record.ID,
		Action:        domain.AuditActionStatusChanged,
		ChangedFields: changed,
		OldValues:     oldValues,
		NewValues:     newValues,
		Actor:         actor,
		Reason:        reason,
		Timestamp:     at,
	})
	if err != nil {
		return domain.ConsentRecord{}, domain.AuditEntry{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "append status_changed audit entry")
	}
	return record, entry, nil
}

// UpdateInput carries the fields callers may change while a record is
// pending. Nil means leave unchanged. Consent flag and consent timestamp
// are immutable once set and deliberately absent.
type UpdateInput struct {
	DocumentType        *string
	DocumentHash        *string
	DetectedEmotion     *string
	EmotionConfidence   *float64
	VoiceSentiment      *string
	VoiceConfidence     *float64
	ConsentDuration     *time.Duration
	DataUsagePurpose    *string
	DataRetentionPeriod *string
	RightToWithdraw     *bool
	Jurisdiction        *string
	EncryptedPayload    *string
	EncryptionKeyID     *domain.KeyID
	DigitalSignature    *string
	SignatureAlgorithm  *string
}

// Update mutates a pending record. Each successful update appends one audit
// entry carrying the per-field diff; a no-op update appends nothing.
func (s *Service) Update(ctx context.Context, id domain.RecordID, in UpdateInput, actor, reason string) (domain.ConsentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Update")
	defer span.End()

	record, err := s.Get(ctx, id)
	if err != nil {
		return domain.ConsentRecord{}, err
	}
	if record.Status != domain.StatusPending {
		return domain.ConsentRecord{}, pkgerrors.Newf(pkgerrors.CodeRecordImmutable,
			"record in state %s cannot be updated", record.Status).WithEntity(id.String())
	}
	if err := s.validateUpdate(ctx, in); err != nil {
		return domain.ConsentRecord{}, err
	}

	before := record
	applyUpdate(&record, in)
	changed, oldValues, newValues := diffRecords(&before, &record)
	if len(changed) == 0 {
		return record, nil
	}
	record.UpdatedAt = s.now()

	var entry domain.AuditEntry
	ctx = storage.WithMutationKey(ctx, id.String())
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if err := st.Consents.SaveVersioned(ctx, record, before.Version); err != nil {
			return translateSaveErr(err, id)
		}
		entry, err = s.recorder.Append(ctx, st.Audit, domain.AuditEntry{
			RecordID:      id,
			Action:        domain.AuditActionUpdated,
			ChangedFields: changed,
			OldValues:     oldValues,
			NewValues:     newValues,
			Actor:         actor,
			Reason:        reason,
			Timestamp:     record.UpdatedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "append updated audit entry")
		}
		return nil
	})
	if err != nil {
		return domain.ConsentRecord{}, err
	}
	record.Version = before.Version + 1

	s.recorder.Publish(entry)
	return record, nil
}

func (s *Service) validateUpdate(ctx context.Context, in UpdateInput) error {
	if in.EmotionConfidence != nil && (*in.EmotionConfidence < 0 || *in.EmotionConfidence > 1) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "emotion confidence %v out of range [0,1]", *in.EmotionConfidence)
	}
	if in.VoiceConfidence != nil && (*in.VoiceConfidence < 0 || *in.VoiceConfidence > 1) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "voice confidence %v out of range [0,1]", *in.VoiceConfidence)
	}
	if in.DocumentType != nil && *in.DocumentType == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "document type must not be empty")
	}
	if in.Jurisdiction != nil && *in.Jurisdiction == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "jurisdiction must not be empty")
	}
	if in.EncryptionKeyID != nil && *in.EncryptionKeyID != "" {
		if _, err := s.stores.Keys.Get(ctx, *in.EncryptionKeyID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeKeyNotFound, "encryption key does not exist").WithEntity(in.EncryptionKeyID.String())
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "look up encryption key")
		}
	}
	return nil
}

func applyUpdate(record *domain.ConsentRecord, in UpdateInput) {
	if in.DocumentType != nil {
		record.DocumentType = *in.DocumentType
	}
	if in.DocumentHash != nil {
		record.DocumentHash = *in.DocumentHash
	}
	if in.DetectedEmotion != nil {
		record.DetectedEmotion = *in.DetectedEmotion
	}
	if in.EmotionConfidence != nil {
		record.EmotionConfidence = *in.EmotionConfidence
	}
	if in.VoiceSentiment != nil {
		record.VoiceSentiment = *in.VoiceSentiment
	}
	if in.VoiceConfidence != nil {
		record.VoiceConfidence = *in.VoiceConfidence
	}
	if in.ConsentDuration != nil {
		record.ConsentDuration = *in.ConsentDuration
	}
	if in.DataUsagePurpose != nil {
		record.DataUsagePurpose = *in.DataUsagePurpose
	}
	if in.DataRetentionPeriod != nil {
		record.DataRetentionPeriod = *in.DataRetentionPeriod
	}
	if in.RightToWithdraw != nil {
		record.RightToWithdraw = *in.RightToWithdraw
	}
	if in.Jurisdiction != nil {
		record.Jurisdiction = *in.Jurisdiction
	}
	if in.EncryptedPayload != nil {
		record.EncryptedPayload = *in.EncryptedPayload
	}
	if in.EncryptionKeyID != nil {
		record.EncryptionKeyID = *in.EncryptionKeyID
	}
	if in.DigitalSignature != nil {
		record.DigitalSignature = *in.DigitalSignature
	}
	if in.SignatureAlgorithm != nil {
		record.SignatureAlgorithm = *in.SignatureAlgorithm
	}
}

func translateSaveErr(err error, id domain.RecordID) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return pkgerrors.New(pkgerrors.CodeConcurrentModification,
			"record was modified concurrently").WithEntity(id.String())
	case errors.Is(err, sentinel.ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "consent record not found").WithEntity(id.String())
	default:
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "save consent record")
	}
}
