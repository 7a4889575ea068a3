package ledger

import (
	"strconv"
	"time"

	"assent/internal/domain"
)

// fieldView renders one mutable field as a stable string for the audit log.
// The table is the single place that decides which fields are diffable and
// how they serialize, so every mutation produces diffs in the same format.
type fieldView struct {
	name string
	get  func(r *domain.ConsentRecord) string
}

var mutableFields = []fieldView{
	{"document_type", func(r *domain.ConsentRecord) string { return r.DocumentType }},
	{"document_hash", func(r *domain.ConsentRecord) string { return r.DocumentHash }},
	{"detected_emotion", func(r *domain.ConsentRecord) string { return r.DetectedEmotion }},
	{"emotion_confidence", func(r *domain.ConsentRecord) string { return formatConfidence(r.EmotionConfidence) }},
	{"voice_sentiment", func(r *domain.ConsentRecord) string { return r.VoiceSentiment }},
	{"voice_confidence", func(r *domain.ConsentRecord) string { return formatConfidence(r.VoiceConfidence) }},
	{"consent_duration_seconds", func(r *domain.ConsentRecord) string {
		return strconv.FormatInt(int64(r.ConsentDuration/time.Second), 10)
	}},
	{"data_usage_purpose", func(r *domain.ConsentRecord) string { return r.DataUsagePurpose }},
	{"data_retention_period", func(r *domain.ConsentRecord) string { return r.DataRetentionPeriod }},
	{"right_to_withdraw", func(r *domain.ConsentRecord) string { return strconv.FormatBool(r.RightToWithdraw) }},
	{"jurisdiction", func(r *domain.ConsentRecord) string { return r.Jurisdiction }},
	{"encrypted_payload", func(r *domain.ConsentRecord) string { return r.EncryptedPayload }},
	{"encryption_key_id", func(r *domain.ConsentRecord) string { return string(r.EncryptionKeyID) }},
	{"digital_signature", func(r *domain.ConsentRecord) string { return r.DigitalSignature }},
	{"signature_algorithm", func(r *domain.ConsentRecord) string { return r.SignatureAlgorithm }},
	{"verification_status", func(r *domain.ConsentRecord) string { return string(r.Status) }},
}

// diffRecords computes the per-field structural diff between two versions of
// a record, once per mutation.
func diffRecords(before, after *domain.ConsentRecord) (changed []string, oldValues, newValues map[string]string) {
	oldValues = make(map[string]string)
	newValues = make(map[string]string)
	for _, field := range mutableFields {
		oldVal, newVal := field.get(before), field.get(after)
		if oldVal == newVal {
			continue
		}
		changed = append(changed, field.name)
		oldValues[field.name] = oldVal
		newValues[field.name] = newVal
	}
	return changed, oldValues, newValues
}

// snapshotFields renders the full mutable-field view of a record, used as
// the NewValues of the "created" audit entry.
func snapshotFields(record *domain.ConsentRecord) map[string]string {
	values := make(map[string]string, len(mutableFields))
	for _, field := range mutableFields {
		values[field.name] = field.get(record)
	}
	return values
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
