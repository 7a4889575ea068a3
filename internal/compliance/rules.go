package compliance

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"assent/internal/domain"
)

// Standard names accepted by the verify endpoint.
const (
	StandardDPDPA = "DPDPA 2023"
	StandardGDPR  = "GDPR"
)

// signatureAlgorithms is the whitelist shared by all standards.
var signatureAlgorithms = map[string]bool{
	"SHA-256":    true,
	"SHA-384":    true,
	"SHA-512":    true,
	"RSA-SHA256": true,
	"ECDSA-P256": true,
	"Ed25519":    true,
}

// DPDPA2023 is the rule set for India's Digital Personal Data Protection
// Act, 2023. Encryption is required only when an encrypted payload is
// claimed, in which case the key must resolve.
func DPDPA2023() RuleSet {
	return RuleSet{
		Standard: StandardDPDPA,
		Rules: []Rule{
			requiredFields(),
			affirmativeConsent(),
			retentionPlausible(),
			signatureWhitelisted(),
			rightToWithdrawGranted(),
			decryptable(false),
		},
	}
}

// GDPR is the rule set for the EU regulation. It additionally mandates an
// encrypted payload for stored biometric consent evidence.
func GDPR() RuleSet {
	return RuleSet{
		Standard: StandardGDPR,
		Rules: []Rule{
			requiredFields(),
			affirmativeConsent(),
			retentionPlausible(),
			signatureWhitelisted(),
			rightToWithdrawGranted(),
			decryptable(true),
		},
	}
}

func requiredFields() Rule {
	return Rule{
		Name: "required_fields",
		Check: func(_ context.Context, record domain.ConsentRecord, _ Env) []string {
			var issues []string
			if record.DocumentType == "" {
				issues = append(issues, "document type is missing")
			}
			if record.ConsentTimestamp.IsZero() {
				issues = append(issues, "consent timestamp is missing")
			}
			if record.DataUsagePurpose == "" {
				issues = append(issues, "data usage purpose is missing")
			}
			if record.DataRetentionPeriod == "" {
				issues = append(issues, "data retention period is missing")
			}
			return issues
		},
	}
}

func affirmativeConsent() Rule {
	return Rule{
		Name: "affirmative_consent",
		Check: func(_ context.Context, record domain.ConsentRecord, _ Env) []string {
			if !record.UserConsent {
				return []string{"record does not carry affirmative user consent"}
			}
			return nil
		},
	}
}

var retentionPattern = regexp.MustCompile(`^(\d+)\s*(day|days|month|months|year|years)$`)

// retentionPlausible accepts retention strings like "7 years" or "90 days"
// and rejects indefinite or implausibly long retention.
func retentionPlausible() Rule {
	return Rule{
		Name: "retention_plausible",
		Check: func(_ context.Context, record domain.ConsentRecord, _ Env) []string {
			raw := strings.ToLower(strings.TrimSpace(record.DataRetentionPeriod))
			if raw == "" {
				return nil // required_fields already reports the absence
			}
			match := retentionPattern.FindStringSubmatch(raw)
			if match == nil {
				return []string{fmt.Sprintf("retention period %q is not a bounded duration", record.DataRetentionPeriod)}
			}
			amount, err := strconv.Atoi(match[1])
			if err != nil || amount <= 0 {
				return []string{fmt.Sprintf("retention period %q is not positive", record.DataRetentionPeriod)}
			}
			years := float64(amount)
			switch {
			case strings.HasPrefix(match[2], "day"):
				years = float64(amount) / 365
			case strings.HasPrefix(match[2], "month"):
				years = float64(amount) / 12
			}
			if years > 100 {
				return []string{fmt.Sprintf("retention period %q exceeds plausible bounds", record.DataRetentionPeriod)}
			}
			return nil
		},
	}
}

func signatureWhitelisted() Rule {
	return Rule{
		Name: "signature",
		Check: func(_ context.Context, record domain.ConsentRecord, _ Env) []string {
			if record.DigitalSignature == "" {
				return []string{"digital signature is missing"}
			}
			if !signatureAlgorithms[record.SignatureAlgorithm] {
				return []string{fmt.Sprintf("signature algorithm %q is not whitelisted", record.SignatureAlgorithm)}
			}
			return nil
		},
	}
}

func rightToWithdrawGranted() Rule {
	return Rule{
		Name: "right_to_withdraw",
		Check: func(_ context.Context, record domain.ConsentRecord, _ Env) []string {
			if !record.RightToWithdraw {
				return []string{"right to withdraw is not granted"}
			}
			return nil
		},
	}
}

// decryptable verifies the encryption posture. When mandatory, an encrypted
// payload must exist; whenever a payload exists its key must resolve so the
// record remains readable for the regulator.
func decryptable(mandatory bool) Rule {
	return Rule{
		Name: "encryption",
		Check: func(ctx context.Context, record domain.ConsentRecord, env Env) []string {
			if record.EncryptedPayload == "" {
				if mandatory {
					return []string{"standard mandates an encrypted consent payload"}
				}
				return nil
			}
			if record.EncryptionKeyID == "" {
				return []string{"encrypted payload has no encryption key reference"}
			}
			if env.Keys == nil {
				return []string{"encryption key resolution is unavailable"}
			}
			if _, err := env.Keys.Resolve(ctx, record.EncryptionKeyID); err != nil {
				return []string{fmt.Sprintf("encryption key %s does not resolve", record.EncryptionKeyID)}
			}
			return nil
		},
	}
}
