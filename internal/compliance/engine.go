package compliance

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"assent/internal/audit"
	"assent/internal/domain"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// CheckTypeVerification is the check type recorded for standard evaluation
// runs.
const CheckTypeVerification = "consent_verification"

const failedRemediation = "address the listed issues and re-run verification"

// Evaluation is the verdict of one run: the persisted check plus the
// per-rule outcome map.
type Evaluation struct {
	Check domain.ComplianceCheck
	Rules map[string]bool
}

// Engine runs rule sets from the registry against consent records. It never
// changes verification status; acting on the verdict is the caller's
// decision.
type Engine struct {
	tx       storage.Tx
	stores   storage.Stores
	registry *Registry
	keys     KeyResolver
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEngine(tx storage.Tx, stores storage.Stores, registry *Registry, keys KeyResolver, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		tx:       tx,
		stores:   stores,
		registry: registry,
		keys:     keys,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the named standard against the record and persists an
// append-only ComplianceCheck together with its audit entry.
func (e *Engine) Evaluate(ctx context.Context, recordID domain.RecordID, standard, actor string) (Evaluation, error) {
	started := e.now()

	record, err := e.stores.Consents.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Evaluation{}, pkgerrors.New(pkgerrors.CodeNotFound, "consent record not found").WithEntity(recordID.String())
		}
		return Evaluation{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read consent record")
	}

	set, ok := e.registry.Get(standard)
	if !ok {
		return Evaluation{}, pkgerrors.Newf(pkgerrors.CodeComplianceEvaluation,
			"compliance standard %q is not registered", standard)
	}

	env := Env{Keys: e.keys}
	ruleResults := make(map[string]bool, len(set.Rules))
	var issues []string
	for _, rule := range set.Rules {
		found := rule.Check(ctx, record, env)
		ruleResults[rule.Name] = len(found) == 0
		issues = append(issues, found...)
	}
	passed := len(issues) == 0

	check := domain.ComplianceCheck{
		ID:        domain.NewCheckID(),
		RecordID:  recordID,
		CheckType: CheckTypeVerification,
		Standard:  standard,
		Result:    passed,
		Issues:    issues,
		CheckedBy: actorOrSystem(actor),
		CheckedAt: e.now(),
	}
	if !passed {
		check.Remediation = failedRemediation
	}

	var entry domain.AuditEntry
	ctx = storage.WithMutationKey(ctx, recordID.String())
	err = e.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if err := st.Compliance.Insert(ctx, check); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist compliance check")
		}
		entry, err = e.recorder.Append(ctx, st.Audit, domain.AuditEntry{
			RecordID: recordID,
			Action:   domain.AuditActionComplianceChecked,
			NewValues: map[string]string{
				"compliance_standard": standard,
				"check_result":        strconv.FormatBool(passed),
			},
			Actor:     check.CheckedBy,
			Timestamp: check.CheckedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "append compliance audit entry")
		}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	e.recorder.Publish(entry)
	if e.metrics != nil {
		e.metrics.ComplianceEvaluations.WithLabelValues(standard, strconv.FormatBool(passed)).Inc()
		e.metrics.EvaluationDuration.Observe(float64(time.Since(started).Microseconds()) / 1000.0)
	}
	e.logger.InfoContext(ctx, "compliance evaluation completed",
		"record_id", recordID.String(),
		"standard", standard,
		"result", passed,
		"issues", len(issues),
	)
	return Evaluation{Check: check, Rules: ruleResults}, nil
}

// History lists prior checks for a record, oldest first.
func (e *Engine) History(ctx context.Context, recordID domain.RecordID) ([]domain.ComplianceCheck, error) {
	checks, err := e.stores.Compliance.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "list compliance checks")
	}
	return checks, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return audit.DefaultActor
	}
	return actor
}
