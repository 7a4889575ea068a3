package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assent/internal/audit"
	"assent/internal/compliance"
	"assent/internal/keys"
	"assent/internal/ledger"
	"assent/internal/platform/middleware"
	"assent/internal/user"
	"assent/internal/withdrawal"
)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	logger      *slog.Logger
	ledger      *ledger.Service
	engine      *compliance.Engine
	withdrawals *withdrawal.Processor
	users       *user.Service
	keys        *keys.Manager
	recorder    *audit.Recorder
}

func NewHandler(
	logger *slog.Logger,
	ledgerSvc *ledger.Service,
	engine *compliance.Engine,
	withdrawals *withdrawal.Processor,
	users *user.Service,
	keyManager *keys.Manager,
	recorder *audit.Recorder,
) *Handler {
	return &Handler{
		logger:      logger,
		ledger:      ledgerSvc,
		engine:      engine,
		withdrawals: withdrawals,
		users:       users,
		keys:        keyManager,
		recorder:    recorder,
	}
}

// NewRouter wires the full HTTP surface. The actor middleware is optional
// authentication: anonymous mutations are attributed to "system".
func NewRouter(h *Handler, jwtSigningKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(nil))
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Metadata)
	r.Use(middleware.Actor(jwtSigningKey, h.logger))

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/consents", func(r chi.Router) {
		r.Post("/", h.handleCreateConsent)
		r.Get("/stats", h.handleConsentStats)
		r.Route("/{recordID}", func(r chi.Router) {
			r.Get("/", h.handleGetConsent)
			r.Patch("/", h.handleUpdateConsent)
			r.Post("/transition", h.handleTransition)
			r.Post("/verify", h.handleVerify)
			r.Post("/withdraw", h.handleWithdraw)
			r.Get("/audit", h.handleAuditExport)
		})
	})

	r.Route("/withdrawals/{withdrawalID}", func(r chi.Router) {
		r.Get("/", h.handleGetWithdrawal)
		r.Post("/deletion", h.handleDeletionStatus)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleRegisterUser)
		r.Get("/{userID}", h.handleGetUser)
		r.Delete("/{userID}", h.handleDeactivateUser)
		r.Get("/{userID}/consents", h.handleListUserConsents)
	})

	r.Route("/keys", func(r chi.Router) {
		r.Post("/", h.handleIssueKey)
		r.Post("/rotate", h.handleRotateKey)
		r.Get("/{keyID}", h.handleGetKey)
		r.Post("/{keyID}/expire", h.handleExpireKey)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
