package ledger

import "assent/internal/domain"

// legalEdges is the verification state machine. pending is the initial
// state; rejected and withdrawn are absorbing.
var legalEdges = map[domain.VerificationStatus]map[domain.VerificationStatus]bool{
	domain.StatusPending: {
		domain.StatusVerified:  true,
		domain.StatusRejected:  true,
		domain.StatusWithdrawn: true,
	},
	domain.StatusVerified: {
		domain.StatusWithdrawn: true,
	},
}

// CanTransition reports whether the edge from → to is legal.
func CanTransition(from, to domain.VerificationStatus) bool {
	return legalEdges[from][to]
}

// KnownStatus reports whether s is one of the four verification statuses.
func KnownStatus(s domain.VerificationStatus) bool {
	switch s {
	case domain.StatusPending, domain.StatusVerified, domain.StatusRejected, domain.StatusWithdrawn:
		return true
	}
	return false
}
