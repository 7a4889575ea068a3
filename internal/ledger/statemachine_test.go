package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"assent/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.VerificationStatus
		legal    bool
	}{
		{domain.StatusPending, domain.StatusVerified, true},
		{domain.StatusPending, domain.StatusRejected, true},
		{domain.StatusPending, domain.StatusWithdrawn, true},
		{domain.StatusVerified, domain.StatusWithdrawn, true},
		{domain.StatusVerified, domain.StatusPending, false},
		{domain.StatusVerified, domain.StatusRejected, false},
		{domain.StatusRejected, domain.StatusPending, false},
		{domain.StatusRejected, domain.StatusVerified, false},
		{domain.StatusRejected, domain.StatusWithdrawn, false},
		{domain.StatusWithdrawn, domain.StatusPending, false},
		{domain.StatusWithdrawn, domain.StatusVerified, false},
		{domain.StatusWithdrawn, domain.StatusRejected, false},
		{domain.StatusPending, domain.StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.legal, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestKnownStatus(t *testing.T) {
	for _, s := range []domain.VerificationStatus{
		domain.StatusPending, domain.StatusVerified, domain.StatusRejected, domain.StatusWithdrawn,
	} {
		assert.True(t, KnownStatus(s), string(s))
	}
	assert.False(t, KnownStatus("approved"))
	assert.False(t, KnownStatus(""))
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, domain.StatusPending.Terminal())
	assert.False(t, domain.StatusVerified.Terminal())
	assert.True(t, domain.StatusRejected.Terminal())
	assert.True(t, domain.StatusWithdrawn.Terminal())
}
