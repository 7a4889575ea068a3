package domain

import "time"

// EncryptionKey is key metadata plus an opaque handle into the key vault.
// Raw material never appears here. Keys are never deleted while any consent
// record references them; rotation deactivates a key without breaking
// historical references.
type EncryptionKey struct {
	ID        KeyID
	KeyType   string
	Algorithm string
	HandleRef string
	Version   int
	Active    bool
	CreatedAt time.Time
	RotatedAt *time.Time
	ExpiresAt *time.Time
	CreatedBy string
}
