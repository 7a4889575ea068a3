package domain

import "time"

// User anchors consent records to an identity. Users are soft-deactivated,
// never hard-deleted, so historical consent records keep a valid reference.
type User struct {
	ID          UserID
	Email       string
	FullName    string
	PhoneNumber string
	Address     string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
