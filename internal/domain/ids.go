package domain

import (
	"github.com/google/uuid"

	pkgerrors "assent/pkg/domain-errors"
)

// Typed ids keep record, user, and withdrawal identifiers from being mixed
// up at compile time. All are UUIDs on the wire.
type (
	UserID       uuid.UUID
	RecordID     uuid.UUID
	WithdrawalID uuid.UUID
	CheckID      uuid.UUID
	KeyID        string
)

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewRecordID() RecordID         { return RecordID(uuid.New()) }
func NewWithdrawalID() WithdrawalID { return WithdrawalID(uuid.New()) }
func NewCheckID() CheckID           { return CheckID(uuid.New()) }
func NewKeyID() KeyID               { return KeyID(uuid.NewString()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id RecordID) String() string     { return uuid.UUID(id).String() }
func (id WithdrawalID) String() string { return uuid.UUID(id).String() }
func (id CheckID) String() string      { return uuid.UUID(id).String() }
func (id KeyID) String() string        { return string(id) }

func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s id must not be empty", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s id is not a valid uuid", kind).WithEntity(raw)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s id must not be the nil uuid", kind)
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	id, err := parseUUID(raw, "user")
	return UserID(id), err
}

func ParseRecordID(raw string) (RecordID, error) {
	id, err := parseUUID(raw, "record")
	return RecordID(id), err
}

func ParseWithdrawalID(raw string) (WithdrawalID, error) {
	id, err := parseUUID(raw, "withdrawal")
	return WithdrawalID(id), err
}
