package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: conditional write lost to a concurrent writer
// - ErrDuplicate: uniqueness constraint violated (e.g. user email)
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: storage temporarily unavailable; the unit of work aborted
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDuplicate    = errors.New("duplicate")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
