package authz

import "errors"

var (
	// ErrInvalidInput covers structurally invalid requests and unknown
	// permission or scope codes. Raised before any write.
	ErrInvalidInput = errors.New("authz: invalid input")
	// ErrForbidden is a business-rule rejection (system role mutation,
	// deleting a role with members), not an identity failure.
	ErrForbidden = errors.New("authz: forbidden operation")
	// ErrNotFound covers missing records and cross-organization lookups
	// alike, so existence never leaks across tenants.
	ErrNotFound = errors.New("authz: not found")
	// ErrInvalidCredential collapses unknown, revoked and expired API keys
	// into one external signal.
	ErrInvalidCredential = errors.New("authz: invalid credential")
	// ErrConflict signals a uniqueness violation in the backing store.
	ErrConflict = errors.New("authz: already exists")
)
