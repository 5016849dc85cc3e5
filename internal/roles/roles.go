// Package roles resolves the authorization role attached to a user.
//
// Role records live in an external store keyed by the identity provider's
// user ID. This package only reads them. A missing record, a missing role
// field or an unrecognised role name all resolve to DefaultRole, the least
// privileged role.
package roles

import (
	"context"
)

// Role is an authorization label.
type Role string

const (
	// RoleUser is the ordinary dashboard role.
	RoleUser Role = "user"
	// RoleAdmin unlocks the admin view and admin API routes.
	RoleAdmin Role = "admin"

	// DefaultRole applies whenever no usable role record exists.
	DefaultRole = RoleUser
)

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Record is a role document as stored. Role is the raw value and is empty
// when the document has no role field.
type Record struct {
	UserID string `json:"uid" yaml:"uid" db:"uid"`
	Role   string `json:"role,omitempty" yaml:"role" db:"role"`
}

// Store reads role records.
type Store interface {
	// GetRoleRecord returns the record for userID, or nil with no error when
	// the user has no record.
	GetRoleRecord(ctx context.Context, userID string) (*Record, error)

	// Name identifies the backend (firestore, postgres, redis, memory).
	Name() string

	Close() error
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Normalize maps a raw role name to a known role. Matching is exact: any
// other spelling, including case or whitespace variants, maps to DefaultRole.
func Normalize(raw string) Role {
	r := Role(raw)
	if r.Valid() {
		return r
	}
	return DefaultRole
}

// Resolve returns the effective role for a lookup result. A nil record
// yields DefaultRole.
func Resolve(rec *Record) Role {
	if rec == nil {
		return DefaultRole
	}
	return Normalize(rec.Role)
}

// Lookup fetches the record for userID and resolves it. Errors are returned
// as-is; callers that must fail safe use DefaultRole on error.
func Lookup(ctx context.Context, store Store, userID string) (Role, *Record, error) {
	rec, err := store.GetRoleRecord(ctx, userID)
	if err != nil {
		return DefaultRole, nil, err
	}
	return Resolve(rec), rec, nil
}
