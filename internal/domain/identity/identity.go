package identity

import "errors"

// ErrForbidden marks a staff-only operation attempted without the admin role.
var ErrForbidden = errors.New("identity: admin role required")

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor is the pre-validated caller identity supplied by the auth boundary.
// Credential issuance and validation happen upstream; the core only checks
// roles.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// RequireAdmin guards staff-only operations.
func (a Actor) RequireAdmin() error {
	if !a.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
