package security

import (
	"fanzone-tickets/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/samber/lo"
)

const (
	RoleAdmin   = "admin"
	RoleScanner = "scanner"
	RoleFan     = "fan"
)

// Principal is the authenticated caller resolved from the PocketBase auth
// record. Role is read from the record's "role" field; superusers are admins.
type Principal struct {
	ID    string
	Email string
	Role  string
}

func CurrentPrincipal(e *core.RequestEvent) (*Principal, error) {
	if e.Auth == nil {
		return nil, status.ErrUnauthenticated
	}

	p := &Principal{
		ID:    e.Auth.Id,
		Email: e.Auth.Email(),
		Role:  e.Auth.GetString("role"),
	}
	if e.Auth.IsSuperuser() {
		p.Role = RoleAdmin
	}
	if p.Role == "" {
		p.Role = RoleFan
	}
	return p, nil
}

func (p *Principal) HasRole(roles ...string) bool {
	return lo.Contains(roles, p.Role)
}

// RequireAuth rejects requests without an authenticated record.
func RequireAuth(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("The request requires a valid auth token.", nil)
	}
	return e.Next()
}

// RequireRole allows only principals holding one of roles.
func RequireRole(roles ...string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		p, err := CurrentPrincipal(e)
		if err != nil {
			return apis.NewUnauthorizedError("The request requires a valid auth token.", nil)
		}
		if !p.HasRole(roles...) {
			return apis.NewForbiddenError("You are not allowed to perform this request.", nil)
		}
		return e.Next()
	}
}
