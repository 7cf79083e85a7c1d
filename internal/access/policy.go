package access

import (
	"strings"

	"github.com/google/uuid"

	"github.com/rentflow/backend/internal/models"
)

// Identity is the authenticated principal an access decision is made for.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// Policy may override the resolver for an identity. It runs before any subscription fetch.
type Policy interface {
	Override(id Identity) (Status, bool)
}

// MasterAdminPolicy grants unrestricted access to admin profiles whose e-mail is configured.
// The e-mail alone is not enough: self-registration never yields the admin role.
type MasterAdminPolicy struct {
	emails map[string]struct{}
}

// NewMasterAdminPolicy creates a policy for the given addresses (matched case-insensitively).
func NewMasterAdminPolicy(emails ...string) *MasterAdminPolicy {
	m := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			m[e] = struct{}{}
		}
	}
	return &MasterAdminPolicy{emails: m}
}

// Override returns StatusActive for master admins.
func (p *MasterAdminPolicy) Override(id Identity) (Status, bool) {
	if p == nil || len(p.emails) == 0 {
		return "", false
	}
	if id.Role != string(models.RoleAdmin) || !p.Reserved(id.Email) {
		return "", false
	}
	return StatusActive, true
}

// Reserved reports whether email is a configured master-admin address. Registration refuses these.
func (p *MasterAdminPolicy) Reserved(email string) bool {
	if p == nil {
		return false
	}
	_, ok := p.emails[normalizeEmail(email)]
	return ok
}

// Policies is an ordered chain; the first override wins.
type Policies []Policy

// Override implements Policy.
func (ps Policies) Override(id Identity) (Status, bool) {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if s, ok := p.Override(id); ok {
			return s, true
		}
	}
	return "", false
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
