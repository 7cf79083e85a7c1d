package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a profile's role inside its tenant.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Profile represents a user of a rental business (tenant).
type Profile struct {
	ID                 uuid.UUID  `json:"id"`
	OrganizationID     *uuid.UUID `json:"organization_id,omitempty"`
	Email              string     `json:"email"`
	Password           string     `json:"-"`
	FullName           string     `json:"full_name"`
	CompanyName        string     `json:"company_name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Role               Role       `json:"role"`
	SubscriptionStatus string     `json:"subscription_status"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProfilePublic is Profile without sensitive fields for API responses.
type ProfilePublic struct {
	ID                 uuid.UUID  `json:"id"`
	OrganizationID     *uuid.UUID `json:"organization_id,omitempty"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name"`
	CompanyName        string     `json:"company_name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Role               Role       `json:"role"`
	SubscriptionStatus string     `json:"subscription_status"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ToPublic converts Profile to ProfilePublic.
func (p *Profile) ToPublic() ProfilePublic {
	return ProfilePublic{
		ID:                 p.ID,
		OrganizationID:     p.OrganizationID,
		Email:              p.Email,
		FullName:           p.FullName,
		CompanyName:        p.CompanyName,
		Phone:              p.Phone,
		Role:               p.Role,
		SubscriptionStatus: p.SubscriptionStatus,
		LastLoginAt:        p.LastLoginAt,
		CreatedAt:          p.CreatedAt,
	}
}
