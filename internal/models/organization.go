package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant: one rental business and its staff profiles.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
