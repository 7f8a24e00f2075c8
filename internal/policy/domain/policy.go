package domain

import "time"

// Policy is a tenant-level Rego module evaluated alongside the built-in re-auth policy.
// Rules must declare package backoffice.reauth and can only add requirements.
type Policy struct {
	ID        string
	TenantID  string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
