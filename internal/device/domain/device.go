package domain

import "time"

// Device is a superadmin device keyed by (UserID, Fingerprint). It is approved iff ApprovedAt is set
// and RevokedAt is not.
type Device struct {
	ID          string
	UserID      string
	Fingerprint string
	Label       string
	Metadata    map[string]string
	ApprovedAt  *time.Time
	RevokedAt   *time.Time
	LastSeenAt  *time.Time
	CreatedAt   time.Time
}

// IsApproved reports whether the device is currently trusted.
func (d *Device) IsApproved() bool {
	return d != nil && d.ApprovedAt != nil && d.RevokedAt == nil
}
