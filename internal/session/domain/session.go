package domain

import "time"

// Session is a server-side session record. A session is valid while it is not revoked, not expired,
// and its SessionVersionAtIssue matches the owning user's current session version.
type Session struct {
	ID                    string
	UserID                string
	SessionVersionAtIssue int64
	RequiresStepUp        bool
	IPAddress             string
	UserAgent             string
	IPHash                string
	UserAgentHash         string
	ExpiresAt             time.Time
	LastSeenAt            *time.Time // nil until first touch
	RevokedAt             *time.Time // nil when not revoked
	RevokedReason         string
	CreatedAt             time.Time
}

// Revocation reasons stored on the session row.
const (
	ReasonLogout           = "logout"
	ReasonLogoutEverywhere = "logout_everywhere"
	ReasonUserRevoked      = "user_revoked"
	ReasonPasswordReset    = "password_reset"
)

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
