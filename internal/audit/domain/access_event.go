package domain

import "time"

// Kind is the closed set of access event kinds.
type Kind string

const (
	KindLoginSuccess             Kind = "login_success"
	KindLoginFailure             Kind = "login_failure"
	KindLogout                   Kind = "logout"
	KindLogoutEverywhere         Kind = "logout_everywhere"
	KindSessionRevoked           Kind = "session_revoked"
	KindDeviceUnapproved         Kind = "device_unapproved"
	KindDeviceApproved           Kind = "device_approved"
	KindDeviceRevoked            Kind = "device_revoked"
	KindMFASuccess               Kind = "mfa_success"
	KindMFAFailure               Kind = "mfa_failure"
	KindMFAEnrolled              Kind = "mfa_enrolled"
	KindMFADisabled              Kind = "mfa_disabled"
	KindRecoveryCodesRegenerated Kind = "recovery_codes_regenerated"
	KindImpersonationStart       Kind = "impersonation_start"
	KindImpersonationStop        Kind = "impersonation_stop"
	KindPasswordReset            Kind = "password_reset"
	KindRoleChanged              Kind = "role_changed"
	KindTenantPolicyChanged      Kind = "tenant_policy_changed"
	KindDataExportRequested      Kind = "data_export_requested"
)

// AccessEvent is an append-only record of an authentication or authorization event.
// TenantID is empty for events outside any tenant (login, global MFA).
type AccessEvent struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	ActorUserID string            `json:"actor_user_id,omitempty"`
	TenantID    string            `json:"tenant_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
