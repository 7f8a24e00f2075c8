package authctx

// Outcome is the result kind of an authorization-related decision. Expected denials are outcomes,
// never Go errors.
type Outcome int

const (
	Granted Outcome = iota
	Unauthenticated
	Forbidden
	NotFound
	MFARequired
	ReauthRequired
	RateLimited
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case MFARequired:
		return "mfa_required"
	case ReauthRequired:
		return "reauth_required"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}
