package domain

import "time"

// RecoveryCode is a stored one-time recovery code. Only the hash is persisted.
type RecoveryCode struct {
	ID         string
	UserID     string
	CodeHash   string
	ConsumedAt *time.Time // nil while unused
	ConsumedBy string     // user id that consumed the code
	CreatedAt  time.Time
}
