package domain

import (
	"errors"
	"time"
)

// User is the core user entity. SessionVersion is bumped to invalidate every session of the user at once.
type User struct {
	ID                 string
	Email              string
	Name               string
	Status             UserStatus
	IsSuperadmin       bool
	SessionVersion     int64
	MustChangePassword bool
	MFAEnabled         bool
	MFASecret          string // TOTP secret; set only when MFAEnabled
	MFAPendingSecret   string // enrollment in progress
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Status != UserStatusActive && u.Status != UserStatusDisabled {
		return errors.New("invalid user status")
	}
	if u.MFAEnabled && u.MFASecret == "" {
		return errors.New("mfa secret is required when mfa is enabled")
	}
	return nil
}
