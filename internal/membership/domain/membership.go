package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrLastOwner is returned when a change would leave a tenant without an owner.
var ErrLastOwner = errors.New("tenant must keep at least one owner")

// Membership links a user to a tenant with a role.
type Membership struct {
	ID        string
	UserID    string
	TenantID  string
	Role      Role
	CreatedAt time.Time
}

// Role is the closed set of tenant roles, ordered from most to least privileged.
type Role string

const (
	RoleOwner           Role = "owner"
	RoleAdmin           Role = "admin"
	RoleRestrictedWrite Role = "restricted_write"
	RoleReadOnly        Role = "read_only"
)

var roleRank = map[Role]int{
	RoleOwner:           4,
	RoleAdmin:           3,
	RoleRestrictedWrite: 2,
	RoleReadOnly:        1,
}

// ParseRole validates s against the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is as privileged as min. Unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// CanWrite reports whether the role may mutate tenant data.
func (r Role) CanWrite() bool { return r.AtLeast(RoleRestrictedWrite) }

// CanAdminister reports whether the role may manage members and settings.
func (r Role) CanAdminister() bool { return r.AtLeast(RoleAdmin) }

// IsElevation reports whether moving from current to next grants more privilege.
func IsElevation(current, next Role) bool {
	return roleRank[next] > roleRank[current]
}

// CheckRoleChange enforces the last-owner invariant for a role change or removal (next == "").
// ownerCount is the tenant's current number of owners.
func CheckRoleChange(current, next Role, ownerCount int64) error {
	if next != "" && !next.Valid() {
		return fmt.Errorf("invalid role %q", next)
	}
	if current == RoleOwner && next != RoleOwner && ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}
