// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Back-office access: moderation of users, cars, reviews, complaints and ads
	RoleAdmin UserRole = "admin"

	// Default role for every registered account
	RoleUser UserRole = "user"
)

// ParseRole maps a stored or hinted role onto a known [UserRole].
//
// Anything that is not exactly "admin" resolves to [RoleUser].
func ParseRole(value string) UserRole {
	if UserRole(value) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {
	switch r {
	case RoleAdmin:
		return 40
	case RoleUser:
		return 10
	default:
		return 0
	}
}
