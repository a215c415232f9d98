// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"time"
)

// Role is a closed set of authorization tags attached to an Account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps s to a known Role. An empty string is RoleUser.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is a password identity. Email is the unique lookup key and the
// subject of every token issued for the account.
type Account struct {
	ID             string
	Email          string
	PasswordHash   string
	Role           Role
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
