package models

import "time"

// Profile is created together with its Account. Only the avatar fields are
// managed here.
type Profile struct {
	AccountID   string
	DisplayName string
	AvatarKey   string
	AvatarURL   string
	AvatarETag  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
