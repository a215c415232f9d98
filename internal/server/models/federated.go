package models

import "time"

// FederatedLink binds an Account to an external identity provider.
// An email with a link never authenticates with a password.
type FederatedLink struct {
	ID              string
	AccountID       string
	Provider        string
	ProviderSubject string
	Email           string
	CreatedAt       time.Time
}
