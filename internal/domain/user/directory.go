// Package user is the slice of the user store this service depends on.
// User records are owned elsewhere; only correlation and the premium flag
// are read or written here.
package user

import "context"

type Directory interface {
	// ResolveAccountToken maps an app-account token (the UUID the client
	// attaches to a purchase) to a user id. Returns 0, nil when unknown.
	ResolveAccountToken(ctx context.Context, token string) (uint, error)
	// Exists reports whether the user id is known.
	Exists(ctx context.Context, userID uint) (bool, error)
	SetPremium(ctx context.Context, userID uint, premium bool) error
}
