// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session is the process-wide authority on who is signed in to the
console and with which role.

It ingests session changes from the identity provider, resolves the profile
row of the signed-in user, derives the effective role, and exposes the
console's account actions (login, signup, logout, password reset, user and
profile edits) plus a read-only snapshot of the resolved state.

Architecture:

  - Manager: owns the resolved state. A single loop goroutine applies every
    write (provider events, action results, profile fetches) in order.
  - Ports: IdentityProvider, FileStore, LocalStore and Notifier are small
    interfaces; the profile table is reached through profile.Repository.
  - Guard: a pure decision over a State snapshot plus chi middleware.
  - Handler: the console HTTP surface under /api/v1/session.

Role precedence: the profile row's role, then the provider's app_metadata
role, then "user". Client-writable user metadata never grants a role.
*/
package session

import (
	"context"

	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/users/profile"
)

// # Resolved State

// Phase names where the manager is in its lifecycle.
type Phase string

const (
	// PhaseInitializing lasts until the persisted session has been checked.
	PhaseInitializing Phase = "initializing"
	// PhaseAuthenticating means an action is in flight; the prior user stays visible.
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State is an immutable snapshot of the resolved session.
type State struct {
	User    *identity.User
	Profile *profile.Profile
	Role    sec.UserRole
	Loading bool
	Error   string
	Phase   Phase
}

// IsAdmin reports whether the resolved role is admin. It is never stored separately.
func (s State) IsAdmin() bool {
	return s.Role == sec.RoleAdmin
}

// IsAuthenticated reports whether a user is present.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// # Ports

// IdentityProvider is the subset of the identity client the manager drives.
type IdentityProvider interface {
	GetPersistedSession(ctx context.Context) (*identity.Session, error)
	GetCurrentUser(ctx context.Context) (*identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, params identity.SignUpParams) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, update identity.UserUpdate) (*identity.User, error)
	RecoverSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error)
	SubscribeToSessionChanges(handler identity.Handler) func()
}

// FileStore holds uploaded profile pictures.
type FileStore interface {
	Upload(ctx context.Context, bucket, path string, content []byte, contentType string) (string, error)
	PublicURL(bucket, storedPath string) string
	Remove(ctx context.Context, bucket string, paths ...string) error
}

// LocalStore clears auth residue left behind by earlier console builds.
type LocalStore interface {
	Purge(ctx context.Context) (int, error)
}

// # Action Inputs

// Avatar is an uploaded profile picture. Its media type is sniffed from Content.
type Avatar struct {
	FileName string
	Content  []byte
}

// SignupInput holds the registration form.
type SignupInput struct {
	Email    string
	Password string
	Name     string
	MobileNo string
	City     string
	Country  string

	// Metadata carries extra provider metadata. The role key is always overwritten.
	Metadata map[string]any

	Avatar *Avatar
}
