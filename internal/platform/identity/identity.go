// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity is the client for the hosted identity provider (a GoTrue
compatible auth API).

It issues and refreshes sessions, persists them through a [Storage] adapter,
and emits session-change events to subscribers in emission order.

Architecture:

  - Client: REST calls over resty; only idempotent GETs are retried.
  - Storage: the provider session persisted under one key (Redis in production).
  - Bus: optional cross-process channel so sibling processes sharing the same
    storage learn about sign-ins and sign-outs (the "other tab" case).

The session manager is the only caller of this package.
*/
package identity

import (
	"encoding/json"
	"maps"
	"time"
)

// # Session Events

// EventKind names a session transition.
type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
)

// Handler receives session changes. The session is nil for [EventSignedOut].
type Handler func(kind EventKind, session *Session)

// # Principal

// User is the authenticated principal as reported by the provider.
type User struct {
	ID                 string            `json:"id"`
	Email              string            `json:"email"`
	EmailConfirmedAt   *time.Time        `json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time        `json:"confirmation_sent_at,omitempty"`
	UserMetadata       map[string]any    `json:"user_metadata"`
	AppMetadata        map[string]any    `json:"app_metadata"`
	Identities         []json.RawMessage `json:"identities,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Clone returns a copy whose metadata maps can be mutated independently.
func (user *User) Clone() *User {
	if user == nil {
		return nil
	}
	clone := *user
	clone.UserMetadata = maps.Clone(user.UserMetadata)
	clone.AppMetadata = maps.Clone(user.AppMetadata)
	clone.Identities = append([]json.RawMessage(nil), user.Identities...)
	return &clone
}

// EmailConfirmed reports whether the provider has verified the email address.
func (user *User) EmailConfirmed() bool {
	return user.EmailConfirmedAt != nil
}

// MetadataString returns a string value from the user metadata, or "".
func (user *User) MetadataString(key string) string {
	value, _ := user.UserMetadata[key].(string)
	return value
}

// AppRole returns the server-controlled role hint, or "".
func (user *User) AppRole() string {
	role, _ := user.AppMetadata["role"].(string)
	return role
}

// # Session

// Session is a provider-issued token pair plus the principal it belongs to.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// Clone returns a deep copy of the session.
func (session *Session) Clone() *Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.User = session.User.Clone()
	return &clone
}

// expiry returns the absolute expiry time, or the zero time when unknown.
func (session *Session) expiry() time.Time {
	if session.ExpiresAt > 0 {
		return time.Unix(session.ExpiresAt, 0)
	}
	return time.Time{}
}

// # Requests

// SignUpParams holds the credentials and metadata of a new account.
type SignUpParams struct {
	Email      string
	Password   string
	Metadata   map[string]any
	RedirectTo string
}

// SignUpResult is the provider answer to a signup. Session is nil when the
// account must confirm its email first.
type SignUpResult struct {
	User    *User
	Session *Session
}

// UserUpdate changes the provider-side user record. Empty fields are ignored.
type UserUpdate struct {
	Password string         `json:"password,omitempty"`
	Metadata map[string]any `json:"data,omitempty"`
}
