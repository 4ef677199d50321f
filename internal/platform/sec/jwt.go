// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides role definitions and access token inspection.
//
// # Architecture
//
// Access tokens are issued by the identity provider, never by this service.
// This package only reads them: the identity client uses [TokenInspector] to
// decide when a persisted session must be refreshed before it is trusted.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenMalformed is returned for tokens that cannot be decoded at all.
var ErrTokenMalformed = errors.New("sec: malformed access token")

// AccessClaims is the subset of the provider's access token payload we read.
type AccessClaims struct {
	jwt.RegisteredClaims

	Email       string         `json:"email"`
	AppMetadata map[string]any `json:"app_metadata"`
}

// ExpiresWithin reports whether the token expires before now+margin.
// Tokens without an expiry never expire.
func (claims *AccessClaims) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(margin).Before(claims.ExpiresAt.Time)
}

// TokenInspector decodes provider access tokens.
//
// With a shared secret it verifies the HS256 signature; without one it only
// decodes the claims, which is enough to schedule refreshes.
type TokenInspector struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenInspector creates a new [TokenInspector]. An empty secret disables
// signature verification.
func NewTokenInspector(secret string) *TokenInspector {
	return &TokenInspector{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Inspect decodes the token and returns its claims.
//
// Expired tokens are not an error here; callers compare the expiry themselves.
func (inspector *TokenInspector) Inspect(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if len(inspector.secret) == 0 {
		if _, _, err := inspector.parser.ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		return claims, nil
	}

	token, err := inspector.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return inspector.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sec: invalid access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("sec: invalid access token claims")
	}

	return claims, nil
}
