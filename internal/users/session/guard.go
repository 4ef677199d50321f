// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"net/http"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/respond"
	"github.com/taibuivan/motorhub/internal/platform/sec"
)

// # Route Guard

// Requirement is what a guarded route demands of the session.
type Requirement string

const (
	RequireAuth  Requirement = "auth"
	RequireAdmin Requirement = "admin"
)

// Decision is the outcome of a guard check.
type Decision string

const (
	// DecisionPending means the session is still resolving; decide nothing yet.
	DecisionPending         Decision = "pending"
	DecisionAllow           Decision = "allow"
	DecisionUnauthenticated Decision = "unauthenticated"
	DecisionForbidden       Decision = "forbidden"
)

/*
Decide evaluates requirement against a state snapshot.

Description: A loading state is never decided. An error without a user is
treated exactly like no user (fail-closed).
*/
func Decide(state State, requirement Requirement) Decision {
	switch {
	case state.Loading:
		return DecisionPending
	case state.User == nil:
		return DecisionUnauthenticated
	case requirement == RequireAdmin && !state.Role.AtLeast(sec.RoleAdmin):
		return DecisionForbidden
	default:
		return DecisionAllow
	}
}

// StateSource supplies snapshots to the guard middleware.
type StateSource interface {
	State() State
}

// RequireSession rejects requests unless a user is signed in.
func RequireSession(source StateSource) func(http.Handler) http.Handler {
	return guard(source, RequireAuth)
}

// RequireAdministrator rejects requests unless the signed-in user is an admin.
func RequireAdministrator(source StateSource) func(http.Handler) http.Handler {
	return guard(source, RequireAdmin)
}

func guard(source StateSource, requirement Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			switch Decide(source.State(), requirement) {
			case DecisionPending:
				respond.Error(writer, request, apperr.ServiceUnavailable("Session is still loading"))
			case DecisionUnauthenticated:
				respond.Error(writer, request, apperr.Unauthorized(msgLoginRequired))
			case DecisionForbidden:
				respond.Error(writer, request, apperr.Forbidden("Administrator access required"))
			default:
				next.ServeHTTP(writer, request)
			}
		})
	}
}
