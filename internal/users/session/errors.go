// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"errors"
	"net/http"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/identity"
)

// CodeProfileIncomplete marks a signup whose account exists without a profile row.
const CodeProfileIncomplete = "PROFILE_INCOMPLETE"

// ErrClosed is returned by every action once the manager has been closed.
var ErrClosed = apperr.ServiceUnavailable("Session service is shutting down")

// Client-facing failure copy.
const (
	msgInvalidCredentials = "Invalid email or password. Please try again."
	msgEmailNotConfirmed  = "Please verify your email before logging in."
	msgAlreadyRegistered  = "This email is already registered"
	msgSessionExpired     = "Your session has expired. Please log in again."
	msgSessionFailed      = "Session creation failed"
	msgRestoreFailed      = "Unable to restore your session"
	msgSignupFailed       = "Signup failed. Please try again."
	msgProfileIncomplete  = "Your account was created but your profile could not be saved. It will be completed on your next login."
	msgLogoutFailed       = "Logout failed"
	msgResetFailed        = "Failed to send password reset email"
	msgUpdateUserFailed   = "Failed to update user information"
	msgUpdateProfileFail  = "Failed to update profile"
	msgAvatarUploadFailed = "Failed to upload profile picture"
	msgRecoveryFailed     = "The recovery link is invalid or has expired"
	msgLoginRequired      = "You must be logged in"
	msgRoleForbidden      = "Only administrators can change roles"
)

/*
normalize converts a collaborator failure into the single client-safe error
an action returns.

Description: Identity sentinels map to their dedicated copy. Client errors
already raised as [apperr.AppError] (validation, not found, conflict) pass
through. Anything else becomes fallback with the original kept as cause.
*/
func normalize(err error, fallback string) *apperr.AppError {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return apperr.InvalidCredentials(msgInvalidCredentials).WithCause(err)
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return apperr.EmailNotConfirmed(msgEmailNotConfirmed).WithCause(err)
	case errors.Is(err, identity.ErrAlreadyRegistered):
		return apperr.Conflict(msgAlreadyRegistered).WithCause(err)
	case errors.Is(err, identity.ErrNoSession):
		return apperr.Unauthorized(msgSessionExpired).WithCause(err)
	case errors.Is(err, identity.ErrUnavailable):
		return apperr.ServiceUnavailable(fallback).WithCause(err)
	}

	if appError := apperr.As(err); appError != nil {
		if appError.HTTPStatus < http.StatusInternalServerError || appError.Code == apperr.CodeUnavailable {
			return appError
		}
	}

	internal := apperr.Internal(err)
	internal.Message = fallback
	return internal
}

// profileIncomplete reports the partial-signup state.
func profileIncomplete(cause error) *apperr.AppError {
	return &apperr.AppError{
		Code:       CodeProfileIncomplete,
		Message:    msgProfileIncomplete,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// messageOf returns the text stored in the state's error field.
func messageOf(err error) string {
	if appError := apperr.As(err); appError != nil {
		return appError.Message
	}
	return err.Error()
}
