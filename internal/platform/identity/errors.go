// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel classes of provider failures. Match them with [errors.Is].
var (
	ErrInvalidCredentials = errors.New("identity: invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("identity: email not confirmed")
	ErrAlreadyRegistered  = errors.New("identity: user already registered")
	ErrUnavailable        = errors.New("identity: provider unavailable")
	ErrNoSession          = errors.New("identity: no active session")
	ErrRejected           = errors.New("identity: request rejected")
)

// Error is a failed provider call.
type Error struct {
	// Status is the HTTP status returned by the provider, 0 for transport errors.
	Status int
	// Code is the provider's machine code (error_code), when present.
	Code string
	// Message is the provider's description.
	Message string

	class error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%v: %s", e.class, e.Message)
	}
	return fmt.Sprintf("%v (status %d): %s", e.class, e.Status, e.Message)
}

// Unwrap exposes the sentinel class.
func (e *Error) Unwrap() error { return e.class }

// providerError is the union of the error payload shapes GoTrue returns.
type providerError struct {
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (payload *providerError) text() string {
	for _, candidate := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.ErrorName} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// classify maps an HTTP failure onto an [*Error] with its sentinel class.
func classify(status int, payload *providerError) *Error {
	if payload == nil {
		payload = &providerError{}
	}

	message := payload.text()
	if message == "" {
		message = http.StatusText(status)
	}

	lower := strings.ToLower(message)
	result := &Error{Status: status, Code: payload.ErrorCode, Message: message, class: ErrRejected}

	switch {
	case payload.ErrorCode == "invalid_credentials" || strings.Contains(lower, "invalid login credentials"):
		result.class = ErrInvalidCredentials
	case payload.ErrorCode == "email_not_confirmed" || strings.Contains(lower, "email not confirmed"):
		result.class = ErrEmailNotConfirmed
	case payload.ErrorCode == "user_already_exists" || strings.Contains(lower, "already registered"):
		result.class = ErrAlreadyRegistered
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		result.class = ErrNoSession
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		result.class = ErrUnavailable
	}

	return result
}

// transportError wraps a failure to reach the provider at all.
func transportError(err error) *Error {
	return &Error{Message: err.Error(), class: ErrUnavailable}
}
