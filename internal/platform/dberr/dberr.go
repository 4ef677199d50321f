// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
)

// SQLSTATE codes we classify explicitly.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
//
// The resource name is used in client messages ("Profile not found"), the
// action in the server-side cause ("profile_get_failed").
func Wrap(err error, resource, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource).WithCause(err)
	}

	// 2. Constraint violations are client errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Conflict(resource + " already exists").WithCause(err)
		case codeCheckViolation:
			return apperr.Unprocessable("Invalid " + resource + " value").WithCause(err)
		}
	}

	// 3. Everything else is an Internal Server Error
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}
