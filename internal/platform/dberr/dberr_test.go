// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/dberr"
)

/*
TestWrap classifies driver errors into application errors.
*/
func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"no_rows", pgx.ErrNoRows, apperr.CodeNotFound},
		{"unique_violation", &pgconn.PgError{Code: "23505"}, apperr.CodeConflict},
		{"check_violation", &pgconn.PgError{Code: "23514"}, apperr.CodeUnprocessable},
		{"other", errors.New("connection reset"), apperr.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dberr.Wrap(tt.err, "Profile", "profile_get_failed")
			assert.True(t, apperr.HasCode(err, tt.code))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, dberr.Wrap(nil, "Profile", "profile_get_failed"))
	assert.Equal(t, "Profile not found", dberr.Wrap(pgx.ErrNoRows, "Profile", "x").Error())
}
