// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package profile

import "context"

// # Repository Contracts

// Repository defines the persistence contract for profile rows.
type Repository interface {

	/*
		GetByID retrieves the profile row of a user.

		Returns:
		  - *Profile: The stored row
		  - error: apperr.NotFound when the row is absent, or a storage failure
	*/
	GetByID(ctx context.Context, id string) (*Profile, error)

	/*
		Insert creates a profile row.

		Returns:
		  - *Profile: The row as stored, with server-side defaults applied
		  - error: apperr.Conflict when the id already exists, or a storage failure
	*/
	Insert(ctx context.Context, profile *Profile) (*Profile, error)

	/*
		UpdateByID applies a partial write.

		Returns:
		  - *Profile: The row after the write
		  - error: apperr.NotFound when the row is absent, or a storage failure
	*/
	UpdateByID(ctx context.Context, id string, update Update) (*Profile, error)
}
