// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/motorhub/internal/platform/database/schema"
	"github.com/taibuivan/motorhub/internal/platform/dberr"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/pkg/pointer"
)

// resourceName is used in client-facing error messages.
const resourceName = "Profile"

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository creates a new Postgres implementation for profile rows.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func returning() string {
	return "RETURNING " + strings.Join(schema.Users.Projection(), ", ")
}

/*
GetByID retrieves a profile row from the users table.

Parameters:
  - ctx: context.Context
  - id: string (UUID)

Returns:
  - *Profile: Hydrated profile entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		strings.Join(schema.Users.Projection(), ", "), schema.Users.Table, schema.Users.ID)

	profile, err := scanProfile(repository.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, resourceName, "profile_get_failed")
	}
	return profile, nil
}

/*
Insert creates a new profile row.

Description: Empty display fields are stored as NULL. The returned row
carries the database timestamps.

Returns:
  - *Profile: The stored row
  - error: apperr.Conflict on duplicate id, or database failure
*/
func (repository *PostgresRepository) Insert(ctx context.Context, profile *Profile) (*Profile, error) {
	query, args, err := squirrel.Insert(schema.Users.Table).
		Columns(schema.Users.Columns()...).
		Values(
			profile.ID,
			profile.Email,
			pointer.NonEmpty(profile.Name),
			pointer.NonEmpty(profile.MobileNo),
			pointer.NonEmpty(profile.City),
			pointer.NonEmpty(profile.Country),
			pointer.NonEmpty(profile.AvatarURL),
			string(sec.ParseRole(string(profile.Role))),
			profile.EmailVerified,
		).
		Suffix(returning()).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("profile_insert_build_failed: %w", err)
	}

	stored, err := scanProfile(repository.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, dberr.Wrap(err, resourceName, "profile_insert_failed")
	}
	return stored, nil
}

/*
UpdateByID applies the non-nil fields of update and refreshes updated_at.

Description: An empty update performs no write and returns the current row.

Returns:
  - *Profile: The row after the write
  - error: apperr.NotFound or database failure
*/
func (repository *PostgresRepository) UpdateByID(ctx context.Context, id string, update Update) (*Profile, error) {
	if update.IsEmpty() {
		return repository.GetByID(ctx, id)
	}

	builder := squirrel.Update(schema.Users.Table)
	set := func(column string, value *string) {
		if value != nil {
			builder = builder.Set(column, *value)
		}
	}
	set(schema.Users.Name, update.Name)
	set(schema.Users.MobileNo, update.MobileNo)
	set(schema.Users.City, update.City)
	set(schema.Users.Country, update.Country)
	set(schema.Users.ProfilePicture, update.AvatarURL)
	if update.Role != nil {
		builder = builder.Set(schema.Users.Role, string(*update.Role))
	}

	query, args, err := builder.
		Set(schema.Users.UpdatedAt, squirrel.Expr("now()")).
		Where(squirrel.Eq{schema.Users.ID: id}).
		Suffix(returning()).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("profile_update_build_failed: %w", err)
	}

	stored, err := scanProfile(repository.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, dberr.Wrap(err, resourceName, "profile_update_failed")
	}
	return stored, nil
}

// scanProfile reads a row in [schema.UsersTable.Projection] order.
func scanProfile(row pgx.Row) (*Profile, error) {
	var profile Profile
	var role string
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Name,
		&profile.MobileNo,
		&profile.City,
		&profile.Country,
		&profile.AvatarURL,
		&role,
		&profile.EmailVerified,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	profile.Role = sec.ParseRole(role)
	return &profile, nil
}
