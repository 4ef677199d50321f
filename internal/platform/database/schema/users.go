// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema holds the table and column names of the console database.
package schema

// UsersTable represents the 'users' profile table
type UsersTable struct {
	Table          string
	ID             string
	Email          string
	Name           string
	MobileNo       string
	City           string
	Country        string
	ProfilePicture string
	Role           string
	EmailVerified  string
	CreatedAt      string
	UpdatedAt      string
}

// Users is the schema definition for users
var Users = UsersTable{
	Table:          "users",
	ID:             "id",
	Email:          "email",
	Name:           "name",
	MobileNo:       "mobileno",
	City:           "city",
	Country:        "country",
	ProfilePicture: "profile_picture",
	Role:           "role",
	EmailVerified:  "email_verified",
	CreatedAt:      "created_at",
	UpdatedAt:      "updated_at",
}

// Columns returns the insertable column names in table order
func (t UsersTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.Name, t.MobileNo, t.City, t.Country,
		t.ProfilePicture, t.Role, t.EmailVerified,
	}
}

// Projection returns the read projection shared by every profile query.
// Nullable text columns are coalesced so they scan into plain strings.
func (t UsersTable) Projection() []string {
	return []string{
		t.ID + "::text",
		t.Email,
		"COALESCE(" + t.Name + ", '')",
		"COALESCE(" + t.MobileNo + ", '')",
		"COALESCE(" + t.City + ", '')",
		"COALESCE(" + t.Country + ", '')",
		"COALESCE(" + t.ProfilePicture + ", '')",
		t.Role,
		t.EmailVerified,
		t.CreatedAt,
		t.UpdatedAt,
	}
}
