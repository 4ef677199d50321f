// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package profile manages the extended user record kept next to the identity
provider's account.

A profile row shares its id with the provider user and carries the display
fields plus the authorization role. The role stored here is authoritative;
provider metadata is only a hint until the row is read.

# Architecture

  - Entities: Profile, Update (partial write).
  - Storage: Repository, implemented over Postgres in store_postgres.go.
*/
package profile

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/motorhub/internal/platform/sec"
)

// # Domain Entities

// Profile is a row of the users table.
type Profile struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	MobileNo      string       `json:"mobile_no"`
	City          string       `json:"city"`
	Country       string       `json:"country"`
	AvatarURL     string       `json:"avatar_url"`
	Role          sec.UserRole `json:"role"`
	EmailVerified bool         `json:"email_verified"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

/*
New builds the initial row for a freshly registered user.

Description: The role is always [sec.RoleUser] and the email starts
unverified; elevation to admin happens only through an admin edit.
*/
func New(id, email, name, mobileNo, city, country, avatarURL string) *Profile {
	return &Profile{
		ID:        id,
		Email:     strings.TrimSpace(email),
		Name:      clean(name),
		MobileNo:  strings.TrimSpace(mobileNo),
		City:      clean(city),
		Country:   clean(country),
		AvatarURL: avatarURL,
		Role:      sec.RoleUser,
	}
}

// Clone returns a copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// # Partial Writes

// Update is a partial profile write. Nil fields are left unchanged.
type Update struct {
	Name      *string       `json:"name,omitempty"`
	MobileNo  *string       `json:"mobile_no,omitempty"`
	City      *string       `json:"city,omitempty"`
	Country   *string       `json:"country,omitempty"`
	AvatarURL *string       `json:"avatar_url,omitempty"`
	Role      *sec.UserRole `json:"role,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.MobileNo == nil && u.City == nil &&
		u.Country == nil && u.AvatarURL == nil && u.Role == nil
}

// Normalized returns a copy with display text trimmed and NFC-composed.
func (u Update) Normalized() Update {
	out := u
	out.Name = cleanPtr(u.Name)
	out.City = cleanPtr(u.City)
	out.Country = cleanPtr(u.Country)
	if u.MobileNo != nil {
		mobile := strings.TrimSpace(*u.MobileNo)
		out.MobileNo = &mobile
	}
	return out
}

// Metadata mirrors the display fields of u into identity-provider metadata keys.
func (u Update) Metadata() map[string]any {
	metadata := make(map[string]any)
	set := func(key string, value *string) {
		if value != nil {
			metadata[key] = *value
		}
	}
	set("name", u.Name)
	set("mobileno", u.MobileNo)
	set("city", u.City)
	set("country", u.Country)
	set("profile_picture", u.AvatarURL)
	return metadata
}

// clean composes user-typed text so visually identical names compare equal.
func clean(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

func cleanPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := clean(*value)
	return &cleaned
}
