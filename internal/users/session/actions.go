// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/platform/objectstore"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/platform/validate"
	"github.com/taibuivan/motorhub/internal/users/profile"
	"github.com/taibuivan/motorhub/pkg/uuid"
)

// Password and display field limits.
const (
	minPasswordLength = 6
	maxNameLength     = 100
	maxPlaceLength    = 80
)

// # Action Bracket

// beginAction marks an action in flight and clears the previous error.
func (m *Manager) beginAction() error {
	return m.apply(func(state *resolved) {
		state.pending++
		state.errMessage = ""
	})
}

// endAction releases the in-flight mark on every exit path and records err.
func (m *Manager) endAction(ctx context.Context, err error) {
	_ = m.apply(func(state *resolved) {
		state.pending--
		if err != nil {
			state.errMessage = messageOf(err)
		}
	})
	if err != nil {
		m.notifier.Notify(ctx, Notice{Level: LevelError, Message: messageOf(err)})
	}
}

// # Login

/*
Login signs in with email and password.

Description: The profile row is resolved before Login returns, so the caller
sees the final role. A failed profile read keeps the metadata role and does
not fail the login. A failed sign-in leaves the current user untouched.

Returns:
  - error: Validation, credential or provider failures
*/
func (m *Manager) Login(ctx context.Context, email, password string) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	v := &validate.Validator{}
	v.Required("email", email).Email("email", email).Required("password", password)
	if err := v.Err(); err != nil {
		return err
	}

	var seen uint64
	if err := m.apply(func(state *resolved) { seen = state.events }); err != nil {
		return err
	}

	session, err := m.identity.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return normalize(err, msgSessionFailed)
	}
	if session == nil || session.User == nil {
		return normalize(errors.New("session_login_empty_session"), msgSessionFailed)
	}

	var fetch *pendingFetch
	if err := m.apply(func(state *resolved) {
		// Events applied since sign-in started win; only our own SIGNED_IN
		// leaves this user in place.
		if state.events == seen {
			state.setUser(session.User)
		}
		if userID(state.user) == session.User.ID {
			fetch = state.pendingFetch(false)
		}
	}); err != nil {
		return err
	}
	if fetch == nil {
		m.logger.Info("session_login_superseded_by_event", slog.String("user_id", session.User.ID))
		return nil
	}

	row, fetchErr := m.loadProfile(ctx, fetch.user, false)
	if fetchErr != nil {
		m.logger.Warn("session_login_profile_failed", slog.String("user_id", fetch.user.ID), slog.Any("error", fetchErr))
		return nil
	}
	return m.apply(func(*resolved) {
		m.applyProfile(profileResult{ticket: fetch.ticket, profile: row})
	})
}

// # Signup

/*
Signup registers a new account and creates its profile row.

Description: The avatar, when present, is uploaded first so its public URL
lands in both the provider metadata and the profile row. The provider
account is not rolled back if the profile insert fails; the row is healed
at the next bootstrap.

Returns:
  - error: Validation, duplicate email, upload, provider or profile failures
*/
func (m *Manager) Signup(ctx context.Context, input SignupInput) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	input.Email = strings.TrimSpace(input.Email)

	v := &validate.Validator{}
	v.Required("email", input.Email).Email("email", input.Email).
		Required("password", input.Password).MinLen("password", input.Password, minPasswordLength).
		MaxLen("name", input.Name, maxNameLength).
		Phone("mobile_no", input.MobileNo).
		MaxLen("city", input.City, maxPlaceLength).
		MaxLen("country", input.Country, maxPlaceLength)
	if err := v.Err(); err != nil {
		return err
	}

	avatarURL, storedPath, err := m.uploadAvatar(ctx, input.Avatar, func(extension string) string {
		return "avatars/" + uuid.New() + extension
	})
	if err != nil {
		return err
	}

	row := profile.New("", input.Email, input.Name, input.MobileNo, input.City, input.Country, avatarURL)

	metadata := maps.Clone(input.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["name"] = row.Name
	metadata["mobileno"] = row.MobileNo
	metadata["city"] = row.City
	metadata["country"] = row.Country
	metadata["profile_picture"] = avatarURL
	metadata["role"] = string(sec.RoleUser)

	result, err := m.identity.SignUp(ctx, identity.SignUpParams{
		Email:      input.Email,
		Password:   input.Password,
		Metadata:   metadata,
		RedirectTo: m.options.SignupRedirect,
	})
	if err != nil {
		if storedPath != "" {
			m.discardAvatar(context.WithoutCancel(ctx), storedPath)
		}
		return normalize(err, msgSignupFailed)
	}
	if result == nil || result.User == nil {
		return normalize(errors.New("session_signup_empty_result"), msgSignupFailed)
	}

	row.ID = result.User.ID
	stored, err := m.profiles.Insert(ctx, row)
	if err != nil {
		m.logger.Error("session_signup_profile_missing",
			slog.String("user_id", row.ID),
			slog.Any("error", err),
		)
		return profileIncomplete(err)
	}

	if result.Session == nil {
		m.notifier.Notify(ctx, Notice{Level: LevelInfo, Message: noticeConfirmEmail})
		return nil
	}

	if err := m.apply(func(state *resolved) {
		state.setUser(result.User)
		state.replaceProfile(stored)
	}); err != nil {
		return err
	}
	m.notifier.Notify(ctx, Notice{Level: LevelSuccess, Message: noticeAccountCreated})
	return nil
}

// # Logout

/*
Logout signs out and clears every trace of the session.

Description: Local state is cleared and legacy keys purged whatever the
provider answers; a failed sign-out is still reported to the caller.

Returns:
  - string: The unauthenticated landing path
  - error: The normalized sign-out failure
*/
func (m *Manager) Logout(ctx context.Context) (landing string, err error) {
	if err := m.beginAction(); err != nil {
		return constants.LandingPath, err
	}
	defer func() { m.endAction(ctx, err) }()

	signOutErr := m.identity.SignOut(ctx)
	cleanup := context.WithoutCancel(ctx)

	if err := m.apply(func(state *resolved) {
		state.setUser(nil)
		state.errMessage = ""
	}); err != nil {
		return constants.LandingPath, err
	}

	if removed, err := m.local.Purge(cleanup); err != nil {
		m.logger.Warn("session_local_purge_failed", slog.Any("error", err))
	} else if removed > 0 {
		m.logger.Info("session_local_purged", slog.Int("keys", removed))
	}

	if signOutErr != nil {
		m.logger.Warn("session_signout_failed", slog.Any("error", signOutErr))
		return constants.LandingPath, normalize(signOutErr, msgLogoutFailed)
	}
	return constants.LandingPath, nil
}

// # Password Reset

// ResetPassword emails a recovery link. It never changes the current user.
func (m *Manager) ResetPassword(ctx context.Context, email string) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	email = strings.TrimSpace(email)
	v := &validate.Validator{}
	v.Required("email", email).Email("email", email)
	if err := v.Err(); err != nil {
		return err
	}

	if err := m.identity.SendPasswordReset(ctx, email, m.options.ResetRedirect); err != nil {
		return normalize(err, msgResetFailed)
	}

	m.notifier.Notify(ctx, Notice{Level: LevelSuccess, Message: noticeResetSent})
	return nil
}

// CompleteRecovery adopts the session carried by a password recovery link.
func (m *Manager) CompleteRecovery(ctx context.Context, accessToken, refreshToken string) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	v := &validate.Validator{}
	v.Required("access_token", accessToken).Required("refresh_token", refreshToken)
	if err := v.Err(); err != nil {
		return err
	}

	session, err := m.identity.RecoverSession(ctx, accessToken, refreshToken)
	if err != nil {
		return normalize(err, msgRecoveryFailed)
	}
	if session == nil || session.User == nil {
		return normalize(errors.New("session_recovery_empty_session"), msgRecoveryFailed)
	}

	return m.apply(func(state *resolved) {
		state.setUser(session.User)
	})
}

// # Account Edits

/*
UpdateUser changes the provider user record of the signed-in user.

Description: Metadata is merged into the in-memory user on success. A role
key is accepted from admins only and never changes the resolved role, which
comes from the profile row.

Returns:
  - error: Unauthorized, Forbidden, validation or provider failures
*/
func (m *Manager) UpdateUser(ctx context.Context, update identity.UserUpdate) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	current := m.State()
	if current.User == nil {
		return apperr.Unauthorized(msgLoginRequired)
	}
	if _, ok := update.Metadata["role"]; ok && !current.IsAdmin() {
		m.logger.Warn("session_role_elevation_blocked", slog.String("user_id", current.User.ID))
		return apperr.Forbidden(msgRoleForbidden)
	}
	if update.Password != "" {
		v := &validate.Validator{}
		v.MinLen("password", update.Password, minPasswordLength)
		if err := v.Err(); err != nil {
			return err
		}
	}

	user, err := m.identity.UpdateUser(ctx, update)
	if err != nil {
		return normalize(err, msgUpdateUserFailed)
	}

	return m.apply(func(state *resolved) {
		if state.user == nil || state.user.ID != user.ID {
			return
		}
		merged := user.Clone()
		if merged.UserMetadata == nil {
			merged.UserMetadata = make(map[string]any)
		}
		maps.Copy(merged.UserMetadata, update.Metadata)
		state.setUser(merged)
	})
}

/*
UpdateProfile writes a partial update to the signed-in user's profile row.

Description: An avatar, when present, replaces the user's canonical
picture. The in-memory profile becomes the row the store returns. Display
fields are mirrored into provider metadata on a best-effort basis.

Returns:
  - error: Unauthorized, Forbidden, validation, upload or store failures
*/
func (m *Manager) UpdateProfile(ctx context.Context, update profile.Update, avatar *Avatar) (err error) {
	if err := m.beginAction(); err != nil {
		return err
	}
	defer func() { m.endAction(ctx, err) }()

	current := m.State()
	if current.User == nil {
		return apperr.Unauthorized(msgLoginRequired)
	}
	if update.Role != nil && !current.IsAdmin() {
		m.logger.Warn("session_role_elevation_blocked", slog.String("user_id", current.User.ID))
		return apperr.Forbidden(msgRoleForbidden)
	}

	update = update.Normalized()

	v := &validate.Validator{}
	if update.Name != nil {
		v.MaxLen("name", *update.Name, maxNameLength)
	}
	if update.MobileNo != nil {
		v.Phone("mobile_no", *update.MobileNo)
	}
	if update.City != nil {
		v.MaxLen("city", *update.City, maxPlaceLength)
	}
	if update.Country != nil {
		v.MaxLen("country", *update.Country, maxPlaceLength)
	}
	if update.Role != nil {
		v.Custom("role", !update.Role.Valid(), "Must be one of: user, admin")
	}
	if err := v.Err(); err != nil {
		return err
	}

	userID := current.User.ID
	avatarURL, _, err := m.uploadAvatar(ctx, avatar, func(extension string) string {
		return userID + "/profile" + extension
	})
	if err != nil {
		return err
	}
	if avatarURL != "" {
		update.AvatarURL = &avatarURL
	}

	stored, err := m.profiles.UpdateByID(ctx, userID, update)
	if err != nil {
		return normalize(err, msgUpdateProfileFail)
	}

	if err := m.apply(func(state *resolved) {
		state.replaceProfile(stored)
	}); err != nil {
		return err
	}

	if metadata := update.Metadata(); len(metadata) > 0 {
		if _, err := m.identity.UpdateUser(ctx, identity.UserUpdate{Metadata: metadata}); err != nil {
			m.logger.Warn("session_profile_metadata_sync_failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	m.notifier.Notify(ctx, Notice{Level: LevelSuccess, Message: noticeProfileUpdated})
	return nil
}

// # Avatars

/*
uploadAvatar stores an image and returns its public URL.

Parameters:
  - path: builds the object path from the detected extension

Returns:
  - string: Public URL, empty when avatar is nil
  - string: Stored object path, for cleanup
  - error: Validation or upload failures
*/
func (m *Manager) uploadAvatar(ctx context.Context, avatar *Avatar, path func(extension string) string) (string, string, error) {
	if avatar == nil || len(avatar.Content) == 0 {
		return "", "", nil
	}
	if len(avatar.Content) > constants.MaxAvatarBytes {
		return "", "", validate.RequiredError("avatar", "File is too large")
	}

	contentType := objectstore.DetectContentType(avatar.Content)
	if !objectstore.IsImage(contentType) {
		return "", "", validate.RequiredError("avatar", "Profile picture must be an image")
	}

	storedPath, err := m.files.Upload(ctx, m.options.AvatarBucket, path(objectstore.Extension(contentType, avatar.FileName)), avatar.Content, contentType)
	if err != nil {
		return "", "", normalize(err, msgAvatarUploadFailed)
	}
	return m.files.PublicURL(m.options.AvatarBucket, storedPath), storedPath, nil
}

// discardAvatar removes an avatar uploaded for a signup that did not happen.
func (m *Manager) discardAvatar(ctx context.Context, storedPath string) {
	if err := m.files.Remove(ctx, m.options.AvatarBucket, storedPath); err != nil {
		m.logger.Warn("session_avatar_cleanup_failed", slog.String("path", storedPath), slog.Any("error", err))
	}
}
