// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"
)

// Level is the severity of a [Notice].
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is a transient, user-facing message about an action or session change.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier delivers notices to whatever surface shows them. Implementations
// must not block; they are called from the manager's loop.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements [Notifier].
func (notifier LogNotifier) Notify(ctx context.Context, notice Notice) {
	level := slog.LevelInfo
	if notice.Level == LevelError {
		level = slog.LevelWarn
	}
	notifier.Logger.Log(ctx, level, "session_notice",
		slog.String("level", string(notice.Level)),
		slog.String("message", notice.Message),
	)
}

// Event and action copy shown to the console user.
const (
	noticeSignedIn         = "Login successful!"
	noticeSignedOut        = "Logged out successfully"
	noticeRecovery         = "Password recovery initiated"
	noticeUserUpdated      = "User information updated"
	noticeAccountCreated   = "Account created successfully!"
	noticeConfirmEmail     = "Confirmation email sent! Please verify your email."
	noticeResetSent        = "Password reset link sent to your email"
	noticeProfileUpdated   = "Profile updated successfully"
)
