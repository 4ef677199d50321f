// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://motorhub@localhost:5432/motorhub")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BACKEND_URL", "https://backend.motorhub.test/")
	t.Setenv("BACKEND_ANON_KEY", "anon")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8787", cfg.ServerPort)
	assert.Equal(t, "https://backend.motorhub.test", cfg.BackendURL)
	assert.Equal(t, "motorhub-auth-token", cfg.SessionStorageKey)
	assert.Equal(t, "profile-pictures", cfg.AvatarBucket)
	assert.Equal(t, uint64(3), cfg.ReadRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.ReadRetryBase)
	assert.Contains(t, cfg.LegacyKeyPatterns, "sb-*-auth-token")
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "BACKEND_URL", "BACKEND_ANON_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := Load()
	assert.Error(t, err)
}

func TestRedirects(t *testing.T) {
	setRequired(t)
	t.Setenv("SITE_URL", "https://console.motorhub.test/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://console.motorhub.test/profile", cfg.SignupRedirect())
	assert.Equal(t, "https://console.motorhub.test/reset-password", cfg.ResetRedirect())
	assert.True(t, cfg.AllowedOrigin("https://console.motorhub.test"))
	assert.False(t, cfg.AllowedOrigin("https://evil.test"))
}
