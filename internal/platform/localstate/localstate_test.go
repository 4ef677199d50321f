// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package localstate

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestPurger_Purge verifies that only keys matching the legacy patterns are
removed and the live session key survives.
*/
func TestPurger_Purge(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	for _, key := range []string{"sb-abc-auth-token", "supabase.auth.token", "authUser", "userRole", "motorhub-auth-token"} {
		require.NoError(t, server.Set(key, "x"))
	}
	for i := range 150 {
		require.NoError(t, server.Set(fmt.Sprintf("supabase.auth.%d", i), "x"))
	}

	purger := NewPurger(client, []string{"sb-*-auth-token", "supabase.auth.*", "authUser", "userRole", "token"}, slog.New(slog.DiscardHandler))

	removed, err := purger.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 154, removed)
	assert.Equal(t, []string{"motorhub-auth-token"}, server.Keys())

	removed, err = purger.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

/*
TestPurger_Purge_ManyBatches verifies that every matching key is removed when
the matches span several SCAN pages and DEL batches.
*/
func TestPurger_Purge_ManyBatches(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	for i := range 3*scanBatch + 7 {
		require.NoError(t, server.Set(fmt.Sprintf("authUser:%03d", i), "x"))
	}
	require.NoError(t, server.Set("motorhub-auth-token", "x"))

	removed, err := NewPurger(client, []string{"authUser:*"}, slog.New(slog.DiscardHandler)).Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*scanBatch+7, removed)
	assert.Equal(t, []string{"motorhub-auth-token"}, server.Keys())
}

func TestPurger_Purge_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	_, err := NewPurger(client, []string{"authUser"}, slog.New(slog.DiscardHandler)).Purge(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localstate_scan_failed")
}
