// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package localstate clears the client-side session residue kept in Redis.

Older console builds cached tokens and role hints under loose keys
(sb-*-auth-token, authUser, userRole, ...). Sign-out must remove them so a
stale role hint can never outlive the session it came from.
*/
package localstate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN and the DEL batch size.
const scanBatch = 100

// Purger deletes every key matching a fixed set of glob patterns.
type Purger struct {
	client   *redis.Client
	patterns []string
	logger   *slog.Logger
}

// NewPurger creates a new [Purger] for patterns (Redis MATCH syntax).
func NewPurger(client *redis.Client, patterns []string, logger *slog.Logger) *Purger {
	return &Purger{client: client, patterns: patterns, logger: logger}
}

/*
Purge removes all keys matching the configured patterns.

Returns:
  - int: Number of keys deleted
  - error: The first Redis failure; keys deleted before it stay deleted
*/
func (purger *Purger) Purge(ctx context.Context) (int, error) {
	removed := 0
	for _, pattern := range purger.patterns {
		count, err := purger.purgePattern(ctx, pattern)
		removed += count
		if err != nil {
			return removed, err
		}
	}

	if removed > 0 {
		purger.logger.Debug("localstate_purged", slog.Int("keys", removed))
	}
	return removed, nil
}

// purgePattern completes the SCAN before deleting; deleting under an open
// cursor can make the server skip keys.
func (purger *Purger) purgePattern(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := purger.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("localstate_scan_failed: %w", err)
	}

	removed := 0
	for batch := range slices.Chunk(slices.Compact(slices.Sorted(slices.Values(keys))), scanBatch) {
		count, err := purger.client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, fmt.Errorf("localstate_delete_failed: %w", err)
		}
		removed += int(count)
	}
	return removed, nil
}
