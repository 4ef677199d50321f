// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/identity"
)

/*
readRetry runs an idempotent read with bounded exponential backoff.

Description: Only transient failures are retried: an unreachable identity
provider or a 5xx store error. Credential, not-found and context errors
return immediately. Writes must never go through here.
*/
func readRetry[T any](ctx context.Context, retries uint64, base time.Duration, read func(context.Context) (T, error)) (T, error) {
	var result T
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		value, err := read(ctx)
		if err != nil {
			if transient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = value
		return nil
	})
	return result, err
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, identity.ErrUnavailable) {
		return true
	}
	if appError := apperr.As(err); appError != nil {
		return appError.HTTPStatus >= http.StatusInternalServerError
	}
	return false
}
