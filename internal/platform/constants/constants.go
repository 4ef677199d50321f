// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Idle timeouts for the HTTP server. Writes are
    bounded per route so the session event stream can stay open.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Session: landing paths and notification copy.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "motorhub-console"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 15 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 20.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 40

	// CredentialRateLimitRPS throttles login, signup and reset attempts per IP.
	CredentialRateLimitRPS = 0.2

	// CredentialRateLimitBurst is the burst of credential attempts allowed per IP.
	CredentialRateLimitBurst = 5

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderRetryAfter    = "Retry-After"
)

// # Uploads

const (
	// MaxAvatarBytes caps the avatar accepted by the signup form.
	MaxAvatarBytes = 5 << 20

	// MaxMultipartMemory is the in-memory budget for parsing signup forms.
	MaxMultipartMemory = 8 << 20
)

// # Session

const (
	// LandingPath is the unauthenticated route a caller is sent to after logout.
	LandingPath = "/login"

	// TokenRefreshMargin refreshes an access token this long before it expires.
	TokenRefreshMargin = 60 * time.Second
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldChecks  = "checks"
)

// # Redis Prefixes

const (
	// RedisChannelSessionEvents carries session changes between processes
	// sharing the same token storage.
	RedisChannelSessionEvents = "auth:events:"
)
