// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/pkg/uuid"
)

// Provider endpoints, relative to the backend URL.
const (
	pathToken   = "/auth/v1/token"
	pathSignup  = "/auth/v1/signup"
	pathLogout  = "/auth/v1/logout"
	pathRecover = "/auth/v1/recover"
	pathUser    = "/auth/v1/user"
)

// Retry policy for idempotent GETs.
const (
	retryCount   = 2
	retryWait    = 100 * time.Millisecond
	retryMaxWait = 1 * time.Second
)

// Options configures a [Client].
type Options struct {
	BaseURL    string
	AnonKey    string
	Timeout    time.Duration
	StorageKey string

	Storage   Storage
	Bus       Bus
	Inspector *sec.TokenInspector
	Logger    *slog.Logger
}

// Client talks to the identity provider and owns the persisted session.
//
// # Concurrency
//
// Client is safe for concurrent use. Session changes are emitted to
// subscribers from a single dispatch goroutine, in the order they happen.
type Client struct {
	http       *resty.Client
	storage    Storage
	bus        Bus
	inspector  *sec.TokenInspector
	logger     *slog.Logger
	storageKey string
	origin     string

	mu      sync.Mutex
	current *Session

	emitter *emitter
	stopBus func()
}

// NewClient creates a new identity provider [Client].
func NewClient(options Options) *Client {
	httpClient := resty.New().
		SetBaseURL(options.BaseURL).
		SetTimeout(options.Timeout).
		SetHeader("apikey", options.AnonKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(options.AnonKey).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(idempotentRetry)

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inspector := options.Inspector
	if inspector == nil {
		inspector = sec.NewTokenInspector("")
	}

	return &Client{
		http:       httpClient,
		storage:    options.Storage,
		bus:        options.Bus,
		inspector:  inspector,
		logger:     logger,
		storageKey: options.StorageKey,
		origin:     uuid.New(),
		emitter:    newEmitter(),
	}
}

// idempotentRetry retries transport and server failures of GET requests only.
// Writes (signup, sign-in, logout) are never replayed.
func idempotentRetry(response *resty.Response, err error) bool {
	if response == nil || response.Request == nil || response.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := response.StatusCode()
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// # Lifecycle

// Start begins listening for session changes made by sibling processes.
// Without a [Bus] it is a no-op.
func (client *Client) Start(ctx context.Context) error {
	if client.bus == nil {
		return nil
	}

	stop, err := client.bus.Listen(ctx, client.onNotice)
	if err != nil {
		return fmt.Errorf("identity_start_failed: %w", err)
	}

	client.mu.Lock()
	client.stopBus = stop
	client.mu.Unlock()
	return nil
}

// Close stops the bus listener and the event dispatcher.
func (client *Client) Close() {
	client.mu.Lock()
	stop := client.stopBus
	client.stopBus = nil
	client.mu.Unlock()

	if stop != nil {
		stop()
	}
	client.emitter.close()
}

// SubscribeToSessionChanges registers handler for every session change.
// The returned function unsubscribes it and may be called more than once.
func (client *Client) SubscribeToSessionChanges(handler Handler) func() {
	return client.emitter.subscribe(handler)
}

// # Session Access

/*
GetPersistedSession returns the stored session, refreshing it when the access
token is about to expire.

Description: A session whose refresh is rejected by the provider is deleted
and reported as absent ([EventSignedOut] is emitted). Transport failures are
returned so the caller can retry.

Returns:
  - *Session: The usable session, nil when none is stored
  - error: Storage or provider-unavailable failures
*/
func (client *Client) GetPersistedSession(ctx context.Context) (*Session, error) {
	session, err := client.load(ctx)
	if err != nil || session == nil {
		return nil, err
	}

	if !client.expiresSoon(session) {
		client.setCurrent(session)
		return session.Clone(), nil
	}

	refreshed, err := client.refresh(ctx, session.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		client.logger.Warn("identity_refresh_rejected", slog.Any("error", err))
		client.forget(ctx)
		client.emitter.emit(EventSignedOut, nil)
		return nil, nil
	}

	client.adopt(ctx, EventTokenRefreshed, refreshed)
	return refreshed.Clone(), nil
}

/*
GetCurrentUser asks the provider who owns the current access token.

Returns:
  - *User: The verified principal, nil without a session or when the token is rejected
  - error: Provider-unavailable failures
*/
func (client *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	session := client.currentSession()
	if session == nil {
		return nil, nil
	}

	var user User
	response, err := client.http.R().
		SetContext(ctx).
		SetAuthToken(session.AccessToken).
		SetResult(&user).
		SetError(&providerError{}).
		Get(pathUser)
	if err := check(response, err); err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

// # Credential Flows

// SignInWithPassword exchanges credentials for a session and emits [EventSignedIn].
func (client *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	response, err := client.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		SetError(&providerError{}).
		Post(pathToken)
	if err := check(response, err); err != nil {
		return nil, err
	}

	client.adopt(ctx, EventSignedIn, &session)
	return session.Clone(), nil
}

/*
SignUp registers a new account.

Description: When the provider auto-confirms the account a session is
returned, persisted and announced with [EventSignedIn]. A user object with no
identities means the email is already taken.

Returns:
  - *SignUpResult: The new user and, when auto-confirmed, its session
  - error: ErrAlreadyRegistered or provider failures
*/
func (client *Client) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	request := client.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"email":    params.Email,
			"password": params.Password,
			"data":     params.Metadata,
		}).
		SetError(&providerError{})
	if params.RedirectTo != "" {
		request.SetQueryParam("redirect_to", params.RedirectTo)
	}

	response, err := request.Post(pathSignup)
	if err := check(response, err); err != nil {
		return nil, err
	}

	result, err := decodeSignUp(response.Body())
	if err != nil {
		return nil, err
	}

	if result.Session != nil {
		client.adopt(ctx, EventSignedIn, result.Session)
	}
	return result, nil
}

// decodeSignUp accepts both provider answers: a session (auto-confirm) or a bare user.
func decodeSignUp(body []byte) (*SignUpResult, error) {
	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("identity_signup_decode_failed: %w", err)
	}
	if session.AccessToken != "" && session.User != nil {
		return &SignUpResult{User: session.User.Clone(), Session: &session}, nil
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("identity_signup_decode_failed: %w", err)
	}
	if user.ID == "" {
		return nil, &Error{Status: http.StatusOK, Message: "signup returned no user", class: ErrRejected}
	}
	if user.Identities != nil && len(user.Identities) == 0 {
		return nil, &Error{Status: http.StatusOK, Message: "User already registered", class: ErrAlreadyRegistered}
	}
	return &SignUpResult{User: &user}, nil
}

/*
SignOut revokes the current session.

Description: Local state is always cleared and [EventSignedOut] always
emitted, even when the provider call fails; the provider error is returned.
*/
func (client *Client) SignOut(ctx context.Context) error {
	session := client.currentSession()

	var remoteErr error
	if session != nil {
		response, err := client.http.R().
			SetContext(ctx).
			SetAuthToken(session.AccessToken).
			SetQueryParam("scope", "local").
			SetError(&providerError{}).
			Post(pathLogout)
		if err := check(response, err); err != nil && !errors.Is(err, ErrNoSession) {
			remoteErr = err
		}
	}

	client.forget(context.WithoutCancel(ctx))
	client.emitter.emit(EventSignedOut, nil)
	client.publish(ctx, EventSignedOut)

	return remoteErr
}

// SendPasswordReset emails a recovery link pointing at redirectTo.
func (client *Client) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	response, err := client.http.R().
		SetContext(ctx).
		SetQueryParam("redirect_to", redirectTo).
		SetBody(map[string]string{"email": email}).
		SetError(&providerError{}).
		Post(pathRecover)
	return check(response, err)
}

/*
RecoverSession adopts the session carried by a password recovery link and
emits [EventPasswordRecovery].

Returns:
  - *Session: The recovery session
  - error: ErrNoSession when the link tokens are rejected
*/
func (client *Client) RecoverSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	var user User
	response, err := client.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		SetError(&providerError{}).
		Get(pathUser)
	if err := check(response, err); err != nil {
		return nil, err
	}

	session := &Session{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "bearer", User: &user}
	if claims, err := client.inspector.Inspect(accessToken); err == nil && claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Unix()
	}

	client.adopt(ctx, EventPasswordRecovery, session)
	return session.Clone(), nil
}

// UpdateUser changes the provider user record and emits [EventUserUpdated].
func (client *Client) UpdateUser(ctx context.Context, update UserUpdate) (*User, error) {
	session := client.currentSession()
	if session == nil {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "no active session", class: ErrNoSession}
	}

	var user User
	response, err := client.http.R().
		SetContext(ctx).
		SetAuthToken(session.AccessToken).
		SetBody(update).
		SetResult(&user).
		SetError(&providerError{}).
		Put(pathUser)
	if err := check(response, err); err != nil {
		return nil, err
	}

	session.User = &user
	client.adopt(ctx, EventUserUpdated, session)
	return user.Clone(), nil
}

// # Internals

func (client *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	response, err := client.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&session).
		SetError(&providerError{}).
		Post(pathToken)
	if err := check(response, err); err != nil {
		return nil, err
	}
	return &session, nil
}

// expiresSoon reports whether the session must be refreshed before use.
func (client *Client) expiresSoon(session *Session) bool {
	now := time.Now()
	if expiry := session.expiry(); !expiry.IsZero() {
		return !now.Add(constants.TokenRefreshMargin).Before(expiry)
	}

	claims, err := client.inspector.Inspect(session.AccessToken)
	if err != nil {
		return true
	}
	return claims.ExpiresWithin(now, constants.TokenRefreshMargin)
}

// adopt makes session current, persists it, and announces kind.
func (client *Client) adopt(ctx context.Context, kind EventKind, session *Session) {
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Unix() + session.ExpiresIn
	}

	client.setCurrent(session)
	client.persist(ctx, session)
	client.emitter.emit(kind, session)
	client.publish(ctx, kind)
}

func (client *Client) load(ctx context.Context) (*Session, error) {
	raw, err := client.storage.Load(ctx, client.storageKey)
	if err != nil {
		return nil, fmt.Errorf("identity_session_load_failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil || session.AccessToken == "" {
		client.logger.Warn("identity_session_corrupt_discarded")
		_ = client.storage.Delete(ctx, client.storageKey)
		return nil, nil
	}
	return &session, nil
}

func (client *Client) persist(ctx context.Context, session *Session) {
	raw, err := json.Marshal(session)
	if err == nil {
		err = client.storage.Save(ctx, client.storageKey, raw)
	}
	if err != nil {
		client.logger.Error("identity_session_persist_failed", slog.Any("error", err))
	}
}

// forget drops the in-memory and persisted session.
func (client *Client) forget(ctx context.Context) {
	client.setCurrent(nil)
	if err := client.storage.Delete(ctx, client.storageKey); err != nil {
		client.logger.Error("identity_session_delete_failed", slog.Any("error", err))
	}
}

func (client *Client) publish(ctx context.Context, kind EventKind) {
	if client.bus == nil {
		return
	}
	if err := client.bus.Publish(ctx, Notice{Kind: kind, Origin: client.origin}); err != nil {
		client.logger.Warn("identity_bus_publish_failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// onNotice mirrors a change made by a sibling process.
func (client *Client) onNotice(notice Notice) {
	if notice.Origin == client.origin {
		return
	}

	ctx := context.Background()
	if notice.Kind == EventSignedOut {
		client.setCurrent(nil)
		client.emitter.emit(EventSignedOut, nil)
		return
	}

	session, err := client.load(ctx)
	if err != nil {
		client.logger.Warn("identity_notice_load_failed", slog.Any("error", err))
		return
	}
	client.setCurrent(session)
	if session == nil {
		client.emitter.emit(EventSignedOut, nil)
		return
	}
	client.emitter.emit(notice.Kind, session)
}

func (client *Client) currentSession() *Session {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.current.Clone()
}

func (client *Client) setCurrent(session *Session) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.current = session.Clone()
}

// check turns a resty outcome into an [*Error].
func check(response *resty.Response, err error) error {
	if err != nil {
		return transportError(err)
	}
	if !response.IsError() {
		return nil
	}
	payload, _ := response.Error().(*providerError)
	return classify(response.StatusCode(), payload)
}
