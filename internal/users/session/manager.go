// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/users/profile"
)

// Defaults applied by [New] to zero [Options] fields.
const (
	defaultAvatarBucket  = "profile-pictures"
	defaultReadRetryBase = 100 * time.Millisecond
	defaultFetchTimeout  = 10 * time.Second
	inboxSize            = 32
)

// Dependencies are the collaborators of a [Manager].
type Dependencies struct {
	Identity IdentityProvider
	Profiles profile.Repository
	Files    FileStore
	Local    LocalStore

	// Notifier defaults to a [LogNotifier] over Logger.
	Notifier Notifier
	Logger   *slog.Logger
}

// Options tunes a [Manager].
type Options struct {
	AvatarBucket   string
	SignupRedirect string
	ResetRedirect  string

	// ReadRetries bounds retries of idempotent reads; 0 disables them.
	ReadRetries   uint64
	ReadRetryBase time.Duration

	// FetchTimeout bounds a background profile fetch.
	FetchTimeout time.Duration
}

// Manager owns the resolved session state.
//
// # Concurrency
//
// Manager is safe for concurrent use. One loop goroutine is the only writer
// of the state; provider events, action results and profile fetches reach it
// through the inbox and are applied in arrival order. Readers get snapshots.
type Manager struct {
	identity IdentityProvider
	profiles profile.Repository
	files    FileStore
	local    LocalStore
	notifier Notifier
	logger   *slog.Logger
	options  Options

	mu    sync.RWMutex
	state resolved

	watchMu     sync.Mutex
	watchers    map[uint64]chan State
	nextWatcher uint64
	closed      bool

	inbox       chan message
	lifetime    context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	stopped     chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
}

/*
New creates a [Manager], subscribes it to provider session changes and
starts its loop.

Description: The state starts in [PhaseInitializing]; call
[Manager.Bootstrap] once to restore the persisted session. The
subscription is held until [Manager.Close].

Returns:
  - *Manager: The running manager
  - error: A missing collaborator
*/
func New(deps Dependencies, options Options) (*Manager, error) {
	switch {
	case deps.Identity == nil:
		return nil, errors.New("session_new_failed: identity provider is required")
	case deps.Profiles == nil:
		return nil, errors.New("session_new_failed: profile repository is required")
	case deps.Files == nil:
		return nil, errors.New("session_new_failed: file store is required")
	case deps.Local == nil:
		return nil, errors.New("session_new_failed: local store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	if options.AvatarBucket == "" {
		options.AvatarBucket = defaultAvatarBucket
	}
	if options.ReadRetryBase <= 0 {
		options.ReadRetryBase = defaultReadRetryBase
	}
	if options.FetchTimeout <= 0 {
		options.FetchTimeout = defaultFetchTimeout
	}

	lifetime, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		identity: deps.Identity,
		profiles: deps.Profiles,
		files:    deps.Files,
		local:    deps.Local,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "session")),
		options:  options,
		watchers: make(map[uint64]chan State),
		inbox:    make(chan message, inboxSize),
		lifetime: lifetime,
		cancel:   cancel,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go manager.run()
	manager.unsubscribe = deps.Identity.SubscribeToSessionChanges(manager.onProviderEvent)

	return manager, nil
}

// Close releases the provider subscription, stops the loop and closes every
// watch channel. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.cancel()
		close(m.done)
		<-m.stopped

		m.watchMu.Lock()
		m.closed = true
		for id, ch := range m.watchers {
			delete(m.watchers, id)
			close(ch)
		}
		m.watchMu.Unlock()
	})
}

// # Reading State

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.snapshot()
}

/*
Watch streams state snapshots.

Description: The channel holds at most one pending snapshot; a slow reader
only ever sees the latest one. The current state is delivered immediately.
The channel is closed by cancel or by [Manager.Close].
*/
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.state.snapshot()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.watchMu.Lock()
			defer m.watchMu.Unlock()
			if existing, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// broadcast must be called with m.mu held so snapshots go out in order.
func (m *Manager) broadcast(snapshot State) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// # Loop

type message interface{ isMessage() }

// sessionEvent is a provider session change.
type sessionEvent struct {
	kind    identity.EventKind
	session *identity.Session
}

// mutation is a state change requested by an action; done closes once applied.
type mutation struct {
	apply func(*resolved)
	done  chan struct{}
}

// profileResult is the outcome of a background profile fetch.
type profileResult struct {
	ticket  fetchTicket
	profile *profile.Profile
	err     error
}

func (sessionEvent) isMessage()  {}
func (mutation) isMessage()      {}
func (profileResult) isMessage() {}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Manager) handle(msg message) {
	var fetch *pendingFetch
	var notice *Notice

	m.mu.Lock()
	switch msg := msg.(type) {
	case sessionEvent:
		fetch, notice = m.applyEvent(msg)
	case mutation:
		msg.apply(&m.state)
	case profileResult:
		m.applyProfile(msg)
	}
	m.broadcast(m.state.snapshot())
	m.mu.Unlock()

	if msg, ok := msg.(mutation); ok {
		close(msg.done)
	}
	if notice != nil {
		m.notifier.Notify(m.lifetime, *notice)
	}
	if fetch != nil {
		go m.fetchProfile(*fetch)
	}
}

// send queues msg for the loop. It reports false once the manager is closed.
func (m *Manager) send(msg message) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

// apply runs fn on the loop and waits until it has been applied.
func (m *Manager) apply(fn func(*resolved)) error {
	done := make(chan struct{})
	if !m.send(mutation{apply: fn, done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrClosed
	}
}

// # Provider Events

// onProviderEvent is the standing subscription handler.
func (m *Manager) onProviderEvent(kind identity.EventKind, session *identity.Session) {
	m.send(sessionEvent{kind: kind, session: session})
}

var eventNotices = map[identity.EventKind]Notice{
	identity.EventSignedIn:         {Level: LevelSuccess, Message: noticeSignedIn},
	identity.EventSignedOut:        {Level: LevelInfo, Message: noticeSignedOut},
	identity.EventPasswordRecovery: {Level: LevelInfo, Message: noticeRecovery},
	identity.EventUserUpdated:      {Level: LevelInfo, Message: noticeUserUpdated},
}

func (m *Manager) applyEvent(event sessionEvent) (*pendingFetch, *Notice) {
	var fetch *pendingFetch
	m.state.events++

	switch {
	case event.kind == identity.EventSignedOut || event.session == nil || event.session.User == nil:
		m.state.setUser(nil)
	case event.kind == identity.EventTokenRefreshed:
		if m.state.setUser(event.session.User) {
			fetch = m.state.pendingFetch(false)
		}
	default:
		m.state.setUser(event.session.User)
		fetch = m.state.pendingFetch(false)
	}

	m.logger.Debug("session_event_applied", slog.String("event", string(event.kind)))

	if notice, ok := eventNotices[event.kind]; ok {
		return fetch, &notice
	}
	return fetch, nil
}

// # Profile Resolution

// fetchTicket identifies the state a profile fetch was started against.
type fetchTicket struct {
	userID string
	epoch  uint64
	rev    uint64
}

type pendingFetch struct {
	ticket fetchTicket
	user   *identity.User
	heal   bool
}

func (m *Manager) fetchProfile(fetch pendingFetch) {
	ctx, cancel := context.WithTimeout(m.lifetime, m.options.FetchTimeout)
	defer cancel()

	row, err := m.loadProfile(ctx, fetch.user, fetch.heal)
	m.send(profileResult{ticket: fetch.ticket, profile: row, err: err})
}

/*
loadProfile reads the profile row of user.

Description: With heal set, a missing row is recreated from the provider
metadata (role user). A concurrent insert by another path is resolved by
reading the row back.

Returns:
  - *profile.Profile: The row, nil when absent and not healed
  - error: Store failures
*/
func (m *Manager) loadProfile(ctx context.Context, user *identity.User, heal bool) (*profile.Profile, error) {
	row, err := readRetry(ctx, m.options.ReadRetries, m.options.ReadRetryBase, func(ctx context.Context) (*profile.Profile, error) {
		return m.profiles.GetByID(ctx, user.ID)
	})
	if err == nil {
		return row, nil
	}
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, err
	}
	if !heal {
		return nil, nil
	}

	m.logger.Warn("session_profile_missing_healing", slog.String("user_id", user.ID))

	draft := profile.New(user.ID, user.Email,
		user.MetadataString("name"),
		user.MetadataString("mobileno"),
		user.MetadataString("city"),
		user.MetadataString("country"),
		user.MetadataString("profile_picture"),
	)
	draft.EmailVerified = user.EmailConfirmed()

	row, err = m.profiles.Insert(ctx, draft)
	if apperr.HasCode(err, apperr.CodeConflict) {
		return m.profiles.GetByID(ctx, user.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("session_profile_heal_failed: %w", err)
	}
	return row, nil
}

func (m *Manager) applyProfile(result profileResult) {
	if !m.state.accepts(result.ticket) {
		m.logger.Debug("session_profile_stale_discarded", slog.String("user_id", result.ticket.userID))
		return
	}
	if result.err != nil {
		m.logger.Warn("session_profile_fetch_failed",
			slog.String("user_id", result.ticket.userID),
			slog.Any("error", result.err),
		)
		return
	}

	// Absent rows never erase a profile already resolved for this user.
	if result.profile != nil {
		m.state.profile = result.profile.Clone()
	}
}

// # Bootstrap

/*
Bootstrap restores the persisted session once at startup.

Description: The stored session is verified with the provider before it is
trusted. Any failure leaves the manager unauthenticated with the error
recorded (fail-closed). On success the profile is resolved in the
background and recreated if missing. Session events applied while the
restore is in flight take precedence over its result.

Returns:
  - error: The normalized restore failure, or ErrClosed
*/
func (m *Manager) Bootstrap(ctx context.Context) error {
	var seen uint64
	if err := m.apply(func(state *resolved) { seen = state.events }); err != nil {
		return err
	}

	user, restoreErr := m.restore(ctx)

	var fetch *pendingFetch
	superseded := false
	err := m.apply(func(state *resolved) {
		state.bootstrapped = true

		// A session event applied during the restore is newer than the
		// restore. The heal still runs if that event kept the same user.
		if state.events != seen {
			superseded = true
			if user != nil && userID(state.user) == user.ID {
				fetch = state.pendingFetch(true)
			}
			return
		}
		if restoreErr != nil {
			state.setUser(nil)
			state.errMessage = messageOf(restoreErr)
			return
		}
		state.setUser(user)
		if user != nil {
			fetch = state.pendingFetch(true)
		}
	})
	if err != nil {
		return err
	}

	if fetch != nil {
		go m.fetchProfile(*fetch)
	}
	if superseded {
		m.logger.Info("session_bootstrap_superseded_by_event")
		return nil
	}
	if restoreErr != nil {
		m.logger.Error("session_bootstrap_failed", slog.Any("error", restoreErr))
		return restoreErr
	}

	m.logger.Info("session_bootstrapped", slog.Bool("authenticated", user != nil))
	return nil
}

func (m *Manager) restore(ctx context.Context) (*identity.User, error) {
	session, err := readRetry(ctx, m.options.ReadRetries, m.options.ReadRetryBase, m.identity.GetPersistedSession)
	if err != nil {
		return nil, normalize(err, msgRestoreFailed)
	}
	if session == nil {
		return nil, nil
	}

	user, err := readRetry(ctx, m.options.ReadRetries, m.options.ReadRetryBase, m.identity.GetCurrentUser)
	if err != nil {
		return nil, normalize(err, msgRestoreFailed)
	}
	return user, nil
}

// # Resolved Record

// resolved is the mutable record behind [State]. Only the loop writes it.
type resolved struct {
	user         *identity.User
	profile      *profile.Profile
	errMessage   string
	pending      int
	bootstrapped bool

	// events counts the provider events applied so far.
	events uint64

	// epoch changes whenever the user id changes.
	epoch uint64
	// profileRev changes whenever the profile is replaced outside a fetch.
	profileRev uint64
}

// setUser replaces the user and reports whether its id changed. A change
// drops the profile and invalidates in-flight fetches.
func (r *resolved) setUser(user *identity.User) bool {
	changed := userID(r.user) != userID(user)
	r.user = user.Clone()
	if changed {
		r.profile = nil
		r.epoch++
		r.profileRev++
	}
	return changed
}

// replaceProfile installs a row returned by a write and invalidates older fetches.
func (r *resolved) replaceProfile(row *profile.Profile) {
	if r.user == nil || row == nil || row.ID != r.user.ID {
		return
	}
	r.profile = row.Clone()
	r.profileRev++
}

func (r *resolved) ticket() fetchTicket {
	return fetchTicket{userID: userID(r.user), epoch: r.epoch, rev: r.profileRev}
}

func (r *resolved) pendingFetch(heal bool) *pendingFetch {
	if r.user == nil {
		return nil
	}
	return &pendingFetch{ticket: r.ticket(), user: r.user.Clone(), heal: heal}
}

// accepts is the stale-response guard.
func (r *resolved) accepts(ticket fetchTicket) bool {
	return r.user != nil && r.ticket() == ticket
}

func (r *resolved) snapshot() State {
	state := State{
		User:    r.user.Clone(),
		Profile: r.profile.Clone(),
		Role:    resolveRole(r.user, r.profile),
		Error:   r.errMessage,
	}

	switch {
	case !r.bootstrapped:
		state.Phase = PhaseInitializing
		state.Loading = true
	case r.pending > 0:
		state.Phase = PhaseAuthenticating
		state.Loading = true
	case r.user != nil:
		state.Phase = PhaseAuthenticated
	default:
		state.Phase = PhaseUnauthenticated
	}
	return state
}

// resolveRole applies the role precedence: profile row, then the
// provider's app_metadata, then user.
func resolveRole(user *identity.User, row *profile.Profile) sec.UserRole {
	if user == nil {
		return sec.RoleUser
	}
	if row != nil && row.Role.Valid() {
		return row.Role
	}
	return sec.ParseRole(user.AppRole())
}

func userID(user *identity.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
