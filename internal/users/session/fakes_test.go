// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/users/profile"
)

// # Call Log

// callLog records collaborator calls across fakes to assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (log *callLog) add(call string) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.calls = append(log.calls, call)
}

func (log *callLog) list() []string {
	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]string(nil), log.calls...)
}

// # Identity Provider

type account struct {
	password string
	user     *identity.User
}

type fakeIdentity struct {
	mu sync.Mutex

	handlers     []identity.Handler
	unsubscribed int

	accounts      map[string]*account
	nextID        int
	persisted     *identity.Session
	autoConfirm   bool
	unconfirmed   map[string]bool
	unavailable   int
	persistReads  int
	rejectCurrent bool
	emptyRecovery bool
	signOutErr    error

	// currentGate, when set, holds GetCurrentUser until closed.
	currentGate    chan struct{}
	currentStarted chan struct{}

	// afterSignIn runs once a sign-in has emitted SIGNED_IN.
	afterSignIn func()

	resetErr      error
	resets        []string
	updates       []identity.UserUpdate

	calls *callLog
}

func newFakeIdentity(calls *callLog) *fakeIdentity {
	return &fakeIdentity{
		accounts:       make(map[string]*account),
		unconfirmed:    make(map[string]bool),
		currentStarted: make(chan struct{}, 4),
		calls:          calls,
	}
}

// addAccount registers a user that can sign in.
func (f *fakeIdentity) addAccount(user *identity.User, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[user.Email] = &account{password: password, user: user.Clone()}
}

// persist makes user the stored session, as if signed in by an earlier process.
func (f *fakeIdentity) persist(user *identity.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = &identity.Session{AccessToken: "token-" + user.ID, User: user.Clone()}
}

func (f *fakeIdentity) emit(kind identity.EventKind, session *identity.Session) {
	f.mu.Lock()
	handlers := append([]identity.Handler(nil), f.handlers...)
	f.mu.Unlock()

	for _, handler := range handlers {
		handler(kind, session.Clone())
	}
}

func (f *fakeIdentity) SubscribeToSessionChanges(handler identity.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.unsubscribed++
			f.handlers = nil
		})
	}
}

func (f *fakeIdentity) GetPersistedSession(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistReads++
	if f.unavailable > 0 {
		f.unavailable--
		return nil, fmt.Errorf("dial backend: %w", identity.ErrUnavailable)
	}
	return f.persisted.Clone(), nil
}

func (f *fakeIdentity) GetCurrentUser(ctx context.Context) (*identity.User, error) {
	f.mu.Lock()
	gate := f.currentGate
	f.mu.Unlock()
	if gate != nil {
		f.currentStarted <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persisted == nil || f.rejectCurrent {
		return nil, nil
	}
	if stored, ok := f.accounts[f.persisted.User.Email]; ok {
		return stored.user.Clone(), nil
	}
	return f.persisted.User.Clone(), nil
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	stored, ok := f.accounts[email]
	switch {
	case !ok || stored.password != password:
		f.mu.Unlock()
		return nil, fmt.Errorf("sign in: %w", identity.ErrInvalidCredentials)
	case f.unconfirmed[email]:
		f.mu.Unlock()
		return nil, fmt.Errorf("sign in: %w", identity.ErrEmailNotConfirmed)
	}
	session := &identity.Session{AccessToken: "token-" + stored.user.ID, User: stored.user.Clone()}
	f.persisted = session.Clone()
	f.mu.Unlock()

	f.emit(identity.EventSignedIn, session)
	if f.afterSignIn != nil {
		f.afterSignIn()
	}
	return session, nil
}

func (f *fakeIdentity) SignUp(_ context.Context, params identity.SignUpParams) (*identity.SignUpResult, error) {
	f.calls.add("identity.signup")

	f.mu.Lock()
	if _, exists := f.accounts[params.Email]; exists {
		f.mu.Unlock()
		return nil, fmt.Errorf("sign up: %w", identity.ErrAlreadyRegistered)
	}
	f.nextID++
	user := &identity.User{
		ID:           fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID),
		Email:        params.Email,
		UserMetadata: maps.Clone(params.Metadata),
		AppMetadata:  map[string]any{},
		CreatedAt:    time.Now(),
	}
	f.accounts[params.Email] = &account{password: params.Password, user: user.Clone()}

	result := &identity.SignUpResult{User: user.Clone()}
	if f.autoConfirm {
		result.Session = &identity.Session{AccessToken: "token-" + user.ID, User: user.Clone()}
		f.persisted = result.Session.Clone()
	}
	f.mu.Unlock()

	if result.Session != nil {
		f.emit(identity.EventSignedIn, result.Session)
	}
	return result, nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	f.persisted = nil
	err := f.signOutErr
	f.mu.Unlock()

	f.emit(identity.EventSignedOut, nil)
	return err
}

func (f *fakeIdentity) SendPasswordReset(_ context.Context, email, redirectTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets = append(f.resets, email+" -> "+redirectTo)
	return nil
}

func (f *fakeIdentity) UpdateUser(_ context.Context, update identity.UserUpdate) (*identity.User, error) {
	f.mu.Lock()
	if f.persisted == nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("update: %w", identity.ErrNoSession)
	}
	f.updates = append(f.updates, update)

	stored, ok := f.accounts[f.persisted.User.Email]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("update: %w", identity.ErrNoSession)
	}
	if stored.user.UserMetadata == nil {
		stored.user.UserMetadata = make(map[string]any)
	}
	maps.Copy(stored.user.UserMetadata, update.Metadata)
	user := stored.user.Clone()
	session := &identity.Session{AccessToken: f.persisted.AccessToken, User: user.Clone()}
	f.mu.Unlock()

	f.emit(identity.EventUserUpdated, session)
	return user, nil
}

func (f *fakeIdentity) RecoverSession(_ context.Context, accessToken, _ string) (*identity.Session, error) {
	f.mu.Lock()
	if f.emptyRecovery {
		f.mu.Unlock()
		return nil, nil
	}
	var found *identity.User
	for _, stored := range f.accounts {
		if "recovery-"+stored.user.ID == accessToken {
			found = stored.user.Clone()
		}
	}
	if found == nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("recover: %w", identity.ErrNoSession)
	}
	session := &identity.Session{AccessToken: accessToken, User: found}
	f.persisted = session.Clone()
	f.mu.Unlock()

	f.emit(identity.EventPasswordRecovery, session)
	return session, nil
}

func (f *fakeIdentity) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

// # Profile Store

type fakeProfiles struct {
	mu   sync.Mutex
	rows map[string]*profile.Profile

	// gate, when set, holds every GetByID until closed.
	gate    chan struct{}
	started chan string

	insertErr error
	calls     *callLog
}

func newFakeProfiles(calls *callLog) *fakeProfiles {
	return &fakeProfiles{
		rows:    make(map[string]*profile.Profile),
		started: make(chan string, 16),
		calls:   calls,
	}
}

func (f *fakeProfiles) put(row *profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ID] = row.Clone()
}

func (f *fakeProfiles) row(id string) *profile.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Clone()
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	select {
	case f.started <- id:
	default:
	}

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("Profile")
	}
	return row.Clone(), nil
}

func (f *fakeProfiles) Insert(_ context.Context, row *profile.Profile) (*profile.Profile, error) {
	f.calls.add("profiles.insert")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if _, exists := f.rows[row.ID]; exists {
		return nil, apperr.Conflict("Resource already exists")
	}
	stored := row.Clone()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.rows[row.ID] = stored
	return stored.Clone(), nil
}

func (f *fakeProfiles) UpdateByID(_ context.Context, id string, update profile.Update) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("Profile")
	}
	set := func(target *string, value *string) {
		if value != nil {
			*target = *value
		}
	}
	set(&row.Name, update.Name)
	set(&row.MobileNo, update.MobileNo)
	set(&row.City, update.City)
	set(&row.Country, update.Country)
	set(&row.AvatarURL, update.AvatarURL)
	if update.Role != nil {
		row.Role = *update.Role
	}
	row.UpdatedAt = time.Now()
	return row.Clone(), nil
}

// # File Store

type fakeFiles struct {
	mu           sync.Mutex
	uploads      map[string]string
	removed      []string
	contentTypes []string
	calls        *callLog
}

func newFakeFiles(calls *callLog) *fakeFiles {
	return &fakeFiles{uploads: make(map[string]string), calls: calls}
}

func (f *fakeFiles) Upload(_ context.Context, bucket, path string, _ []byte, contentType string) (string, error) {
	f.calls.add("files.upload")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[bucket+"/"+path] = contentType
	f.contentTypes = append(f.contentTypes, contentType)
	return path, nil
}

func (f *fakeFiles) PublicURL(bucket, storedPath string) string {
	return "https://cdn.motorhub.test/" + bucket + "/" + storedPath
}

func (f *fakeFiles) Remove(_ context.Context, bucket string, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, path := range paths {
		f.removed = append(f.removed, bucket+"/"+path)
	}
	return nil
}

func (f *fakeFiles) uploaded() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.uploads)
}

// # Local Store

type fakeLocal struct {
	mu     sync.Mutex
	purges int
}

func (f *fakeLocal) Purge(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return 3, nil
}

func (f *fakeLocal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purges
}

// # Notifier

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	messages := make([]string, 0, len(n.notices))
	for _, notice := range n.notices {
		messages = append(messages, notice.Message)
	}
	return messages
}

// # Harness

type harness struct {
	manager  *Manager
	identity *fakeIdentity
	profiles *fakeProfiles
	files    *fakeFiles
	local    *fakeLocal
	notices  *recordingNotifier
	calls    *callLog
}

func testOptions() Options {
	return Options{
		AvatarBucket:   "profile-pictures",
		SignupRedirect: "http://console.test/profile",
		ResetRedirect:  "http://console.test/reset-password",
		ReadRetries:    2,
		ReadRetryBase:  time.Millisecond,
		FetchTimeout:   2 * time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	calls := &callLog{}
	h := &harness{
		identity: newFakeIdentity(calls),
		profiles: newFakeProfiles(calls),
		files:    newFakeFiles(calls),
		local:    &fakeLocal{},
		notices:  &recordingNotifier{},
		calls:    calls,
	}
	h.manager = h.start(t)
	return h
}

// start builds a manager over the harness fakes, as a process restart would.
func (h *harness) start(t *testing.T) *Manager {
	t.Helper()
	manager, err := New(Dependencies{
		Identity: h.identity,
		Profiles: h.profiles,
		Files:    h.files,
		Local:    h.local,
		Notifier: h.notices,
		Logger:   slog.New(slog.DiscardHandler),
	}, testOptions())
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	return manager
}

// bootstrapped returns a harness whose manager has finished bootstrapping.
func bootstrapped(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	require.NoError(t, h.manager.Bootstrap(context.Background()))
	return h
}

// flush waits until every message queued before it has been applied.
func flush(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.apply(func(*resolved) {}))
}

func rider(id, email string) *identity.User {
	return &identity.User{
		ID:           id,
		Email:        email,
		UserMetadata: map[string]any{"name": "Rider " + id, "city": "Pune"},
		AppMetadata:  map[string]any{},
	}
}

func signedIn(user *identity.User) *identity.Session {
	return &identity.Session{AccessToken: "token-" + user.ID, User: user.Clone()}
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
