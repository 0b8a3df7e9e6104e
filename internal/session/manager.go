// Package session owns the authentication session lifecycle: one-time
// passcode challenges, the persisted Session record, expiry polling,
// cross-process observation, and forced logout. It is the single writer of
// the session keys in the shared store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/Abhayjain-py/deepshield/internal/domain"
	"github.com/Abhayjain-py/deepshield/internal/kvstore"
	"github.com/Abhayjain-py/deepshield/internal/transport"
)

// PasscodeLength is the exact length of a one-time passcode. Input of any
// other length is rejected locally, before a network call.
const PasscodeLength = 6

// Local validation failures. These never reach the network and are reported
// synchronously to the caller.
var (
	ErrInvalidIdentifier = errors.New("identifier is not a valid address")
	ErrInvalidPasscode   = errors.New("passcode must be exactly 6 digits")
	ErrNoChallenge       = errors.New("no challenge was initiated in this context")
)

// ErrCredentialRejected wraps the server's rejection of a passcode.
var ErrCredentialRejected = errors.New("passcode rejected")

// State is the manager's authentication state.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// Signal names the events callers can subscribe to.
type Signal string

const (
	SignalEstablished Signal = "session-established"
	SignalEnded       Signal = "session-ended"
	SignalRedirect    Signal = "redirect-login"
)

// Caller issues backend calls. Satisfied by *transport.Client.
type Caller interface {
	Call(ctx context.Context, ep transport.Endpoint, payload, out any) error
}

// Manager is the single authority for "is this context authenticated".
type Manager struct {
	*Reader

	store   *kvstore.Store
	caller  Caller
	watcher *kvstore.Watcher
	logger  *slog.Logger

	pollInterval time.Duration
	protected    bool
	clock        func() time.Time

	// mu serializes every session mutation: the decision to mutate and the
	// durable store write happen under one critical section, so no two
	// operations interleave between them.
	mu                sync.Mutex
	state             State
	pendingIdentifier string
	pollCancel        context.CancelFunc
	pollDone          chan struct{}
	unwatch           func()

	sigMu sync.Mutex
	subs  map[Signal]map[int]func()
	next  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the expiry-poll interval. It also bounds how quickly
// a logout in another process is observed here.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithProtectedContext marks this context as a protected view. Terminate in a
// protected context additionally emits the redirect signal.
func WithProtectedContext(protected bool) Option {
	return func(m *Manager) { m.protected = protected }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
		m.Reader.now = clock
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager over the shared store.
func NewManager(store *kvstore.Store, caller Caller, opts ...Option) *Manager {
	m := &Manager{
		Reader:       NewReader(store),
		store:        store,
		caller:       caller,
		logger:       slog.Default(),
		pollInterval: 15 * time.Second,
		clock:        time.Now,
		state:        StateAnonymous,
		subs:         make(map[Signal]map[int]func()),
	}
	for _, o := range opts {
		o(m)
	}
	m.watcher = kvstore.NewWatcher(store, m.pollInterval, m.logger)
	if m.IsValid() {
		// Another context already authenticated; adopt its session.
		m.state = StateAuthenticated
	}
	return m
}

// Subscribe registers fn for the named signal. The returned function removes
// the subscription.
func (m *Manager) Subscribe(sig Signal, fn func()) (cancel func()) {
	m.sigMu.Lock()
	defer m.sigMu.Unlock()
	if m.subs[sig] == nil {
		m.subs[sig] = make(map[int]func())
	}
	id := m.next
	m.next++
	m.subs[sig][id] = fn
	return func() {
		m.sigMu.Lock()
		defer m.sigMu.Unlock()
		delete(m.subs[sig], id)
	}
}

func (m *Manager) emit(sig Signal) {
	m.sigMu.Lock()
	fns := make([]func(), 0, len(m.subs[sig]))
	for _, fn := range m.subs[sig] {
		fns = append(fns, fn)
	}
	m.sigMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type sendOTPResponse struct {
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// InitiateChallenge asks the backend to deliver a one-time passcode to the
// identifier out-of-band. The identifier is remembered for the verification
// step, scoped to this context only.
func (m *Manager) InitiateChallenge(ctx context.Context, identifier string) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	var resp sendOTPResponse
	if err := m.caller.Call(ctx, transport.EndpointSendOTP, sendOTPRequest{Email: identifier}, &resp); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticating
	m.pendingIdentifier = identifier
	m.mu.Unlock()

	m.logger.Info("challenge initiated", "identifier", identifier)
	return nil
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type verifyOTPResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        struct {
		Email string `json:"email"`
	} `json:"user"`
}

// CompleteChallenge exchanges identifier and passcode for a Session. The
// passcode length is checked locally first; a challenge must have been
// initiated in this context for the same identifier. On success the full
// Session is written to the store atomically, expiry polling starts, and the
// session-established signal fires.
func (m *Manager) CompleteChallenge(ctx context.Context, identifier, passcode string) (domain.Session, error) {
	if err := validatePasscode(passcode); err != nil {
		return domain.Session{}, err
	}

	m.mu.Lock()
	if m.state != StateAuthenticating || m.pendingIdentifier != identifier {
		m.mu.Unlock()
		return domain.Session{}, ErrNoChallenge
	}
	m.mu.Unlock()

	var resp verifyOTPResponse
	err := m.caller.Call(ctx, transport.EndpointVerifyOTP, verifyOTPRequest{Email: identifier, OTP: passcode}, &resp)
	if err != nil {
		var te *transport.Error
		if errors.As(err, &te) && te.Kind == transport.KindValidation {
			// A failed attempt drops back to anonymous; the caller must
			// re-initiate before trying again.
			m.mu.Lock()
			m.state = StateAnonymous
			m.pendingIdentifier = ""
			m.mu.Unlock()
			return domain.Session{}, errors.Join(ErrCredentialRejected, err)
		}
		return domain.Session{}, err
	}

	sess := domain.Session{
		SubjectIdentifier: resp.User.Email,
		Credential:        resp.AccessToken,
		IssuedAt:          resp.IssuedAt,
		ExpiresAt:         resp.ExpiresAt,
	}
	if sess.SubjectIdentifier == "" {
		sess.SubjectIdentifier = identifier
	}

	identity, err := json.Marshal(identityRecord{
		SubjectIdentifier: sess.SubjectIdentifier,
		IssuedAt:          sess.IssuedAt,
		ExpiresAt:         sess.ExpiresAt,
	})
	if err != nil {
		return domain.Session{}, err
	}

	m.mu.Lock()
	if err := m.store.PutAll(ctx, map[string]string{
		kvstore.KeyCredential: sess.Credential,
		kvstore.KeyIdentity:   string(identity),
	}); err != nil {
		m.mu.Unlock()
		return domain.Session{}, err
	}
	m.state = StateAuthenticated
	m.pendingIdentifier = ""
	m.startPollingLocked()
	m.mu.Unlock()

	m.logger.Info("session established", "identifier", sess.SubjectIdentifier, "expires_at", sess.ExpiresAt)
	m.emit(SignalEstablished)
	return sess, nil
}

// Require returns true when a valid session exists. Otherwise it emits the
// redirect signal and returns false; protected views must check it before
// rendering any data.
func (m *Manager) Require() bool {
	if m.IsValid() {
		return true
	}
	m.emit(SignalRedirect)
	return false
}

// Terminate clears the Session together with the handoff and draft data,
// stops expiry polling, and emits session-ended. In a protected context it
// also emits the redirect signal.
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	err := m.store.DeleteAll(ctx,
		kvstore.KeyCredential,
		kvstore.KeyIdentity,
		kvstore.KeyPendingResult,
		kvstore.KeyDraft,
	)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = StateAnonymous
	m.pendingIdentifier = ""
	m.stopPollingLocked()
	m.mu.Unlock()

	m.logger.Info("session ended")
	m.emit(SignalEnded)
	if m.protected {
		m.emit(SignalRedirect)
	}
	return nil
}

// Watch begins observing the shared store for changes made by other
// processes, and starts expiry polling when a session already exists. Stop
// with Close.
func (m *Manager) Watch(ctx context.Context) {
	m.mu.Lock()
	if m.unwatch == nil {
		m.unwatch = m.watcher.Subscribe(m.onStoreEvent)
		m.watcher.Start(ctx)
	}
	if m.state == StateAuthenticated {
		m.startPollingLocked()
	}
	m.mu.Unlock()
}

// Close stops polling and store observation. It does not clear the session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopPollingLocked()
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	m.watcher.Stop()
}

// onStoreEvent re-reads session state when another process changed it. A
// logout elsewhere is observed here at the next poll, not instantaneously.
func (m *Manager) onStoreEvent(ev kvstore.Event) {
	if ev.Key != kvstore.KeyCredential {
		return
	}

	m.mu.Lock()
	prev := m.state
	if ev.Deleted || !m.IsValid() {
		m.state = StateAnonymous
		m.stopPollingLocked()
	} else {
		m.state = StateAuthenticated
		m.startPollingLocked()
	}
	next := m.state
	m.mu.Unlock()

	switch {
	case prev != StateAuthenticated && next == StateAuthenticated:
		m.emit(SignalEstablished)
	case prev == StateAuthenticated && next != StateAuthenticated:
		m.emit(SignalEnded)
	}
}

// startPollingLocked begins the periodic local expiry check. No network
// round-trip is involved; the check reads the credential's embedded claim.
func (m *Manager) startPollingLocked() {
	if m.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.pollCancel = cancel
	done := make(chan struct{})
	m.pollDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkExpiry(ctx)
			}
		}
	}()
}

func (m *Manager) stopPollingLocked() {
	if m.pollCancel == nil {
		return
	}
	m.pollCancel()
	m.pollCancel = nil
	m.pollDone = nil
}

func (m *Manager) checkExpiry(ctx context.Context) {
	if m.IsValid() {
		return
	}
	m.mu.Lock()
	expired := m.state == StateAuthenticated
	m.mu.Unlock()
	if expired {
		m.logger.Info("session expired")
		if err := m.Terminate(ctx); err != nil {
			m.logger.Warn("failed to clear expired session", "error", err)
		}
	}
}

func validateIdentifier(identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || !strings.Contains(identifier, "@") {
		return ErrInvalidIdentifier
	}
	if _, err := mail.ParseAddress(identifier); err != nil {
		return ErrInvalidIdentifier
	}
	return nil
}

func validatePasscode(passcode string) error {
	if len(passcode) != PasscodeLength {
		return ErrInvalidPasscode
	}
	for _, r := range passcode {
		if r < '0' || r > '9' {
			return ErrInvalidPasscode
		}
	}
	return nil
}
