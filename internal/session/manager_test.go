package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhayjain-py/deepshield/internal/kvstore"
	"github.com/Abhayjain-py/deepshield/internal/transport"
)

func mintCredential(t *testing.T, email string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fakeCaller satisfies Caller without a network.
type fakeCaller struct {
	calls     []string
	verifyErr error

	email   string
	token   string
	issued  time.Time
	expires time.Time
}

func (f *fakeCaller) Call(ctx context.Context, ep transport.Endpoint, payload, out any) error {
	f.calls = append(f.calls, ep.Path)
	if ep != transport.EndpointVerifyOTP {
		return nil
	}
	if f.verifyErr != nil {
		return f.verifyErr
	}
	resp := out.(*verifyOTPResponse)
	resp.AccessToken = f.token
	resp.IssuedAt = f.issued
	resp.ExpiresAt = f.expires
	resp.User.Email = f.email
	return nil
}

func newTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	s, err := kvstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newAuthenticatedManager(t *testing.T, store *kvstore.Store) (*Manager, *fakeCaller) {
	t.Helper()
	ctx := context.Background()
	expires := time.Now().Add(30 * time.Minute)
	caller := &fakeCaller{
		email:   "user@example.com",
		token:   mintCredential(t, "user@example.com", expires),
		issued:  time.Now(),
		expires: expires,
	}
	m := NewManager(store, caller, WithPollInterval(time.Minute))
	t.Cleanup(m.Close)

	require.NoError(t, m.InitiateChallenge(ctx, "user@example.com"))
	_, err := m.CompleteChallenge(ctx, "user@example.com", "123456")
	require.NoError(t, err)
	return m, caller
}

func TestInitiateRejectsMalformedIdentifier(t *testing.T) {
	caller := &fakeCaller{}
	m := NewManager(newTestStore(t), caller)
	defer m.Close()

	for _, id := range []string{"", "   ", "no-at-sign", "double@@example.com", "a b@example.com"} {
		err := m.InitiateChallenge(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "identifier %q", id)
	}
	assert.Empty(t, caller.calls, "local rejection must not reach the network")
	assert.Equal(t, StateAnonymous, m.State())
}

func TestCompleteRejectsMalformedPasscode(t *testing.T) {
	caller := &fakeCaller{}
	m := NewManager(newTestStore(t), caller)
	defer m.Close()

	require.NoError(t, m.InitiateChallenge(context.Background(), "user@example.com"))
	caller.calls = nil

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		_, err := m.CompleteChallenge(context.Background(), "user@example.com", code)
		assert.ErrorIs(t, err, ErrInvalidPasscode, "passcode %q", code)
	}
	assert.Empty(t, caller.calls)
}

func TestCompleteWithoutChallenge(t *testing.T) {
	m := NewManager(newTestStore(t), &fakeCaller{})
	defer m.Close()

	_, err := m.CompleteChallenge(context.Background(), "user@example.com", "123456")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestCompleteRequiresMatchingIdentifier(t *testing.T) {
	m := NewManager(newTestStore(t), &fakeCaller{})
	defer m.Close()

	require.NoError(t, m.InitiateChallenge(context.Background(), "user@example.com"))
	_, err := m.CompleteChallenge(context.Background(), "other@example.com", "123456")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestChallengeFlowEstablishesSession(t *testing.T) {
	store := newTestStore(t)
	m, _ := newAuthenticatedManager(t, store)

	assert.Equal(t, StateAuthenticated, m.State())
	assert.True(t, m.IsValid())

	sess, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "user@example.com", sess.SubjectIdentifier)
	assert.NotEmpty(t, sess.Credential)

	cred, ok := m.Credential()
	require.True(t, ok)
	assert.Equal(t, sess.Credential, cred)
}

func TestSessionAdoptedByNewManager(t *testing.T) {
	store := newTestStore(t)
	newAuthenticatedManager(t, store)

	// A second manager over the same store starts out authenticated: a new
	// process adopts an existing login.
	second := NewManager(store, &fakeCaller{})
	defer second.Close()
	assert.Equal(t, StateAuthenticated, second.State())
	assert.True(t, second.IsValid())
}

func TestEstablishedSignalFires(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	expires := time.Now().Add(30 * time.Minute)
	caller := &fakeCaller{
		email:   "user@example.com",
		token:   mintCredential(t, "user@example.com", expires),
		expires: expires,
	}
	m := NewManager(store, caller)
	defer m.Close()

	var established int
	m.Subscribe(SignalEstablished, func() { established++ })

	require.NoError(t, m.InitiateChallenge(ctx, "user@example.com"))
	_, err := m.CompleteChallenge(ctx, "user@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, 1, established)
}

func TestRejectedPasscodeDropsToAnonymous(t *testing.T) {
	caller := &fakeCaller{
		verifyErr: &transport.Error{Kind: transport.KindValidation, Status: 400, Message: "Invalid or expired OTP"},
	}
	m := NewManager(newTestStore(t), caller)
	defer m.Close()

	require.NoError(t, m.InitiateChallenge(context.Background(), "user@example.com"))
	_, err := m.CompleteChallenge(context.Background(), "user@example.com", "000000")
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Equal(t, StateAnonymous, m.State())

	// The failed attempt consumed the challenge.
	_, err = m.CompleteChallenge(context.Background(), "user@example.com", "123456")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestServerFaultKeepsChallenge(t *testing.T) {
	caller := &fakeCaller{
		verifyErr: &transport.Error{Kind: transport.KindServerFault, Status: 500, Message: "boom"},
	}
	m := NewManager(newTestStore(t), caller)
	defer m.Close()

	require.NoError(t, m.InitiateChallenge(context.Background(), "user@example.com"))
	_, err := m.CompleteChallenge(context.Background(), "user@example.com", "123456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialRejected)
	assert.Equal(t, StateAuthenticating, m.State())
}

func TestRequireEmitsRedirect(t *testing.T) {
	m := NewManager(newTestStore(t), &fakeCaller{})
	defer m.Close()

	var redirects int
	m.Subscribe(SignalRedirect, func() { redirects++ })

	assert.False(t, m.Require())
	assert.Equal(t, 1, redirects)
}

func TestTerminateClearsAllClientState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m, _ := newAuthenticatedManager(t, store)

	require.NoError(t, store.Put(ctx, kvstore.KeyPendingResult, `{"verdict":"Deepfake"}`))
	require.NoError(t, store.Put(ctx, kvstore.KeyDraft, `{"text":"draft"}`))

	var ended int
	m.Subscribe(SignalEnded, func() { ended++ })

	require.NoError(t, m.Terminate(ctx))
	assert.Equal(t, StateAnonymous, m.State())
	assert.False(t, m.IsValid())
	assert.Equal(t, 1, ended)

	for _, key := range []string{kvstore.KeyCredential, kvstore.KeyIdentity, kvstore.KeyPendingResult, kvstore.KeyDraft} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestTerminateInProtectedContextRedirects(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expires := time.Now().Add(30 * time.Minute)
	caller := &fakeCaller{
		email:   "user@example.com",
		token:   mintCredential(t, "user@example.com", expires),
		expires: expires,
	}
	m := NewManager(store, caller, WithProtectedContext(true))
	defer m.Close()

	require.NoError(t, m.InitiateChallenge(ctx, "user@example.com"))
	_, err := m.CompleteChallenge(ctx, "user@example.com", "123456")
	require.NoError(t, err)

	var redirects int
	m.Subscribe(SignalRedirect, func() { redirects++ })
	require.NoError(t, m.Terminate(ctx))
	assert.Equal(t, 1, redirects)
}

func TestExpiredCredentialIsInvalid(t *testing.T) {
	store := newTestStore(t)
	m, _ := newAuthenticatedManager(t, store)

	// Move the clock past the credential's embedded expiry.
	m.Reader.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.False(t, m.IsValid())
	_, ok := m.Credential()
	assert.False(t, ok)
}

func TestUnparseableCredentialFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutAll(ctx, map[string]string{
		kvstore.KeyCredential: "not-a-token",
		kvstore.KeyIdentity:   `{"subject_identifier":"user@example.com"}`,
	}))

	r := NewReader(store)
	_, present := r.Current()
	assert.True(t, present, "session is present")
	assert.False(t, r.IsValid(), "but never valid")
}

func TestPartialSessionReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, kvstore.KeyCredential, mintCredential(t, "u@e.c", time.Now().Add(time.Hour))))

	r := NewReader(store)
	_, present := r.Current()
	assert.False(t, present)
	assert.False(t, r.IsValid())
}

func TestWatchObservesLogoutElsewhere(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first, _ := newAuthenticatedManager(t, store)

	second := NewManager(store, &fakeCaller{}, WithPollInterval(10*time.Millisecond))
	defer second.Close()
	require.Equal(t, StateAuthenticated, second.State())

	var ended atomic.Int32
	second.Subscribe(SignalEnded, func() { ended.Add(1) })
	second.Watch(ctx)

	require.NoError(t, first.Terminate(ctx))
	assert.Eventually(t, func() bool {
		return second.State() == StateAnonymous
	}, time.Second, 5*time.Millisecond, "logout elsewhere must be observed at the next poll")
	assert.Eventually(t, func() bool {
		return ended.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWatchObservesLoginElsewhere(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	second := NewManager(store, &fakeCaller{}, WithPollInterval(10*time.Millisecond))
	defer second.Close()
	require.Equal(t, StateAnonymous, second.State())

	var established atomic.Int32
	second.Subscribe(SignalEstablished, func() { established.Add(1) })
	second.Watch(ctx)

	newAuthenticatedManager(t, store)
	assert.Eventually(t, func() bool {
		return second.State() == StateAuthenticated
	}, time.Second, 5*time.Millisecond, "login elsewhere must be observed at the next poll")
	assert.Eventually(t, func() bool {
		return established.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCheckExpiryTerminatesExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m, _ := newAuthenticatedManager(t, store)

	m.Reader.now = func() time.Time { return time.Now().Add(time.Hour) }

	var ended int
	m.Subscribe(SignalEnded, func() { ended++ })
	m.checkExpiry(ctx)

	assert.Equal(t, StateAnonymous, m.State())
	assert.Equal(t, 1, ended)
	_, ok, err := store.Get(ctx, kvstore.KeyCredential)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatePasscode(t *testing.T) {
	assert.NoError(t, validatePasscode("123456"))
	assert.Error(t, validatePasscode("12345"))
	assert.Error(t, validatePasscode("12345x"))
}
