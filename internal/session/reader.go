package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Abhayjain-py/deepshield/internal/domain"
	"github.com/Abhayjain-py/deepshield/internal/kvstore"
)

// identityRecord is the persisted shape of the session identity key.
type identityRecord struct {
	SubjectIdentifier string    `json:"subject_identifier"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Reader is the read-only session accessor. Components other than the
// Manager observe session validity exclusively through it.
type Reader struct {
	store *kvstore.Store
	now   func() time.Time
}

// NewReader creates a reader over the shared store.
func NewReader(store *kvstore.Store) *Reader {
	return &Reader{store: store, now: time.Now}
}

// Current returns the persisted Session, or false when absent. A session is
// only "present" when both the credential and a parseable identity record
// exist; anything partial reads as absent.
func (r *Reader) Current() (domain.Session, bool) {
	ctx := context.Background()

	cred, ok, err := r.store.Get(ctx, kvstore.KeyCredential)
	if err != nil || !ok || cred == "" {
		return domain.Session{}, false
	}
	raw, ok, err := r.store.Get(ctx, kvstore.KeyIdentity)
	if err != nil || !ok {
		return domain.Session{}, false
	}

	var identity identityRecord
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return domain.Session{}, false
	}
	if identity.SubjectIdentifier == "" {
		return domain.Session{}, false
	}

	return domain.Session{
		SubjectIdentifier: identity.SubjectIdentifier,
		Credential:        cred,
		IssuedAt:          identity.IssuedAt,
		ExpiresAt:         identity.ExpiresAt,
	}, true
}

// IsValid reports whether a session is present and its credential's embedded
// expiry claim is strictly in the future. Detection is fail-closed: a
// credential whose expiry cannot be parsed is treated as expired, never as
// valid.
func (r *Reader) IsValid() bool {
	sess, ok := r.Current()
	if !ok {
		return false
	}
	expiry, ok := credentialExpiry(sess.Credential)
	if !ok {
		return false
	}
	return expiry.After(r.now())
}

// Credential returns the current credential when a valid session exists. It
// satisfies the transport client's credential source.
func (r *Reader) Credential() (string, bool) {
	if !r.IsValid() {
		return "", false
	}
	sess, ok := r.Current()
	if !ok {
		return "", false
	}
	return sess.Credential, true
}

// credentialExpiry extracts the expiry claim embedded in the credential. The
// client holds no signing secret, so the token is decoded without signature
// verification; the server remains the authority on authenticity. Absence of
// a parseable expiry returns false.
func credentialExpiry(credential string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(credential, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
