package policy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhayjain-py/deepshield/internal/transport"
)

type recordingNotifier struct {
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) { r.notes = append(r.notes, n) }

type recordingTerminator struct {
	calls int
}

func (r *recordingTerminator) Terminate(ctx context.Context) error {
	r.calls++
	return nil
}

func newTestPolicy(t *testing.T) (*Policy, *recordingTerminator, *recordingNotifier) {
	t.Helper()
	term := &recordingTerminator{}
	notes := &recordingNotifier{}
	p, err := New(context.Background(), term, notes, WithCooldown(5*time.Second))
	require.NoError(t, err)
	return p, term, notes
}

func TestEngineDecisions(t *testing.T) {
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		kind string
		want string
	}{
		{"network", decisionRetry},
		{"authentication", decisionLogout},
		{"validation", decisionSurface},
		{"rate_limited", decisionCooldown},
		{"server_fault", decisionGenericRetry},
		{"unknown", decisionDiagnose},
		{"", decisionDiagnose},
	}
	for _, tt := range tests {
		got, err := engine.Evaluate(context.Background(), tt.kind)
		require.NoError(t, err, tt.kind)
		assert.Equal(t, tt.want, got, tt.kind)
	}
}

func TestHandleNilError(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), nil)
	assert.Equal(t, Action{}, action)
	assert.Empty(t, notes.notes)
	assert.Zero(t, term.calls)
}

func TestHandleNetworkIsRetryableNeverAutomatic(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindNetwork, Message: "dial refused"})
	assert.Equal(t, ActionRetry, action.Type)
	assert.True(t, action.Retryable)
	assert.Zero(t, term.calls)
	require.Len(t, notes.notes, 1)
	assert.True(t, notes.notes[0].Retryable)
}

func TestHandleAuthenticationTearsDownSessionOnce(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindAuthentication, Status: 401})
	assert.Equal(t, ActionRedirectLogin, action.Type)
	assert.Equal(t, 1, term.calls)
	assert.Len(t, notes.notes, 1)
}

func TestHandleValidationSurfacesServerMessage(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{
		Kind: transport.KindValidation, Status: 400, Message: "Complaint text is required",
	})
	assert.Equal(t, ActionSurface, action.Type)
	assert.Equal(t, "Complaint text is required", action.Message)
	assert.False(t, action.Retryable)
	assert.Zero(t, term.calls)
	require.Len(t, notes.notes, 1)
	assert.Equal(t, "Complaint text is required", notes.notes[0].Message)
}

func TestHandleValidationWithoutServerMessage(t *testing.T) {
	p, _, _ := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindValidation, Status: 422})
	assert.Equal(t, ActionSurface, action.Type)
	assert.NotEmpty(t, action.Message)
}

func TestHandleRateLimitedGetsCooldown(t *testing.T) {
	p, _, _ := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindRateLimited, Status: 429})
	assert.Equal(t, ActionCooldown, action.Type)
	assert.Equal(t, 5*time.Second, action.Cooldown)
	assert.False(t, action.Retryable)
}

func TestHandleServerFaultIsGenericRetry(t *testing.T) {
	p, term, _ := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindServerFault, Status: 503})
	assert.Equal(t, ActionRetry, action.Type)
	assert.True(t, action.Retryable)
	assert.Zero(t, term.calls)
}

func TestHandleUnknownDiagnoses(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), &transport.Error{Kind: transport.KindUnknown, Status: 418})
	assert.Equal(t, ActionDiagnose, action.Type)
	assert.Zero(t, term.calls)
	assert.Len(t, notes.notes, 1)
}

func TestHandleNonTransportError(t *testing.T) {
	p, term, notes := newTestPolicy(t)

	action := p.Handle(context.Background(), errors.New("plain failure"))
	assert.Equal(t, ActionDiagnose, action.Type)
	assert.Zero(t, term.calls)
	assert.Len(t, notes.notes, 1)
}

func TestHandleWrappedTransportError(t *testing.T) {
	p, term, _ := newTestPolicy(t)

	wrapped := fmt.Errorf("loading dashboard: %w",
		&transport.Error{Kind: transport.KindAuthentication, Status: 401})
	action := p.Handle(context.Background(), wrapped)
	assert.Equal(t, ActionRedirectLogin, action.Type)
	assert.Equal(t, 1, term.calls)
}

func TestEveryFailureProducesExactlyOneNotification(t *testing.T) {
	p, _, notes := newTestPolicy(t)

	kinds := []transport.ErrorKind{
		transport.KindNetwork,
		transport.KindAuthentication,
		transport.KindValidation,
		transport.KindRateLimited,
		transport.KindServerFault,
		transport.KindUnknown,
	}
	for _, kind := range kinds {
		p.Handle(context.Background(), &transport.Error{Kind: kind})
	}
	require.Len(t, notes.notes, len(kinds))

	seen := make(map[string]bool)
	for _, n := range notes.notes {
		assert.NotEmpty(t, n.ID)
		assert.NotEmpty(t, n.Message)
		assert.False(t, seen[n.ID], "notification IDs must be unique")
		seen[n.ID] = true
	}
}
