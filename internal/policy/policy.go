// Package policy turns every transport failure into exactly one concrete
// user-facing action. It is the only component that interprets error kinds;
// no call site applies its own status-code handling.
package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abhayjain-py/deepshield/internal/transport"
)

// ActionType is the concrete recovery behavior chosen for a failure.
type ActionType string

const (
	ActionRetry         ActionType = "retry"          // user may retry immediately; never automatic
	ActionRedirectLogin ActionType = "redirect-login" // session torn down, caller navigates to login
	ActionSurface       ActionType = "surface"        // show the server's message, no retry
	ActionCooldown      ActionType = "cooldown"       // block the triggering control for the interval
	ActionDiagnose      ActionType = "diagnose"       // generic message, details logged
)

// Action is the single outcome the caller acts on.
type Action struct {
	Type      ActionType
	Message   string
	Retryable bool
	Cooldown  time.Duration
}

// Notification is the transient, dismissible message shown to the user.
// Every failure produces exactly one.
type Notification struct {
	ID        string
	Message   string
	Retryable bool
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n Notification)
}

// Terminator tears down the session. Satisfied by *session.Manager.
type Terminator interface {
	Terminate(ctx context.Context) error
}

// Policy applies the decision table uniformly everywhere a call is made.
type Policy struct {
	engine   *Engine
	sessions Terminator
	notifier Notifier
	logger   *slog.Logger
	cooldown time.Duration
}

// Option configures a Policy.
type Option func(*Policy)

// WithCooldown sets the fixed rate-limit cooldown interval.
func WithCooldown(d time.Duration) Option {
	return func(p *Policy) { p.cooldown = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// New creates a policy bound to a session terminator and a notifier.
func New(ctx context.Context, sessions Terminator, notifier Notifier, opts ...Option) (*Policy, error) {
	engine, err := NewEngine(ctx, DefaultPolicy)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		engine:   engine,
		sessions: sessions,
		notifier: notifier,
		logger:   slog.Default(),
		cooldown: 30 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Handle maps err to one Action, performs its side effects (session teardown
// for authentication failures, diagnostic logging for unknown ones) and emits
// exactly one notification. A nil err returns the zero Action. No failure is
// silently swallowed.
func (p *Policy) Handle(ctx context.Context, err error) Action {
	if err == nil {
		return Action{}
	}

	kind := transport.KindUnknown
	message := ""
	var te *transport.Error
	if errors.As(err, &te) {
		kind = te.Kind
		message = te.Message
	}

	decision, evalErr := p.engine.Evaluate(ctx, string(kind))
	if evalErr != nil {
		p.logger.Error("policy evaluation failed", "error", evalErr)
		decision = decisionDiagnose
	}

	action := p.action(decision, message)

	if action.Type == ActionRedirectLogin {
		if termErr := p.sessions.Terminate(ctx); termErr != nil {
			p.logger.Warn("session teardown failed", "error", termErr)
		}
	}
	if action.Type == ActionDiagnose {
		p.logger.Error("unclassified call failure", "error", err)
	}

	p.notifier.Notify(Notification{
		ID:        uuid.New().String(),
		Message:   action.Message,
		Retryable: action.Retryable,
	})

	return action
}

func (p *Policy) action(decision, serverMessage string) Action {
	switch decision {
	case decisionRetry:
		return Action{
			Type:      ActionRetry,
			Message:   "The service could not be reached. Check your connection and try again.",
			Retryable: true,
		}
	case decisionLogout:
		return Action{
			Type:    ActionRedirectLogin,
			Message: "Your session has ended. Please sign in again.",
		}
	case decisionSurface:
		msg := serverMessage
		if msg == "" {
			msg = "The request was rejected. Please review your input."
		}
		return Action{Type: ActionSurface, Message: msg}
	case decisionCooldown:
		return Action{
			Type:     ActionCooldown,
			Message:  "Too many requests. Please wait a moment before trying again.",
			Cooldown: p.cooldown,
		}
	case decisionGenericRetry:
		return Action{
			Type:      ActionRetry,
			Message:   "Something went wrong on our side. Please try again.",
			Retryable: true,
		}
	default:
		return Action{
			Type:    ActionDiagnose,
			Message: "Something went wrong. Please try again later.",
		}
	}
}
