package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Abhayjain-py/deepshield/internal/client"
	"github.com/Abhayjain-py/deepshield/internal/config"
	"github.com/Abhayjain-py/deepshield/internal/handoff"
	"github.com/Abhayjain-py/deepshield/internal/kvstore"
	"github.com/Abhayjain-py/deepshield/internal/policy"
	"github.com/Abhayjain-py/deepshield/internal/session"
	"github.com/Abhayjain-py/deepshield/internal/transport"
)

// app is the composition root for one command invocation. All components are
// plain instances wired here; nothing is a package-level singleton.
type app struct {
	store  *kvstore.Store
	client *client.Client
}

// printNotifier renders policy notifications on stderr, one line each.
type printNotifier struct{}

func (printNotifier) Notify(n policy.Notification) {
	fmt.Fprintf(os.Stderr, "! %s\n", n.Message)
}

// newApp wires the client stack. protected marks commands that must not run
// without a valid session.
func newApp(ctx context.Context, protected bool) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := config.LoadClient()
	if v := viper.GetString("server"); v != "" {
		cfg.BaseURL = v
	}
	if v := viper.GetString("state"); v != "" {
		cfg.StatePath = v
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := kvstore.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	reader := session.NewReader(store)
	tc := transport.NewClient(cfg.BaseURL, reader,
		transport.WithTimeouts(cfg.JSONTimeout, cfg.UploadTimeout))
	sm := session.NewManager(store, tc,
		session.WithPollInterval(cfg.PollInterval),
		session.WithProtectedContext(protected),
		session.WithLogger(logger))

	sm.Subscribe(session.SignalRedirect, func() {
		fmt.Fprintln(os.Stderr, "A session is required. Run 'shieldctl login' to sign in.")
	})
	// Long-lived invocations (a login blocked on the passcode prompt, say)
	// observe logins and logouts from other processes at the next poll.
	sm.Watch(ctx)

	pol, err := policy.New(ctx, sm, printNotifier{}, policy.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	hs := handoff.New(store)
	ds := client.NewDraftStore(store)

	return &app{
		store:  store,
		client: client.New(tc, sm, hs, ds, pol),
	}, nil
}

func (a *app) Close() {
	a.client.Sessions().Close()
	a.store.Close()
}

// requireSession gates a protected command before it renders anything.
func (a *app) requireSession() error {
	if !a.client.Sessions().Require() {
		return fmt.Errorf("not signed in")
	}
	return nil
}
