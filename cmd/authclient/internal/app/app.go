// Package app wires the session engine, the OIDC provider, the credential
// store and the customer sync service for the authclient CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/customers"
	"github.com/goliatone/go-auth-client/provider/oidc"
	"github.com/goliatone/go-auth-client/repository"
)

// App holds the wired components.
type App struct {
	Config     *authclient.Config
	Logger     authclient.Logger
	Store      authclient.CredentialStore
	Provider   *oidc.Provider
	Controller *authclient.Controller
	Watcher    *authclient.Watcher
	Customers  *customers.Service

	closers []io.Closer
}

// Option configures New.
type Option func(*options)

type options struct {
	output     io.Writer
	redirector oidc.Redirector
	notifier   authclient.Notifier
}

// WithOutput sets where logs are written. Default: stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithRedirector replaces the default redirector, which prints the URL.
func WithRedirector(r oidc.Redirector) Option {
	return func(o *options) {
		o.redirector = r
	}
}

// WithNotifier replaces the pterm notifier.
func WithNotifier(n authclient.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// New builds an App from cfg. The issuer is discovered, so ctx bounds the
// discovery request.
func New(ctx context.Context, cfg *authclient.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{
		output:     os.Stderr,
		redirector: oidc.RedirectorFunc(printRedirect),
		notifier:   authclient.NotifierFunc(printNotice),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	a := &App{Config: cfg}
	logger := NewLoggerFactory(cfg.Logging, o.output)
	a.Logger = logger("session")

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	provider, err := oidc.New(ctx, oidc.ConfigFromProvider(cfg.Provider),
		oidc.WithCredentialStore(store),
		oidc.WithRedirector(o.redirector),
		oidc.WithLogger(logger("oidc")),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Provider = provider
	a.closers = append(a.closers, provider)

	controllerOpts := []authclient.ControllerOption{
		authclient.WithLogger(a.Logger),
		authclient.WithSessionConfig(cfg.Session),
		authclient.WithNotifier(o.notifier),
	}
	if cfg.Customers.Enabled {
		// the service needs the controller's transport, so it is bound late
		controllerOpts = append(controllerOpts, authclient.WithCustomerSync(
			authclient.CustomerSyncFunc(func(ctx context.Context) error {
				if a.Customers == nil {
					return errors.New("customer service not ready")
				}
				return a.Customers.SyncCurrentUser(ctx)
			}),
		))
	}

	a.Controller = authclient.NewController(provider, controllerOpts...)
	a.Watcher = authclient.NewWatcher(a.Controller)

	if cfg.Customers.Enabled {
		svc, err := customers.NewService(customers.Config{
			GatewayURL: cfg.Customers.GatewayURL,
			Path:       cfg.Customers.Path,
			HTTPClient: a.Controller.Transport().Client(),
			Logger:     logger("customers"),
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Customers = svc
	}

	return a, nil
}

// Close stops the watcher, waits for background work and releases the
// store and provider.
func (a *App) Close() error {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Controller != nil {
		a.Controller.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (authclient.CredentialStore, error) {
	if dsn := a.Config.Provider.CredentialsDatabase; dsn != "" {
		repo, err := repository.NewSQLiteStore(ctx, dsn, a.Config.Provider.ClientID)
		if err != nil {
			return nil, fmt.Errorf("opening credential database: %w", err)
		}
		a.closers = append(a.closers, repo)
		return repo, nil
	}

	store, err := repository.NewFileStore(a.Config.Provider.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("creating credential store: %w", err)
	}
	return store, nil
}

func printRedirect(_ context.Context, target string) error {
	pterm.Info.Println("Open the following URL in your browser to continue:")
	pterm.Println(target)
	return nil
}

func printNotice(_ context.Context, notice authclient.Notice) {
	switch notice.Kind {
	case authclient.NoticeSuccess:
		pterm.Success.Println(notice.Message)
	case authclient.NoticeError:
		pterm.Error.Println(notice.Message)
	default:
		pterm.Info.Println(notice.Message)
	}
}
