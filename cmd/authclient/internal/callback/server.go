// Package callback runs the loopback server that receives the authorization
// code at the end of a browser login.
package callback

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ErrAuthorizationDenied is returned when the issuer redirects back with an
// error instead of a code.
var ErrAuthorizationDenied = goerrors.New("authorization denied", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden)

// Handler completes the login with the received state and code.
type Handler func(ctx context.Context, state, code string) error

// Server listens on the redirect URL host and hands the first callback to
// Handler. The outcome is delivered through Wait.
type Server struct {
	app    *fiber.App
	addr   string
	path   string
	handle Handler
	result chan error
}

// New creates a Server for redirectURL, e.g. "http://127.0.0.1:8085/callback".
func New(redirectURL string, handle Handler) (*Server, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect url: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect url must use http on loopback, got %q", u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("redirect url needs an explicit port: %w", err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		addr:   net.JoinHostPort(host, port),
		path:   path,
		handle: handle,
		result: make(chan error, 1),
	}
	s.app.Get(path, s.callback)
	return s, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			s.deliver(fmt.Errorf("callback server: %w", err))
		}
	}()
}

// Wait blocks until a callback was handled or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case err := <-s.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) callback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		err := fmt.Errorf("%w: %s %s", ErrAuthorizationDenied, reason, c.Query("error_description"))
		s.deliver(err)
		return c.Status(fiber.StatusForbidden).SendString("Login failed, you can close this window.")
	}

	err := s.handle(c.UserContext(), c.Query("state"), c.Query("code"))
	s.deliver(err)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Login failed, you can close this window.")
	}
	return c.SendString("Login complete, you can close this window.")
}

// deliver keeps the first outcome only.
func (s *Server) deliver(err error) {
	select {
	case s.result <- err:
	default:
	}
}
