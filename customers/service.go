package customers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	authclient "github.com/goliatone/go-auth-client"
)

// DefaultPath is the customer service endpoint that returns, and creates on
// first access, the customer record of the authenticated user.
const DefaultPath = "/customer-service/api/customers/me"

var _ authclient.CustomerSync = (*Service)(nil)

// Customer is the backend record of the current user.
type Customer struct {
	ID         string `json:"id"`
	KeycloakID string `json:"keycloakId"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// Config configures the customer sync service.
type Config struct {
	GatewayURL string
	Path       string
	// HTTPClient should attach credentials, e.g. the client of an
	// authclient.Transport.
	HTTPClient *http.Client
	Logger     authclient.Logger
	// OnSynced is called with the customer after a successful sync.
	OnSynced func(ctx context.Context, customer *Customer)
}

// Service synchronizes the authenticated user into the customer service.
type Service struct {
	endpoint string
	client   *http.Client
	logger   authclient.Logger
	onSynced func(ctx context.Context, customer *Customer)
}

// NewService creates a new sync service.
func NewService(cfg Config) (*Service, error) {
	gateway := strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/")
	if gateway == "" {
		return nil, errors.New("customers: gateway url is required")
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = authclient.NoopLogger()
	}

	return &Service{
		endpoint: gateway + path,
		client:   client,
		logger:   logger,
		onSynced: cfg.OnSynced,
	}, nil
}

// Me fetches the current user's customer record.
func (s *Service) Me(ctx context.Context) (*Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("customers: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("customers: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var customer Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, fmt.Errorf("customers: decode response: %w", err)
	}
	return &customer, nil
}

// SyncCurrentUser implements authclient.CustomerSync.
func (s *Service) SyncCurrentUser(ctx context.Context) error {
	customer, err := s.Me(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("customer synced: %s", customer.Username)
	if s.onSynced != nil {
		s.onSynced(ctx, customer)
	}
	return nil
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("customers: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("customers: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401 or 403 from the service.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}
