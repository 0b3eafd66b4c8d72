package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	authclient "github.com/goliatone/go-auth-client"
)

// DefaultProfile is the credential profile used when none is given.
const DefaultProfile = "default"

var _ authclient.CredentialStore = (*CredentialRepository)(nil)

// CredentialModel is the Bun model for stored provider sessions.
type CredentialModel struct {
	bun.BaseModel `bun:"table:client_credentials"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	Profile      string    `bun:"profile,notnull,unique"`
	Subject      string    `bun:"subject"`
	AccessToken  string    `bun:"access_token,notnull"`
	TokenType    string    `bun:"token_type"`
	RefreshToken string    `bun:"refresh_token"`
	IDToken      string    `bun:"id_token"`
	ExpiresAt    time.Time `bun:"expires_at"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// CredentialRepository implements authclient.CredentialStore using Bun.
// Each profile holds at most one session.
type CredentialRepository struct {
	db      *bun.DB
	profile string
	clock   func() time.Time
}

// NewCredentialRepository creates a repository for profile.
func NewCredentialRepository(db *bun.DB, profile string) *CredentialRepository {
	if profile == "" {
		profile = DefaultProfile
	}
	return &CredentialRepository{
		db:      db,
		profile: profile,
		clock:   time.Now,
	}
}

// CreateTable creates the credentials table if needed.
func (r *CredentialRepository) CreateTable(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// SaveCredentials implements authclient.CredentialStore.
func (r *CredentialRepository) SaveCredentials(ctx context.Context, creds *authclient.Credentials) error {
	if creds == nil {
		return errors.New("credentials are nil")
	}

	now := r.clock().UTC()
	model := &CredentialModel{
		ID:           uuid.New(),
		Profile:      r.profile,
		Subject:      creds.Subject,
		AccessToken:  creds.AccessToken,
		TokenType:    creds.TokenType,
		RefreshToken: creds.RefreshToken,
		IDToken:      creds.IDToken,
		ExpiresAt:    creds.ExpiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (profile) DO UPDATE").
		Set("subject = EXCLUDED.subject").
		Set("access_token = EXCLUDED.access_token").
		Set("token_type = EXCLUDED.token_type").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("id_token = EXCLUDED.id_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// LoadCredentials implements authclient.CredentialStore.
func (r *CredentialRepository) LoadCredentials(ctx context.Context) (*authclient.Credentials, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Where("profile = ?", r.profile).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authclient.ErrNoCredentials
		}
		return nil, err
	}
	return toCredentials(&model), nil
}

// DeleteCredentials implements authclient.CredentialStore.
func (r *CredentialRepository) DeleteCredentials(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("profile = ?", r.profile).
		Exec(ctx)
	return err
}

func toCredentials(m *CredentialModel) *authclient.Credentials {
	return &authclient.Credentials{
		AccessToken:  m.AccessToken,
		TokenType:    m.TokenType,
		RefreshToken: m.RefreshToken,
		IDToken:      m.IDToken,
		Subject:      m.Subject,
		ExpiresAt:    m.ExpiresAt,
	}
}
