package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens a Bun database on a SQLite DSN, e.g. "file:creds.db" or
// "file::memory:?cache=shared".
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// NewSQLiteStore opens dsn and prepares a credential repository for profile.
func NewSQLiteStore(ctx context.Context, dsn, profile string) (*CredentialRepository, error) {
	db, err := OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}

	repo := NewCredentialRepository(db, profile)
	if err := repo.CreateTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating credentials table: %w", err)
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *CredentialRepository) Close() error {
	return r.db.Close()
}

// RunInTx runs f in a transaction unless ctx is already done.
func (r *CredentialRepository) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return r.db.RunInTx(ctx, opts, f)
	}
}
