package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresRepository stores accounts in PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL account repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount implements Repository.CreateAccount
func (r *PostgresRepository) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	if acct.Roles == nil {
		acct.Roles = []string{}
	}

	query := `
		INSERT INTO accounts (id, username, email, name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, username, email, name, password_hash, roles, created_at
	`

	created, err := scanAccount(r.db.QueryRow(ctx, query,
		acct.ID, acct.Username, acct.Email, acct.Name, acct.PasswordHash, acct.Roles, acct.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return created, nil
}

// GetAccount implements Repository.GetAccount
func (r *PostgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, username, email, name, password_hash, roles, created_at
		FROM accounts
		WHERE id = $1
	`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// GetAccountByUsername implements Repository.GetAccountByUsername
func (r *PostgresRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	query := `
		SELECT id, username, email, name, password_hash, roles, created_at
		FROM accounts
		WHERE lower(username) = lower($1)
	`
	return scanAccount(r.db.QueryRow(ctx, query, username))
}

// DeleteAccount implements Repository.DeleteAccount
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var acct Account
	err := row.Scan(
		&acct.ID,
		&acct.Username,
		&acct.Email,
		&acct.Name,
		&acct.PasswordHash,
		&acct.Roles,
		&acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}
