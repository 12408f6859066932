package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `account_id, credential_hash, hash_method, lock_state, resend_attempts,
		issued_at, verified_at, created_at, updated_at`

// PostgresRepository implements Repository on PostgreSQL. The throttled
// reissue and the unlock are single conditional statements.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetRecord implements Repository.GetRecord
func (r *PostgresRepository) GetRecord(ctx context.Context, accountID uuid.UUID) (*VerificationRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM verification_records
		WHERE account_id = $1
	`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Lock implements Repository.Lock
func (r *PostgresRepository) Lock(ctx context.Context, params LockParams) (*VerificationRecord, error) {
	params = withIssuedAt(params)
	query := `
		INSERT INTO verification_records
			(account_id, credential_hash, hash_method, lock_state, resend_attempts, issued_at, verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'locked', 0, $4, NULL, $4, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET credential_hash = EXCLUDED.credential_hash,
		    hash_method = EXCLUDED.hash_method,
		    lock_state = 'locked',
		    issued_at = EXCLUDED.issued_at,
		    verified_at = NULL,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns

	return scanRecord(r.db.QueryRow(ctx, query,
		params.AccountID,
		params.CredentialHash,
		string(params.HashMethod),
		params.IssuedAt,
	))
}

// ReissueWithinLimit implements Repository.ReissueWithinLimit
func (r *PostgresRepository) ReissueWithinLimit(ctx context.Context, params LockParams, maxAttempts int) (*VerificationRecord, error) {
	params = withIssuedAt(params)
	query := `
		UPDATE verification_records
		SET credential_hash = $2,
		    hash_method = $3,
		    issued_at = $4,
		    updated_at = $4,
		    resend_attempts = resend_attempts + 1
		WHERE account_id = $1
		AND lock_state = 'locked'
		AND resend_attempts < $5
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRow(ctx, query,
		params.AccountID,
		params.CredentialHash,
		string(params.HashMethod),
		params.IssuedAt,
		maxAttempts,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetRecord(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	if !current.Locked() {
		return nil, ErrAlreadyVerified
	}
	return nil, ErrResendLimitReached
}

// Unlock implements Repository.Unlock
func (r *PostgresRepository) Unlock(ctx context.Context, params UnlockParams) (*VerificationRecord, error) {
	query := `
		UPDATE verification_records
		SET lock_state = 'unlocked',
		    credential_hash = '',
		    verified_at = $2,
		    updated_at = $2
		WHERE account_id = $1
		AND lock_state = 'locked'
		AND ($3::text = '' OR credential_hash = $3::text)
		RETURNING ` + recordColumns

	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, params.AccountID, params.At, params.ExpectedHash))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetRecord(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	if !current.Locked() {
		return nil, ErrAlreadyVerified
	}
	return nil, ErrCredentialChanged
}

// FindRecordsByState implements Repository.FindRecordsByState
func (r *PostgresRepository) FindRecordsByState(ctx context.Context, state LockState) ([]*VerificationRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM verification_records
		WHERE lock_state = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*VerificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*VerificationRecord, error) {
	var (
		rec        VerificationRecord
		hashMethod string
		lockState  string
	)
	err := row.Scan(
		&rec.AccountID,
		&rec.CredentialHash,
		&hashMethod,
		&lockState,
		&rec.ResendAttempts,
		&rec.IssuedAt,
		&rec.VerifiedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan verification record: %w", err)
	}
	rec.HashMethod = HashMethod(hashMethod)
	rec.LockState = LockState(lockState)
	return &rec, nil
}
