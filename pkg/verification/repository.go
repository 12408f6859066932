package verification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists verification records. ReissueWithinLimit and Unlock
// must be atomic per account.
type Repository interface {
	// GetRecord returns ErrRecordNotFound when the account has no record
	GetRecord(ctx context.Context, accountID uuid.UUID) (*VerificationRecord, error)

	// Lock stores a new credential hash and sets the record LOCKED, creating
	// the record if needed. ResendAttempts is preserved.
	Lock(ctx context.Context, params LockParams) (*VerificationRecord, error)

	// ReissueWithinLimit stores a new credential hash and increments
	// ResendAttempts, only when the record is LOCKED and
	// ResendAttempts < maxAttempts. Otherwise it returns ErrRecordNotFound,
	// ErrAlreadyVerified or ErrResendLimitReached and changes nothing.
	ReissueWithinLimit(ctx context.Context, params LockParams, maxAttempts int) (*VerificationRecord, error)

	// Unlock sets a LOCKED record UNLOCKED and clears its hash. When
	// ExpectedHash is set the stored hash must still equal it
	// (ErrCredentialChanged otherwise).
	Unlock(ctx context.Context, params UnlockParams) (*VerificationRecord, error)

	// FindRecordsByState lists records in the given state, oldest first
	FindRecordsByState(ctx context.Context, state LockState) ([]*VerificationRecord, error)
}

// recordStore holds the mutation rules shared by the in-process repositories.
// Callers hold the lock.
type recordStore struct {
	records map[uuid.UUID]*VerificationRecord
}

func (s *recordStore) get(accountID uuid.UUID) (*VerificationRecord, error) {
	rec, ok := s.records[accountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *recordStore) lock(p LockParams) *VerificationRecord {
	rec, ok := s.records[p.AccountID]
	if !ok {
		rec = &VerificationRecord{
			AccountID: p.AccountID,
			CreatedAt: p.IssuedAt,
		}
		s.records[p.AccountID] = rec
	}
	rec.CredentialHash = p.CredentialHash
	rec.HashMethod = p.HashMethod
	rec.LockState = StateLocked
	rec.IssuedAt = p.IssuedAt
	rec.VerifiedAt = nil
	rec.UpdatedAt = p.IssuedAt

	recCopy := *rec
	return &recCopy
}

func (s *recordStore) reissue(p LockParams, maxAttempts int) (*VerificationRecord, error) {
	rec, ok := s.records[p.AccountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !rec.Locked() {
		return nil, ErrAlreadyVerified
	}
	if rec.ResendAttempts >= maxAttempts {
		return nil, ErrResendLimitReached
	}

	rec.CredentialHash = p.CredentialHash
	rec.HashMethod = p.HashMethod
	rec.IssuedAt = p.IssuedAt
	rec.ResendAttempts++
	rec.UpdatedAt = p.IssuedAt

	recCopy := *rec
	return &recCopy, nil
}

func (s *recordStore) unlock(p UnlockParams) (*VerificationRecord, error) {
	rec, ok := s.records[p.AccountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !rec.Locked() {
		return nil, ErrAlreadyVerified
	}
	if p.ExpectedHash != "" && rec.CredentialHash != p.ExpectedHash {
		return nil, ErrCredentialChanged
	}

	at := p.At
	rec.LockState = StateUnlocked
	rec.CredentialHash = ""
	rec.VerifiedAt = &at
	rec.UpdatedAt = at

	recCopy := *rec
	return &recCopy, nil
}

func (s *recordStore) findByState(state LockState) []*VerificationRecord {
	var out []*VerificationRecord
	for _, rec := range s.records {
		if rec.LockState == state {
			recCopy := *rec
			out = append(out, &recCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// snapshot returns the record and whether it existed, for rollback on save failures
func (s *recordStore) snapshot(accountID uuid.UUID) (VerificationRecord, bool) {
	rec, ok := s.records[accountID]
	if !ok {
		return VerificationRecord{}, false
	}
	return *rec, true
}

func (s *recordStore) restore(accountID uuid.UUID, rec VerificationRecord, existed bool) {
	if !existed {
		delete(s.records, accountID)
		return
	}
	s.records[accountID] = &rec
}

// InMemoryRepository keeps verification records in memory
type InMemoryRepository struct {
	mutex sync.RWMutex
	store recordStore
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		store: recordStore{records: make(map[uuid.UUID]*VerificationRecord)},
	}
}

// GetRecord implements Repository.GetRecord
func (r *InMemoryRepository) GetRecord(ctx context.Context, accountID uuid.UUID) (*VerificationRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.store.get(accountID)
}

// Lock implements Repository.Lock
func (r *InMemoryRepository) Lock(ctx context.Context, params LockParams) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.store.lock(withIssuedAt(params)), nil
}

// ReissueWithinLimit implements Repository.ReissueWithinLimit
func (r *InMemoryRepository) ReissueWithinLimit(ctx context.Context, params LockParams, maxAttempts int) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.store.reissue(withIssuedAt(params), maxAttempts)
}

// Unlock implements Repository.Unlock
func (r *InMemoryRepository) Unlock(ctx context.Context, params UnlockParams) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	return r.store.unlock(params)
}

// FindRecordsByState implements Repository.FindRecordsByState
func (r *InMemoryRepository) FindRecordsByState(ctx context.Context, state LockState) ([]*VerificationRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.store.findByState(state), nil
}

func withIssuedAt(p LockParams) LockParams {
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now().UTC()
	}
	return p
}
