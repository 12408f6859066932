package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is the number of accounts kept by NewCachedRepository
const DefaultCacheSize = 4096

// CachedRepository puts an adaptive replacement cache in front of another
// repository. Accounts are immutable once created; DeleteAccount evicts.
type CachedRepository struct {
	next       Repository
	byID       *lru.ARCCache
	byUsername *lru.ARCCache
}

// NewCachedRepository wraps next with a cache of size entries per index
func NewCachedRepository(next Repository, size int) (*CachedRepository, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	byID, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	byUsername, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &CachedRepository{next: next, byID: byID, byUsername: byUsername}, nil
}

// CreateAccount implements Repository.CreateAccount
func (r *CachedRepository) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	created, err := r.next.CreateAccount(ctx, acct)
	if err != nil {
		return nil, err
	}
	r.add(created)
	return created, nil
}

// GetAccount implements Repository.GetAccount
func (r *CachedRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	if v, ok := r.byID.Get(id); ok {
		return v.(*Account).clone(), nil
	}
	acct, err := r.next.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	r.add(acct)
	return acct, nil
}

// GetAccountByUsername implements Repository.GetAccountByUsername
func (r *CachedRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	if v, ok := r.byUsername.Get(strings.ToLower(username)); ok {
		return v.(*Account).clone(), nil
	}
	acct, err := r.next.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	r.add(acct)
	return acct, nil
}

// DeleteAccount implements Repository.DeleteAccount
func (r *CachedRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	acct, err := r.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := r.next.DeleteAccount(ctx, id); err != nil {
		return err
	}
	r.byID.Remove(id)
	r.byUsername.Remove(strings.ToLower(acct.Username))
	return nil
}

func (r *CachedRepository) add(acct *Account) {
	c := acct.clone()
	r.byID.Add(c.ID, c)
	r.byUsername.Add(strings.ToLower(c.Username), c)
}
