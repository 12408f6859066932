package account

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Repository stores accounts
type Repository interface {
	CreateAccount(ctx context.Context, acct Account) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// accountIndex holds accounts with case-insensitive username and email
// indexes. Callers synchronize access.
type accountIndex struct {
	accounts   map[uuid.UUID]*Account
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
}

func newAccountIndex() accountIndex {
	return accountIndex{
		accounts:   make(map[uuid.UUID]*Account),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
	}
}

func (x *accountIndex) create(acct Account) (*Account, error) {
	username := strings.ToLower(acct.Username)
	email := strings.ToLower(acct.Email)
	if _, ok := x.byUsername[username]; ok {
		return nil, ErrAccountExists
	}
	if _, ok := x.byEmail[email]; ok && email != "" {
		return nil, ErrAccountExists
	}

	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	stored := acct.clone()
	x.put(stored)
	return stored.clone(), nil
}

func (x *accountIndex) put(acct *Account) {
	x.accounts[acct.ID] = acct
	x.byUsername[strings.ToLower(acct.Username)] = acct.ID
	if email := strings.ToLower(acct.Email); email != "" {
		x.byEmail[email] = acct.ID
	}
}

func (x *accountIndex) get(id uuid.UUID) (*Account, error) {
	acct, ok := x.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct.clone(), nil
}

func (x *accountIndex) getByUsername(username string) (*Account, error) {
	id, ok := x.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return x.accounts[id].clone(), nil
}

// remove deletes the account and returns what was stored
func (x *accountIndex) remove(id uuid.UUID) (*Account, error) {
	acct, ok := x.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	delete(x.accounts, id)
	delete(x.byUsername, strings.ToLower(acct.Username))
	if email := strings.ToLower(acct.Email); email != "" {
		delete(x.byEmail, email)
	}
	return acct, nil
}

// InMemoryRepository keeps accounts in memory
type InMemoryRepository struct {
	mutex sync.RWMutex
	index accountIndex
}

// NewInMemoryRepository creates a new in-memory account repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{index: newAccountIndex()}
}

// CreateAccount implements Repository.CreateAccount
func (r *InMemoryRepository) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.index.create(acct)
}

// GetAccount implements Repository.GetAccount
func (r *InMemoryRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.index.get(id)
}

// GetAccountByUsername implements Repository.GetAccountByUsername
func (r *InMemoryRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.index.getByUsername(username)
}

// DeleteAccount implements Repository.DeleteAccount
func (r *InMemoryRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, err := r.index.remove(id)
	return err
}
