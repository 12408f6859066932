package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const accountsFileName = "accounts.json"

// FileRepository implements Repository using a JSON file
type FileRepository struct {
	dataDir string
	index   accountIndex
	mutex   sync.RWMutex
}

// accountsData is the structure stored in the JSON file
type accountsData struct {
	Accounts []*Account `json:"accounts"`
}

// NewFileRepository creates a new file-based account repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir: dataDir,
		index:   newAccountIndex(),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// CreateAccount implements Repository.CreateAccount
func (r *FileRepository) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	created, err := r.index.create(acct)
	if err != nil {
		return nil, err
	}

	if err := r.save(); err != nil {
		r.index.remove(created.ID)
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return created, nil
}

// GetAccount implements Repository.GetAccount
func (r *FileRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.index.get(id)
}

// GetAccountByUsername implements Repository.GetAccountByUsername
func (r *FileRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.index.getByUsername(username)
}

// DeleteAccount implements Repository.DeleteAccount
func (r *FileRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed, err := r.index.remove(id)
	if err != nil {
		return err
	}

	if err := r.save(); err != nil {
		r.index.put(removed)
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads accounts from file
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, accountsFileName)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var ad accountsData
	if err := json.Unmarshal(data, &ad); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, acct := range ad.Accounts {
		r.index.put(acct)
	}

	return nil
}

// save writes accounts to file atomically
func (r *FileRepository) save() error {
	accounts := make([]*Account, 0, len(r.index.accounts))
	for _, acct := range r.index.accounts {
		accounts = append(accounts, acct)
	}

	jsonData, err := json.MarshalIndent(accountsData{Accounts: accounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(r.dataDir, accountsFileName+".tmp")
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	finalFile := filepath.Join(r.dataDir, accountsFileName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
