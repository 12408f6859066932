package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const verificationFileName = "verification_records.json"

// FileRepository implements Repository using a JSON file
type FileRepository struct {
	dataDir string
	store   recordStore
	mutex   sync.RWMutex
}

// verificationData is the structure stored in the JSON file
type verificationData struct {
	Records []*VerificationRecord `json:"records"`
}

// NewFileRepository creates a new file-based repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir: dataDir,
		store:   recordStore{records: make(map[uuid.UUID]*VerificationRecord)},
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// GetRecord implements Repository.GetRecord
func (r *FileRepository) GetRecord(ctx context.Context, accountID uuid.UUID) (*VerificationRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.store.get(accountID)
}

// Lock implements Repository.Lock
func (r *FileRepository) Lock(ctx context.Context, params LockParams) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	params = withIssuedAt(params)
	prev, existed := r.store.snapshot(params.AccountID)
	rec := r.store.lock(params)

	if err := r.save(); err != nil {
		r.store.restore(params.AccountID, prev, existed)
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return rec, nil
}

// ReissueWithinLimit implements Repository.ReissueWithinLimit
func (r *FileRepository) ReissueWithinLimit(ctx context.Context, params LockParams, maxAttempts int) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	params = withIssuedAt(params)
	prev, existed := r.store.snapshot(params.AccountID)
	rec, err := r.store.reissue(params, maxAttempts)
	if err != nil {
		return nil, err
	}

	if err := r.save(); err != nil {
		r.store.restore(params.AccountID, prev, existed)
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return rec, nil
}

// Unlock implements Repository.Unlock
func (r *FileRepository) Unlock(ctx context.Context, params UnlockParams) (*VerificationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	prev, existed := r.store.snapshot(params.AccountID)
	rec, err := r.store.unlock(params)
	if err != nil {
		return nil, err
	}

	if err := r.save(); err != nil {
		r.store.restore(params.AccountID, prev, existed)
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return rec, nil
}

// FindRecordsByState implements Repository.FindRecordsByState
func (r *FileRepository) FindRecordsByState(ctx context.Context, state LockState) ([]*VerificationRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.store.findByState(state), nil
}

// load reads records from file
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, verificationFileName)

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

	var vd verificationData
	if err := json.Unmarshal(data, &vd); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, rec := range vd.Records {
		r.store.records[rec.AccountID] = rec
	}

	return nil
}

// save writes records to file atomically
func (r *FileRepository) save() error {
	records := make([]*VerificationRecord, 0, len(r.store.records))
	for _, rec := range r.store.records {
		records = append(records, rec)
	}

	jsonData, err := json.MarshalIndent(verificationData{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(r.dataDir, verificationFileName+".tmp")
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	finalFile := filepath.Join(r.dataDir, verificationFileName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
