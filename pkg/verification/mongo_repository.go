package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoCollection is the collection holding verification records
const DefaultMongoCollection = "verification_records"

// mongoRecord is the document stored per account, keyed by the account ID string
type mongoRecord struct {
	ID             string     `bson:"_id"`
	CredentialHash string     `bson:"credential_hash"`
	HashMethod     string     `bson:"hash_method"`
	LockState      string     `bson:"lock_state"`
	ResendAttempts int        `bson:"resend_attempts"`
	IssuedAt       time.Time  `bson:"issued_at"`
	VerifiedAt     *time.Time `bson:"verified_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func (d *mongoRecord) toRecord() (*VerificationRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", d.ID, err)
	}
	return &VerificationRecord{
		AccountID:      id,
		CredentialHash: d.CredentialHash,
		HashMethod:     HashMethod(d.HashMethod),
		LockState:      LockState(d.LockState),
		ResendAttempts: d.ResendAttempts,
		IssuedAt:       d.IssuedAt.UTC(),
		VerifiedAt:     d.VerifiedAt,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}, nil
}

// MongoRepository implements Repository on MongoDB. Conditional updates use
// FindOneAndUpdate so each operation is atomic on the account document.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository on the given collection
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll}
}

// GetRecord implements Repository.GetRecord
func (r *MongoRepository) GetRecord(ctx context.Context, accountID uuid.UUID) (*VerificationRecord, error) {
	var doc mongoRecord
	err := r.coll.FindOne(ctx, bson.M{"_id": accountID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return doc.toRecord()
}

// Lock implements Repository.Lock
func (r *MongoRepository) Lock(ctx context.Context, params LockParams) (*VerificationRecord, error) {
	params = withIssuedAt(params)
	update := bson.M{
		"$set": bson.M{
			"credential_hash": params.CredentialHash,
			"hash_method":     string(params.HashMethod),
			"lock_state":      string(StateLocked),
			"issued_at":       params.IssuedAt,
			"updated_at":      params.IssuedAt,
		},
		"$unset": bson.M{"verified_at": ""},
		"$setOnInsert": bson.M{
			"resend_attempts": 0,
			"created_at":      params.IssuedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	return r.findOneAndUpdate(ctx, bson.M{"_id": params.AccountID.String()}, update, opts)
}

// ReissueWithinLimit implements Repository.ReissueWithinLimit
func (r *MongoRepository) ReissueWithinLimit(ctx context.Context, params LockParams, maxAttempts int) (*VerificationRecord, error) {
	params = withIssuedAt(params)
	filter := bson.M{
		"_id":             params.AccountID.String(),
		"lock_state":      string(StateLocked),
		"resend_attempts": bson.M{"$lt": maxAttempts},
	}
	update := bson.M{
		"$set": bson.M{
			"credential_hash": params.CredentialHash,
			"hash_method":     string(params.HashMethod),
			"issued_at":       params.IssuedAt,
			"updated_at":      params.IssuedAt,
		},
		"$inc": bson.M{"resend_attempts": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	rec, err := r.findOneAndUpdate(ctx, filter, update, opts)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
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
func (r *MongoRepository) Unlock(ctx context.Context, params UnlockParams) (*VerificationRecord, error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	filter := bson.M{
		"_id":        params.AccountID.String(),
		"lock_state": string(StateLocked),
	}
	if params.ExpectedHash != "" {
		filter["credential_hash"] = params.ExpectedHash
	}
	update := bson.M{
		"$set": bson.M{
			"lock_state":      string(StateUnlocked),
			"credential_hash": "",
			"verified_at":     params.At,
			"updated_at":      params.At,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	rec, err := r.findOneAndUpdate(ctx, filter, update, opts)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
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
func (r *MongoRepository) FindRecordsByState(ctx context.Context, state LockState) ([]*VerificationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"lock_state": string(state)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*VerificationRecord
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, filter, update any, opts *options.FindOneAndUpdateOptions) (*VerificationRecord, error) {
	var doc mongoRecord
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toRecord()
}
