package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoCollection is the collection holding accounts
const DefaultMongoCollection = "accounts"

// mongoAccount is the stored document. The *_key fields carry the lowercased
// username and email for the unique indexes.
type mongoAccount struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	UsernameKey  string    `bson:"username_key"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"email_key"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	Roles        []string  `bson:"roles"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (d *mongoAccount) toAccount() (*Account, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", d.ID, err)
	}
	return &Account{
		ID:           id,
		Username:     d.Username,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Roles:        d.Roles,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

// MongoRepository implements Repository on MongoDB
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository on the given collection and makes
// sure the username and email indexes exist
func NewMongoRepository(ctx context.Context, coll *mongo.Collection) (*MongoRepository, error) {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email_key", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account indexes: %w", err)
	}
	return &MongoRepository{coll: coll}, nil
}

// CreateAccount implements Repository.CreateAccount
func (r *MongoRepository) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	if acct.Roles == nil {
		acct.Roles = []string{}
	}

	doc := mongoAccount{
		ID:           acct.ID.String(),
		Username:     acct.Username,
		UsernameKey:  strings.ToLower(acct.Username),
		Email:        acct.Email,
		EmailKey:     strings.ToLower(acct.Email),
		Name:         acct.Name,
		PasswordHash: acct.PasswordHash,
		Roles:        acct.Roles,
		CreatedAt:    acct.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return acct.clone(), nil
}

// GetAccount implements Repository.GetAccount
func (r *MongoRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// GetAccountByUsername implements Repository.GetAccountByUsername
func (r *MongoRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findOne(ctx, bson.M{"username_key": strings.ToLower(username)})
}

// DeleteAccount implements Repository.DeleteAccount
func (r *MongoRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Account, error) {
	var doc mongoAccount
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return doc.toAccount()
}
