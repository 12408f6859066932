package account

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
)

// RepositoryConfig contains configuration for creating an account repository
type RepositoryConfig struct {
	// Pool is required for PostgreSQL repositories
	Pool *pgxpool.Pool
	// DataDir is required for file-based repositories
	DataDir string
	// Mongo is required for MongoDB repositories
	Mongo *mongo.Database
	// MongoCollection defaults to DefaultMongoCollection
	MongoCollection string
}

// NewRepository creates an account repository based on the persistence type.
// It uses the same backend names as the verification records so both survive
// a restart together.
func NewRepository(ctx context.Context, persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres repository")
		}
		return NewPostgresRepository(config.Pool), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir)
	case "mongo", "mongodb":
		if config.Mongo == nil {
			return nil, fmt.Errorf("mongo database required for mongo repository")
		}
		coll := config.MongoCollection
		if coll == "" {
			coll = DefaultMongoCollection
		}
		return NewMongoRepository(ctx, config.Mongo.Collection(coll))
	case "memory", "inmem":
		return NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, mongo, memory)", persistenceType)
	}
}
