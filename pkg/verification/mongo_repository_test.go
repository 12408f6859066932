package verification

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TestMongoRepository runs against the server in MONGO_URI, e.g.
// MONGO_URI=mongodb://localhost:27017 go test ./pkg/verification/
func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("verify_test_%d", time.Now().UnixNano()))
	defer db.Drop(context.Background())

	n := 0
	runRepositoryContract(t, func(t *testing.T) Repository {
		n++
		return NewMongoRepository(db.Collection(fmt.Sprintf("records_%d", n)))
	})
}
