//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	mongostore "github.com/alanyang/portfolio-api/internal/adapter/mongo"
	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
)

// setupStore connects to a throwaway database named after a fresh uuid and
// drops it when the test ends.
func setupStore(t *testing.T) *mongostore.Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := mongostore.Connect(ctx, uri, "test_"+uuid.New().String()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.DropDatabase(context.Background())
		_ = store.Close(context.Background())
	})
	return store
}

func TestMongoStore_CRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	coll := domaindocument.CollectionProjects

	res, err := store.Insert(ctx, coll, domaindocument.Document{"title": "A", "meta": map[string]any{"stars": 3.0}})
	require.NoError(t, err)
	id, ok := res.InsertedID.(primitive.ObjectID)
	require.True(t, ok)

	got, err := store.FindByID(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, "A", got["title"])

	n, err := store.UpdateByID(ctx, coll, id, domaindocument.Document{"title": "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "identical $set modifies nothing")

	n, err = store.UpdateByID(ctx, coll, id, domaindocument.Document{"title": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.UpdateByID(ctx, coll, id, domaindocument.Document{"_id": "other"})
	assert.True(t, errors.Is(err, domaindocument.ErrImmutableID))

	docs, err := store.FindAll(ctx, coll)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0]["title"])

	n, err = store.DeleteByID(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	missing, err := store.FindByID(ctx, coll, id)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMongoStore_EmptyCollection(t *testing.T) {
	store := setupStore(t)

	docs, err := store.FindAll(context.Background(), domaindocument.CollectionMessages)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
