package bolt_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	boltstore "github.com/alanyang/portfolio-api/internal/adapter/bolt"
	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
)

const blogs = domaindocument.CollectionBlogs

func openStore(t *testing.T) (*boltstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portfolio.db")
	s, err := boltstore.Open(path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, path
}

func insert(t *testing.T, s *boltstore.Store, doc domaindocument.Document) primitive.ObjectID {
	t.Helper()
	res, err := s.Insert(context.Background(), blogs, doc)
	require.NoError(t, err)
	require.True(t, res.Acknowledged)
	id, ok := res.InsertedID.(primitive.ObjectID)
	require.True(t, ok)
	return id
}

func TestStore_CRUD(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	id := insert(t, s, domaindocument.Document{"title": "A", "tags": []any{"go", "db"}})

	got, err := s.FindByID(ctx, blogs, id)
	require.NoError(t, err)
	assert.Equal(t, id, got["_id"])
	assert.Equal(t, "A", got["title"])
	assert.Equal(t, []any{"go", "db"}, got["tags"])

	n, err := s.UpdateByID(ctx, blogs, id, domaindocument.Document{"title": "B"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.UpdateByID(ctx, blogs, id, domaindocument.Document{"title": "B", "tags": []any{"go", "db"}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "identical values are not a modification")

	got, err = s.FindByID(ctx, blogs, id)
	require.NoError(t, err)
	assert.Equal(t, "B", got["title"])

	n, err = s.DeleteByID(ctx, blogs, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteByID(ctx, blogs, id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err = s.FindByID(ctx, blogs, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_FindAllInInsertionOrder(t *testing.T) {
	s, _ := openStore(t)

	docs, err := s.FindAll(context.Background(), blogs)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)

	for _, title := range []string{"one", "two", "three"} {
		insert(t, s, domaindocument.Document{"title": title})
	}
	docs, err = s.FindAll(context.Background(), blogs)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "one", docs[0]["title"])
	assert.Equal(t, "two", docs[1]["title"])
	assert.Equal(t, "three", docs[2]["title"])

	other, err := s.FindAll(context.Background(), domaindocument.CollectionProjects)
	require.NoError(t, err)
	assert.Empty(t, other, "collections are isolated")
}

func TestStore_UpdateImmutableID(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	id := insert(t, s, domaindocument.Document{"body": "hi"})

	_, err := s.UpdateByID(ctx, blogs, id, domaindocument.Document{"_id": "something-else", "body": "x"})
	assert.True(t, errors.Is(err, domaindocument.ErrImmutableID))

	n, err := s.UpdateByID(ctx, blogs, id, domaindocument.Document{"_id": id, "body": "x"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "same _id is allowed")

	n, err = s.UpdateByID(ctx, blogs, domaindocument.NewID(), domaindocument.Document{"_id": "x"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "unknown id matches nothing")
}

func TestStore_ClientSuppliedID(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	res, err := s.Insert(ctx, blogs, domaindocument.Document{"_id": "custom", "title": "A"})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.InsertedID)

	_, err = s.Insert(ctx, blogs, domaindocument.Document{"_id": "custom"})
	assert.ErrorContains(t, err, "duplicate key")

	docs, err := s.FindAll(ctx, blogs)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "custom", docs[0]["_id"])
}

func TestStore_ClientIDsOfAnyType(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()
	oid := domaindocument.NewID()

	ids := []any{5.0, map[string]any{"k": 1.0}, true, oid.Hex()}
	for _, id := range ids {
		_, err := s.Insert(ctx, blogs, domaindocument.Document{"_id": id, "title": "A"})
		require.NoError(t, err, id)
	}
	_, err := s.Insert(ctx, blogs, domaindocument.Document{"_id": map[string]any{"k": 1.0}})
	assert.ErrorContains(t, err, "duplicate key")
	_, err = s.Insert(ctx, blogs, domaindocument.Document{"_id": []any{"a"}})
	assert.ErrorIs(t, err, domaindocument.ErrArrayID)

	got, err := s.FindByID(ctx, blogs, oid)
	require.NoError(t, err)
	assert.Nil(t, got, "a hex string _id is not an ObjectID")

	require.NoError(t, s.Close(ctx))
	reopened, err := boltstore.Open(path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close(context.Background()) })

	docs, err := reopened.FindAll(ctx, blogs)
	require.NoError(t, err)
	require.Len(t, docs, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, docs[i]["_id"])
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	s, err := boltstore.Open(path, time.Second)
	require.NoError(t, err)
	id := insert(t, s, domaindocument.Document{"title": "kept"})
	require.NoError(t, s.Close(context.Background()))

	s, err = boltstore.Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close(context.Background())

	got, err := s.FindByID(context.Background(), blogs, id)
	require.NoError(t, err)
	assert.Equal(t, "kept", got["title"])
}

func TestStore_PingAfterClose(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Error(t, s.Ping(context.Background()))
}

func TestStore_CancelledContext(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindAll(ctx, blogs)
	assert.ErrorIs(t, err, context.Canceled)
}
