package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
)

var _ portdocument.Store = (*Store)(nil)

// codeImmutableField is the server error code for writes that touch _id.
const codeImmutableField = 66

// Store implements port/document.Store on a MongoDB database, one Mongo
// collection per document collection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) collection(c domaindocument.Collection) *mongo.Collection {
	return s.db.Collection(string(c))
}

func (s *Store) Insert(ctx context.Context, coll domaindocument.Collection, doc domaindocument.Document) (domaindocument.InsertResult, error) {
	res, err := s.collection(coll).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("insert document: %w", err)
	}
	return domaindocument.InsertResult{Acknowledged: true, InsertedID: res.InsertedID}, nil
}

func (s *Store) FindAll(ctx context.Context, coll domaindocument.Collection) ([]domaindocument.Document, error) {
	cur, err := s.collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}

	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	docs := make([]domaindocument.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, domaindocument.Document(row))
	}
	return docs, nil
}

func (s *Store) FindByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (domaindocument.Document, error) {
	var row bson.M
	err := s.collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return domaindocument.Document(row), nil
}

func (s *Store) UpdateByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID, fields domaindocument.Document) (int64, error) {
	res, err := s.collection(coll).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M(fields)},
	)
	if err != nil {
		var we mongo.WriteException
		if errors.As(err, &we) && we.HasErrorCode(codeImmutableField) {
			return 0, fmt.Errorf("update document: %w", domaindocument.ErrImmutableID)
		}
		return 0, fmt.Errorf("update document: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) DeleteByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (int64, error) {
	res, err := s.collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DropDatabase removes the whole database. Used by integration tests.
func (s *Store) DropDatabase(ctx context.Context) error {
	return s.db.Drop(ctx)
}
