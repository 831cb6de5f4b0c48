package document

//go:generate mockgen -source=document.go -destination=../../mocks/mock_store.go -package=mocks -mock_names=Store=MockStore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
)

// Store is the storage abstraction for schema-less documents.
// [DIP] service/document depends on this interface, not on a concrete driver.
// [LSP] Mongo, Postgres and in-memory implementations are all valid substitutes.
type Store interface {
	// Insert stores doc unmodified and returns the driver acknowledgment.
	Insert(ctx context.Context, coll domaindocument.Collection, doc domaindocument.Document) (domaindocument.InsertResult, error)

	// FindAll returns every document in storage order. An empty collection
	// yields an empty, non-nil slice.
	FindAll(ctx context.Context, coll domaindocument.Collection) ([]domaindocument.Document, error)

	// FindByID returns nil, nil when no document matches.
	FindByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (domaindocument.Document, error)

	// UpdateByID sets only the supplied fields and reports how many documents
	// actually changed. A missing id and an already-matching document both
	// report zero.
	UpdateByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID, fields domaindocument.Document) (int64, error)

	// DeleteByID removes the matching document and reports how many were removed.
	DeleteByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
