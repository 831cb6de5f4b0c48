package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
)

var _ portdocument.Store = (*Store)(nil)

// Store implements port/document.Store on Postgres: one table per collection,
// the document body in a JSONB column and _id, as a typed key from
// domain/document.Key, in its own TEXT primary key.
// Rows are listed in insertion order.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func table(coll domaindocument.Collection) (string, error) {
	if !coll.Valid() {
		return "", fmt.Errorf("unknown collection %q", coll)
	}
	return pgx.Identifier{string(coll)}.Sanitize(), nil
}

func (s *Store) Insert(ctx context.Context, coll domaindocument.Collection, doc domaindocument.Document) (domaindocument.InsertResult, error) {
	t, err := table(coll)
	if err != nil {
		return domaindocument.InsertResult{}, err
	}

	id := doc.ID()
	if id == nil {
		id = domaindocument.NewID()
	}
	key, err := domaindocument.Key(id)
	if err != nil {
		return domaindocument.InsertResult{}, err
	}

	body, err := json.Marshal(doc.WithoutID())
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+t+` (id, body) VALUES ($1, $2::jsonb)`,
		key, string(body),
	)
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("insert document: %w", err)
	}
	return domaindocument.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (s *Store) FindAll(ctx context.Context, coll domaindocument.Collection) ([]domaindocument.Document, error) {
	t, err := table(coll)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT id, body FROM `+t+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []domaindocument.Document{}
	for rows.Next() {
		var key string
		var body []byte
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		doc, err := decode(key, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) FindByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (domaindocument.Document, error) {
	t, err := table(coll)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = s.pool.QueryRow(ctx, `SELECT body FROM `+t+` WHERE id = $1`, domaindocument.ObjectIDKey(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decode(domaindocument.ObjectIDKey(id), body)
}

// UpdateByID merges fields with jsonb concatenation. The row only counts as
// modified when the merge actually changes the body.
func (s *Store) UpdateByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID, fields domaindocument.Document) (int64, error) {
	t, err := table(coll)
	if err != nil {
		return 0, err
	}

	if newID, ok := fields[domaindocument.IDField]; ok {
		if same, isOID := newID.(primitive.ObjectID); !isOID || same != id {
			exists, err := s.exists(ctx, t, id)
			if err != nil {
				return 0, err
			}
			if !exists {
				return 0, nil
			}
			return 0, fmt.Errorf("update document: %w", domaindocument.ErrImmutableID)
		}
	}

	patch, err := json.Marshal(fields.WithoutID())
	if err != nil {
		return 0, fmt.Errorf("marshal update: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+t+`
		    SET body = body || $2::jsonb, updated_at = now()
		  WHERE id = $1 AND body IS DISTINCT FROM body || $2::jsonb`,
		domaindocument.ObjectIDKey(id), string(patch),
	)
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (int64, error) {
	t, err := table(coll)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+t+` WHERE id = $1`, domaindocument.ObjectIDKey(id))
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) exists(ctx context.Context, t string, id primitive.ObjectID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+t+` WHERE id = $1)`, domaindocument.ObjectIDKey(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking document: %w", err)
	}
	return exists, nil
}

func decode(key string, body []byte) (domaindocument.Document, error) {
	doc := domaindocument.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", key, err)
	}
	id, err := domaindocument.ParseKey(key)
	if err != nil {
		return nil, err
	}
	doc[domaindocument.IDField] = id
	return doc, nil
}
