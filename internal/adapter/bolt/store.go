package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
)

var _ portdocument.Store = (*Store)(nil)

var (
	docsBucket = []byte("docs")
	idsBucket  = []byte("ids")
)

// Store implements port/document.Store on a single bbolt file. Every
// collection is a bucket with two children: docs, keyed by insertion
// sequence, and ids, an index from document key to sequence.
type Store struct {
	Path string
	db   *bolt.DB
}

// Open opens or creates the database file and its collection buckets.
// timeout bounds the wait for the file lock held by another process.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb %s; is another instance running? %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range domaindocument.Collections {
			b, err := tx.CreateBucketIfNotExists([]byte(c))
			if err != nil {
				return err
			}
			if _, err := b.CreateBucketIfNotExists(docsBucket); err != nil {
				return err
			}
			if _, err := b.CreateBucketIfNotExists(idsBucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize boltdb buckets: %w", err)
	}

	return &Store{Path: path, db: db}, nil
}

// record is the stored form of one document. Key is the typed _id key from
// domain/document.Key; the body round-trips through JSON without _id.
type record struct {
	Key  string          `json:"key"`
	Body json.RawMessage `json:"body"`
}

func (r record) document() (domaindocument.Document, error) {
	doc := domaindocument.Document{}
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", r.Key, err)
	}
	id, err := domaindocument.ParseKey(r.Key)
	if err != nil {
		return nil, err
	}
	doc[domaindocument.IDField] = id
	return doc, nil
}

func buckets(tx *bolt.Tx, coll domaindocument.Collection) (docs, ids *bolt.Bucket, err error) {
	b := tx.Bucket([]byte(coll))
	if b == nil {
		return nil, nil, fmt.Errorf("unknown collection %q", coll)
	}
	return b.Bucket(docsBucket), b.Bucket(idsBucket), nil
}

func (s *Store) Insert(ctx context.Context, coll domaindocument.Collection, doc domaindocument.Document) (domaindocument.InsertResult, error) {
	if err := ctx.Err(); err != nil {
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
	rec := record{Key: key}

	body, err := json.Marshal(doc.WithoutID())
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("marshal document: %w", err)
	}
	rec.Body = body

	err = s.db.Update(func(tx *bolt.Tx) error {
		docs, ids, err := buckets(tx, coll)
		if err != nil {
			return err
		}
		if ids.Get([]byte(rec.Key)) != nil {
			return fmt.Errorf("duplicate key error collection: %s dup key: { _id: %s }", coll, rec.Key)
		}

		seq, err := docs.NextSequence()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := docs.Put(itob(seq), raw); err != nil {
			return err
		}
		return ids.Put([]byte(rec.Key), itob(seq))
	})
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("insert document: %w", err)
	}
	return domaindocument.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (s *Store) FindAll(ctx context.Context, coll domaindocument.Collection) ([]domaindocument.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []domaindocument.Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		docs, _, err := buckets(tx, coll)
		if err != nil {
			return err
		}
		return docs.ForEach(func(_, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			doc, err := rec.document()
			if err != nil {
				return err
			}
			out = append(out, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return out, nil
}

// FindByID returns nil, nil when no document has the id.
func (s *Store) FindByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (domaindocument.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc domaindocument.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, _, err := lookup(tx, coll, id)
		if err != nil || rec == nil {
			return err
		}
		doc, err = rec.document()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// UpdateByID applies fields as a top-level merge and reports 1 only when
// some value actually changed.
func (s *Store) UpdateByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID, fields domaindocument.Document) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Normalise through JSON so values compare the way they are stored.
	raw, err := json.Marshal(fields.WithoutID())
	if err != nil {
		return 0, fmt.Errorf("marshal update: %w", err)
	}
	patch := map[string]any{}
	if err := json.Unmarshal(raw, &patch); err != nil {
		return 0, fmt.Errorf("marshal update: %w", err)
	}

	var modified int64
	err = s.db.Update(func(tx *bolt.Tx) error {
		rec, seq, err := lookup(tx, coll, id)
		if err != nil || rec == nil {
			return err
		}
		if newID, ok := fields[domaindocument.IDField]; ok {
			if same, isOID := newID.(primitive.ObjectID); !isOID || same != id {
				return domaindocument.ErrImmutableID
			}
		}

		body := map[string]any{}
		if err := json.Unmarshal(rec.Body, &body); err != nil {
			return fmt.Errorf("unmarshal document %s: %w", rec.Key, err)
		}
		changed := false
		for k, v := range patch {
			if cur, ok := body[k]; ok && reflect.DeepEqual(cur, v) {
				continue
			}
			body[k] = v
			changed = true
		}
		if !changed {
			return nil
		}

		if rec.Body, err = json.Marshal(body); err != nil {
			return err
		}
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		docs, _, _ := buckets(tx, coll)
		if err := docs.Put(seq, out); err != nil {
			return err
		}
		modified = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return modified, nil
}

func (s *Store) DeleteByID(ctx context.Context, coll domaindocument.Collection, id primitive.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var deleted int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, seq, err := lookup(tx, coll, id)
		if err != nil || rec == nil {
			return err
		}
		docs, ids, _ := buckets(tx, coll)
		if err := docs.Delete(seq); err != nil {
			return err
		}
		if err := ids.Delete([]byte(rec.Key)); err != nil {
			return err
		}
		deleted = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return deleted, nil
}

// Ping fails once the database is closed.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// lookup returns the record for id and its sequence key, or nil if absent.
func lookup(tx *bolt.Tx, coll domaindocument.Collection, id primitive.ObjectID) (*record, []byte, error) {
	docs, ids, err := buckets(tx, coll)
	if err != nil {
		return nil, nil, err
	}
	seq := ids.Get([]byte(domaindocument.ObjectIDKey(id)))
	if seq == nil {
		return nil, nil, nil
	}
	raw := docs.Get(seq)
	if raw == nil {
		return nil, nil, fmt.Errorf("index entry %s has no document", id.Hex())
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, err
	}
	// Keys returned by Get are only valid for the life of the transaction.
	return &rec, append([]byte(nil), seq...), nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
