package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
)

var _ portdocument.Store = (*Store)(nil)

type collection struct {
	order []string
	docs  map[string]domaindocument.Document
}

// Store keeps documents in process memory with the same observable semantics
// as the Mongo adapter: insertion order, store-assigned ObjectIDs, $set-style
// merges that count only real changes.
type Store struct {
	mu    sync.RWMutex
	colls map[domaindocument.Collection]*collection
}

func NewStore() *Store {
	return &Store{colls: make(map[domaindocument.Collection]*collection)}
}

func (s *Store) coll(name domaindocument.Collection) *collection {
	c, ok := s.colls[name]
	if !ok {
		c = &collection{docs: make(map[string]domaindocument.Document)}
		s.colls[name] = c
	}
	return c
}

func (s *Store) Insert(_ context.Context, coll domaindocument.Collection, doc domaindocument.Document) (domaindocument.InsertResult, error) {
	stored := copyDocument(doc)
	id := stored.ID()
	if id == nil {
		id = domaindocument.NewID()
		stored[domaindocument.IDField] = id
	}
	key, err := domaindocument.Key(id)
	if err != nil {
		return domaindocument.InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(coll)
	if _, exists := c.docs[key]; exists {
		return domaindocument.InsertResult{}, fmt.Errorf("duplicate key error collection: %s dup key: { _id: %s }", coll, key)
	}
	c.docs[key] = stored
	c.order = append(c.order, key)
	return domaindocument.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (s *Store) FindAll(_ context.Context, coll domaindocument.Collection) ([]domaindocument.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domaindocument.Document{}
	c, ok := s.colls[coll]
	if !ok {
		return out, nil
	}
	for _, key := range c.order {
		out = append(out, copyDocument(c.docs[key]))
	}
	return out, nil
}

func (s *Store) FindByID(_ context.Context, coll domaindocument.Collection, id primitive.ObjectID) (domaindocument.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.colls[coll]
	if !ok {
		return nil, nil
	}
	doc, ok := c.docs[domaindocument.ObjectIDKey(id)]
	if !ok {
		return nil, nil
	}
	return copyDocument(doc), nil
}

func (s *Store) UpdateByID(_ context.Context, coll domaindocument.Collection, id primitive.ObjectID, fields domaindocument.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.colls[coll]
	if !ok {
		return 0, nil
	}
	doc, ok := c.docs[domaindocument.ObjectIDKey(id)]
	if !ok {
		return 0, nil
	}

	if newID, ok := fields[domaindocument.IDField]; ok && !reflect.DeepEqual(newID, doc.ID()) {
		return 0, domaindocument.ErrImmutableID
	}

	changed := false
	for k, v := range fields {
		if cur, ok := doc[k]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		doc[k] = copyValue(v)
		changed = true
	}
	if !changed {
		return 0, nil
	}
	return 1, nil
}

func (s *Store) DeleteByID(_ context.Context, coll domaindocument.Collection, id primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.colls[coll]
	if !ok {
		return 0, nil
	}
	key := domaindocument.ObjectIDKey(id)
	if _, ok := c.docs[key]; !ok {
		return 0, nil
	}
	delete(c.docs, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func copyDocument(d domaindocument.Document) domaindocument.Document {
	out := make(domaindocument.Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = copyValue(inner)
		}
		return m
	case domaindocument.Document:
		return copyDocument(t)
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = copyValue(inner)
		}
		return s
	default:
		return v
	}
}
