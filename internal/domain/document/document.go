package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the identifier key every stored document carries.
const IDField = "_id"

// Collection names an independent group of documents.
type Collection string

const (
	CollectionProjects Collection = "projects"
	CollectionBlogs    Collection = "blogs"
	CollectionMessages Collection = "messages"
)

// Collections lists every collection the gateway serves, in route order.
var Collections = []Collection{CollectionProjects, CollectionBlogs, CollectionMessages}

// Valid reports whether c is one of the served collections.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidID is returned when an identifier string cannot be parsed.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNotFound is returned when no document matches the identifier.
	ErrNotFound = errors.New("document not found")

	// ErrNoChanges is returned when an update modified no document.
	ErrNoChanges = errors.New("no changes made")

	// ErrArrayID is returned when a document carries an array as its _id.
	ErrArrayID = errors.New("can't use an array for _id")

	// ErrImmutableID is returned by stores when an update tries to rewrite _id.
	ErrImmutableID = errors.New("performing an update on the path '_id' would modify the immutable field '_id'")
)

// Document is a schema-less record. The gateway never looks inside it
// except for the identifier field.
type Document map[string]any

// ID returns the document identifier, or nil when absent.
func (d Document) ID() any {
	return d[IDField]
}

// WithoutID returns a shallow copy of d with the identifier field removed.
func (d Document) WithoutID() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// InsertResult is the acknowledgment a store returns for an insert.
type InsertResult struct {
	Acknowledged bool `json:"acknowledged"`
	InsertedID   any  `json:"insertedId"`
}

// ParseID parses the 24-character hex form of an ObjectID.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	return id, nil
}

// NewID returns a fresh store-assigned identifier.
func NewID() primitive.ObjectID {
	return primitive.NewObjectID()
}

// IDString renders an identifier value the way it appears in JSON.
func IDString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

const (
	objectIDKeyPrefix = "o:"
	jsonKeyPrefix     = "j:"
)

// Key renders an identifier as a storage key. ObjectIDs become "o:<hex>";
// every other value becomes "j:" followed by its JSON encoding, which sorts
// object keys. Values of different types never share a key, so a 24-hex
// string _id does not answer an ObjectID lookup.
func Key(id any) (string, error) {
	if oid, ok := id.(primitive.ObjectID); ok {
		return ObjectIDKey(oid), nil
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("encoding _id: %w", err)
	}
	if len(raw) > 0 && raw[0] == '[' {
		return "", ErrArrayID
	}
	return jsonKeyPrefix + string(raw), nil
}

// ObjectIDKey is Key for an ObjectID.
func ObjectIDKey(id primitive.ObjectID) string {
	return objectIDKeyPrefix + id.Hex()
}

// ParseKey reverses Key. Non-ObjectID values come back as decoded JSON.
func ParseKey(key string) (any, error) {
	switch {
	case strings.HasPrefix(key, objectIDKeyPrefix):
		oid, err := primitive.ObjectIDFromHex(strings.TrimPrefix(key, objectIDKeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("corrupt key %q: %w", key, err)
		}
		return oid, nil
	case strings.HasPrefix(key, jsonKeyPrefix):
		var v any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(key, jsonKeyPrefix)), &v); err != nil {
			return nil, fmt.Errorf("corrupt key %q: %w", key, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("corrupt key %q: unknown kind", key)
}
