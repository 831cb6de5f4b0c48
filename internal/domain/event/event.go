package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/portfolio-api/internal/domain/document"
)

type Type string

const (
	TypeDocumentCreated Type = "document_created"
	TypeDocumentUpdated Type = "document_updated"
	TypeDocumentDeleted Type = "document_deleted"
)

// Channel is the bus topic events are routed on. Every collection has its own
// channel so subscribers can follow only what they care about.
type Channel string

// ChannelFor returns the channel for a collection.
func ChannelFor(c document.Collection) Channel { return Channel(c) }

// Channels returns one channel per served collection.
func Channels() []Channel {
	out := make([]Channel, 0, len(document.Collections))
	for _, c := range document.Collections {
		out = append(out, ChannelFor(c))
	}
	return out
}

// Event carries identifiers only, not document contents.
// Subscribers fetch fresh state through the API.
type Event struct {
	ID         uuid.UUID           `json:"id" msgpack:"id"`
	Type       Type                `json:"type" msgpack:"type"`
	Collection document.Collection `json:"collection" msgpack:"collection"`
	DocumentID string              `json:"document_id" msgpack:"document_id"`
	Timestamp  time.Time           `json:"timestamp" msgpack:"timestamp"`
}

func New(eventType Type, coll document.Collection, documentID string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Collection: coll,
		DocumentID: documentID,
		Timestamp:  time.Now().UTC(),
	}
}

// Channel returns the channel e is published on.
func (e Event) Channel() Channel { return ChannelFor(e.Collection) }
