package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	"github.com/alanyang/portfolio-api/internal/domain/event"
	"github.com/alanyang/portfolio-api/internal/domain/resource"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"
)

// Service performs the single store call behind each CRUD endpoint of one
// resource and publishes a change event when a write succeeds.
// [SRP] Resource semantics only; HTTP status mapping lives in transport.
// [DIP] Depends on the Store and EventBus ports.
type Service struct {
	res   resource.Resource
	store portdocument.Store
	bus   porteventbus.EventBus
}

func NewService(res resource.Resource, store portdocument.Store, bus porteventbus.EventBus) *Service {
	return &Service{res: res, store: store, bus: bus}
}

// Resource returns the resource definition the service serves.
func (s *Service) Resource() resource.Resource {
	return s.res
}

// Create inserts doc exactly as received.
func (s *Service) Create(ctx context.Context, doc domaindocument.Document) (domaindocument.InsertResult, error) {
	res, err := s.store.Insert(ctx, s.res.Collection, doc)
	if err != nil {
		return domaindocument.InsertResult{}, fmt.Errorf("create %s: %w", s.res.Collection, err)
	}
	s.publish(ctx, event.TypeDocumentCreated, domaindocument.IDString(res.InsertedID))
	return res, nil
}

// List returns every document of the collection.
func (s *Service) List(ctx context.Context) ([]domaindocument.Document, error) {
	docs, err := s.store.FindAll(ctx, s.res.Collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.res.Collection, err)
	}
	return docs, nil
}

// Get returns the document for rawID. A document that does not exist yields
// ErrNotFound; the caller decides whether that is an error.
func (s *Service) Get(ctx context.Context, rawID string) (domaindocument.Document, error) {
	id, err := domaindocument.ParseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.res.Collection, err)
	}

	doc, err := s.store.FindByID(ctx, s.res.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.res.Collection, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("get %s: %w", s.res.Collection, domaindocument.ErrNotFound)
	}
	return doc, nil
}

// Update merges fields into the document for rawID. ErrNoChanges covers both
// an unknown id and a body identical to what is stored.
func (s *Service) Update(ctx context.Context, rawID string, fields domaindocument.Document) error {
	id, err := domaindocument.ParseID(rawID)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.res.Collection, err)
	}

	if s.res.StripIDOnUpdate {
		fields = fields.WithoutID()
	}

	modified, err := s.store.UpdateByID(ctx, s.res.Collection, id, fields)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.res.Collection, err)
	}
	if modified == 0 {
		return domaindocument.ErrNoChanges
	}
	s.publish(ctx, event.TypeDocumentUpdated, id.Hex())
	return nil
}

// Delete removes the document for rawID.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := domaindocument.ParseID(rawID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.res.Collection, err)
	}

	deleted, err := s.store.DeleteByID(ctx, s.res.Collection, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.res.Collection, err)
	}
	if deleted == 0 {
		return domaindocument.ErrNotFound
	}
	s.publish(ctx, event.TypeDocumentDeleted, id.Hex())
	return nil
}

// publish is best effort: the write already happened, so a bus failure is
// logged rather than reported to the client.
func (s *Service) publish(ctx context.Context, t event.Type, documentID string) {
	if s.bus == nil {
		return
	}
	e := event.New(t, s.res.Collection, documentID)
	if err := s.bus.Publish(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "publish change event failed",
			"type", t, "collection", s.res.Collection, "document_id", documentID, "error", err)
	}
}
