package resource

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	domainresource "github.com/alanyang/portfolio-api/internal/domain/resource"
	documentsvc "github.com/alanyang/portfolio-api/internal/service/document"
	"github.com/alanyang/portfolio-api/internal/transport/envelope"
)

var errBodyNotObject = errors.New("request body must be a JSON object")

// Register mounts the CRUD handler set for the service's resource.
// [SRP] HTTP mapping only: every handler makes exactly one service call.
func Register(rg *gin.RouterGroup, svc *documentsvc.Service, mode domainresource.Mode) {
	rg.POST("", createDocument(svc))
	rg.GET("", listDocuments(svc))
	if svc.Resource().SingleFetch {
		rg.GET("/:id", getDocument(svc, mode))
	}
	rg.PUT("/:id", updateDocument(svc, mode))
	rg.DELETE("/:id", deleteDocument(svc, mode))
}

func createDocument(svc *documentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := bindDocument(c)
		if err != nil {
			envelope.Fail(c, http.StatusBadRequest, err.Error())
			return
		}

		res, err := svc.Create(c.Request.Context(), doc)
		if err != nil {
			failure(c, err, domainresource.ModeCompat)
			return
		}
		envelope.Created(c, http.StatusCreated, svc.Resource().CreatedMessage, res)
	}
}

func listDocuments(svc *documentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := svc.List(c.Request.Context())
		if err != nil {
			failure(c, err, domainresource.ModeCompat)
			return
		}
		if docs == nil {
			docs = []domaindocument.Document{}
		}
		envelope.Data(c, http.StatusOK, docs)
	}
}

func getDocument(svc *documentsvc.Service, mode domainresource.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svc.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, domaindocument.ErrNotFound) {
			if mode == domainresource.ModeStrict {
				envelope.Fail(c, http.StatusNotFound, svc.Resource().NotFoundMessage())
				return
			}
			envelope.Data(c, http.StatusOK, nil)
			return
		}
		if err != nil {
			failure(c, err, mode)
			return
		}
		envelope.Data(c, http.StatusOK, doc)
	}
}

func updateDocument(svc *documentsvc.Service, mode domainresource.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := bindDocument(c)
		if err != nil {
			envelope.Fail(c, http.StatusBadRequest, err.Error())
			return
		}

		err = svc.Update(c.Request.Context(), c.Param("id"), fields)
		if errors.Is(err, domaindocument.ErrNoChanges) {
			envelope.Fail(c, http.StatusNotFound, domainresource.NoChangesMessage)
			return
		}
		if err != nil {
			failure(c, err, mode)
			return
		}
		envelope.Message(c, http.StatusOK, svc.Resource().UpdatedMessage())
	}
}

func deleteDocument(svc *documentsvc.Service, mode domainresource.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := svc.Delete(c.Request.Context(), c.Param("id"))
		if errors.Is(err, domaindocument.ErrNotFound) {
			envelope.Fail(c, http.StatusNotFound, svc.Resource().NotFoundMessage())
			return
		}
		if err != nil {
			failure(c, err, mode)
			return
		}
		envelope.Message(c, http.StatusOK, svc.Resource().DeletedMessage())
	}
}

// failure reports an infrastructure error. Only strict mode distinguishes a
// malformed identifier from a storage failure.
func failure(c *gin.Context, err error, mode domainresource.Mode) {
	if mode == domainresource.ModeStrict && errors.Is(err, domaindocument.ErrInvalidID) {
		envelope.Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	slog.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method, "path", c.FullPath(), "error", err)
	envelope.Fail(c, http.StatusInternalServerError, err.Error())
}

// bindDocument decodes the body as a JSON object. A missing body is an empty
// document.
func bindDocument(c *gin.Context) (domaindocument.Document, error) {
	doc := domaindocument.Document{}
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return doc, nil
	}
	if err := c.ShouldBindJSON(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return domaindocument.Document{}, nil
		}
		return nil, err
	}
	if doc == nil {
		return nil, errBodyNotObject
	}
	return doc, nil
}
