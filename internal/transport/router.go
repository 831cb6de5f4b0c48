package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/portfolio-api/internal/domain/event"
	domainresource "github.com/alanyang/portfolio-api/internal/domain/resource"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"
	documentsvc "github.com/alanyang/portfolio-api/internal/service/document"
	"github.com/alanyang/portfolio-api/internal/transport/envelope"

	resourcehandler "github.com/alanyang/portfolio-api/internal/transport/resource"
	wshandler "github.com/alanyang/portfolio-api/internal/transport/ws"
)

// Pinger reports storage reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	ctx context.Context,
	mode domainresource.Mode,
	services []*documentsvc.Service,
	store Pinger,
	eventBus porteventbus.EventBus,
	mcpHandler http.Handler,
	cache ResponseCache,
	idempotencyTTL time.Duration,
	metrics *Metrics,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())
	if metrics != nil {
		r.Use(metrics.Middleware())
	}
	r.Use(CORSMiddleware())
	r.Use(IdempotencyMiddleware(cache, idempotencyTTL))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "Server is running smoothly",
			"timestamp": time.Now().UTC(),
		})
	})
	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			envelope.Fail(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		envelope.Message(c, http.StatusOK, "ok")
	})

	api := r.Group("/api")
	for _, svc := range services {
		resourcehandler.Register(api.Group("/"+string(svc.Resource().Collection)), svc, mode)
	}

	hub := wshandler.NewHub()
	hub.Register(api.Group("/ws"))

	if metrics != nil {
		metrics.TrackClients(hub.Len)
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// One subscription per collection channel; event.Collection in the
	// payload lets the client filter.
	for _, ch := range event.Channels() {
		c := ch
		if _, err := eventBus.Subscribe(ctx, c, func(_ context.Context, e event.Event) {
			hub.Broadcast(e)
		}); err != nil {
			slog.Error("failed to subscribe channel to WS hub", "channel", c, "error", err)
		}
	}

	if mcpHandler != nil {
		r.Any("/mcp", gin.WrapH(mcpHandler))
	}

	return r
}
