package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything InitRoutes mounts.
type Handlers struct {
	Templates    *TemplateHandler
	Allocations  *AllocationHandler
	Reservations *ReservationHandler
	Bundles      *BundleHandler
	Webhooks     *WebhookHandler
}

func InitRoutes(h *Handlers, requestTimeout time.Duration) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(requestTimeout))

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/session-types", h.Templates.CreateSessionType)

		templates := api.Group("/templates")
		{
			templates.POST("", h.Templates.CreateTemplate)
			templates.GET("/:id/slots", h.Templates.GetSlots)
			templates.GET("/:id/allocations", h.Templates.ListAllocations)
		}

		allocations := api.Group("/allocations")
		{
			allocations.POST("", h.Allocations.GetOrCreate)
			allocations.GET("/:id", h.Allocations.Get)
			allocations.PATCH("/:id/status", h.Allocations.SetStatus)
			allocations.POST("/:id/cancel", h.Allocations.Cancel)
			allocations.GET("/:id/reservations", h.Allocations.ListReservations)
		}

		reservations := api.Group("/reservations")
		{
			reservations.POST("", h.Reservations.Create)
			reservations.POST("/group", h.Reservations.CreateGroup)
			reservations.GET("/:id", h.Reservations.Get)
			reservations.POST("/:id/confirm", h.Reservations.Confirm)
			reservations.POST("/:id/validate", h.Reservations.Validate)
			reservations.POST("/:id/cancel", h.Reservations.Cancel)
		}

		api.GET("/groups/:id", h.Reservations.GetGroup)

		bundles := api.Group("/bundles")
		{
			bundles.POST("", h.Bundles.Create)
			bundles.GET("/:id", h.Bundles.Get)
			bundles.GET("/:id/events", h.Bundles.Events)
			bundles.POST("/:id/expire", h.Bundles.Expire)
			bundles.POST("/:id/cancel", h.Bundles.Cancel)
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("", h.Webhooks.Register)
			webhooks.GET("/:id/deliveries", h.Webhooks.Deliveries)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	return router
}
