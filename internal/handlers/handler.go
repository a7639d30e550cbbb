package handlers

import (
	"stovewatch/internal/location"
	"stovewatch/internal/logger"
	"stovewatch/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services and logging. The optional relay is
// the push-style location source fed by the companion device; when location
// polling is configured instead, it is nil and the push endpoint is absent.
type Handler struct {
	services *service.Service
	relay    *location.Relay
	apiToken string
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. An empty token
// leaves the API open (LAN-only setups).
func NewHandler(services *service.Service, relay *location.Relay, apiToken string, log *logger.Logger) *Handler {
	return &Handler{services: services, relay: relay, apiToken: apiToken, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints (token-protected when a token is configured)
	h.registerAPIRoutes(router)

	// Live status over WebSocket (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.tokenMiddleware)
	{
		h.registerGeofenceRoutes(api)
		h.registerEventRoutes(api)

		if h.relay != nil {
			api.POST("/location", h.pushLocation)
		}
		api.POST("/detect", h.checkNow)
	}
}

func (h *Handler) registerGeofenceRoutes(api *gin.RouterGroup) {
	geofence := api.Group("/geofence")
	{
		geofence.POST("/start", h.startMonitoring)
		geofence.POST("/stop", h.stopMonitoring)
		geofence.GET("/status", h.getStatus)
		// Body example: {"latitude":37.0,"longitude":-122.0}
		geofence.PUT("/home", h.setHome)
		geofence.DELETE("/home", h.clearHome)
	}
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	events := api.Group("/events")
	{
		events.GET("/", h.getEvents)
	}
}
