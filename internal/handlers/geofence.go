package handlers

import (
	"errors"
	"net/http"

	"stovewatch/internal/models"
	"stovewatch/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusStarted = "started"
	statusStopped = "stopped"
	statusHomeSet = "home_set"
	statusCleared = "home_cleared"

	errStartMonitoring = "failed to start monitoring"
	errSetHome         = "failed to set home location"
	errClearHome       = "failed to clear home location"
	errCheckNow        = "stove check failed"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status plus the current monitor snapshot.
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Geofence.Status()
	c.JSON(http.StatusOK, resp)
}

// Request DTO for setting the home location. Latitude/longitude are pointers:
// `required` on a plain float64 would reject 0, a valid ordinate on the
// equator or prime meridian.
type homeRequest struct {
	Latitude       *float64 `json:"latitude" binding:"required"`
	Longitude      *float64 `json:"longitude" binding:"required"`
	AccuracyMeters float64  `json:"accuracy_meters,omitempty"`
	AltitudeMeters float64  `json:"altitude_meters,omitempty"`
}

// SetHomeRequest is an exported model for Swagger docs of the home payload.
type SetHomeRequest struct {
	// Latitude in degrees (WGS 84)
	Latitude float64 `json:"latitude" example:"37.0"`
	// Longitude in degrees (WGS 84)
	Longitude float64 `json:"longitude" example:"-122.0"`
	// Reported fix accuracy in meters
	AccuracyMeters float64 `json:"accuracy_meters,omitempty" example:"8"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start geofence monitoring
// @Tags         geofence
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/geofence/start [post]
// @Security     BearerAuth
func (h *Handler) startMonitoring(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Geofence.Start(ctx); err != nil {
		if errors.Is(err, service.ErrNoHomeLocation) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errStartMonitoring, "monitoring_start_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStarted, gin.H{})
}

// @Summary      Stop geofence monitoring
// @Tags         geofence
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/geofence/stop [post]
// @Security     BearerAuth
func (h *Handler) stopMonitoring(c *gin.Context) {
	h.services.Geofence.Stop(c.Request.Context())
	h.respondWithStatusAndState(c, statusStopped, gin.H{})
}

// @Summary      Get monitor status
// @Tags         geofence
// @Produce      json
// @Success      200  {object}  models.GeofenceStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/geofence/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Geofence.Status())
}

// @Summary      Set home location
// @Tags         geofence
// @Accept       json
// @Produce      json
// @Param        body  body   SetHomeRequest  true  "Home coordinates"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/geofence/home [put]
// @Security     BearerAuth
func (h *Handler) setHome(c *gin.Context) {
	var req homeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	loc := models.Coordinate{
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		AltitudeMeters: req.AltitudeMeters,
	}
	if err := h.services.Geofence.SetHomeLocation(c.Request.Context(), loc); err != nil {
		if errors.Is(err, service.ErrInvalidCoordinate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSetHome, "set_home_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusHomeSet, gin.H{})
}

// @Summary      Clear home location
// @Description  Stops monitoring and removes the persisted home record.
// @Tags         geofence
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/geofence/home [delete]
// @Security     BearerAuth
func (h *Handler) clearHome(c *gin.Context) {
	if err := h.services.Geofence.ClearHomeLocation(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errClearHome, "clear_home_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusCleared, gin.H{})
}

// @Summary      Run a stove check now
// @Description  One on-demand detection attempt, outside geofence bookkeeping.
// @Tags         detection
// @Produce      json
// @Success      200  {object}  models.DetectionResult
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/detect [post]
// @Security     BearerAuth
func (h *Handler) checkNow(c *gin.Context) {
	res, err := h.services.Geofence.CheckNow(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errCheckNow, "manual_check_failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
