package handlers

import (
	"net/http"
	"time"

	"stovewatch/internal/models"

	"github.com/gin-gonic/gin"
)

// Request DTO for a pushed location fix. Latitude/longitude are pointers so
// `required` accepts an explicit 0 (equator, prime meridian).
type locationRequest struct {
	Latitude         *float64   `json:"latitude" binding:"required"`
	Longitude        *float64   `json:"longitude" binding:"required"`
	AccuracyMeters   float64    `json:"accuracy_meters,omitempty"`
	AltitudeMeters   float64    `json:"altitude_meters,omitempty"`
	HeadingDeg       float64    `json:"heading_deg,omitempty"`
	SpeedMps         float64    `json:"speed_mps,omitempty"`
	SpeedAccuracyMps float64    `json:"speed_accuracy_mps,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

// @Summary      Push a location fix
// @Description  Companion devices report the user's position here; the monitor samples the freshest fix.
// @Tags         location
// @Accept       json
// @Produce      json
// @Param        body  body   locationRequest  true  "Location fix"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/location [post]
// @Security     BearerAuth
func (h *Handler) pushLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	loc := models.Coordinate{
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		AccuracyMeters:   req.AccuracyMeters,
		AltitudeMeters:   req.AltitudeMeters,
		HeadingDeg:       req.HeadingDeg,
		SpeedMps:         req.SpeedMps,
		SpeedAccuracyMps: req.SpeedAccuracyMps,
	}
	if req.Timestamp != nil {
		loc.Timestamp = req.Timestamp.UTC()
	}

	if !h.relay.Push(loc) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinate has no usable latitude/longitude"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
