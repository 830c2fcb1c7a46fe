// Package handler exposes room geometry management over HTTP.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-verification-engine/internal/geo"
	"attendance-verification-engine/internal/room"
	"attendance-verification-engine/internal/room/domain"
)

// HTTPHandler serves room publish and lookup endpoints.
type HTTPHandler struct {
	registry *room.Registry
}

// NewHTTPHandler returns a handler backed by the registry.
func NewHTTPHandler(registry *room.Registry) *HTTPHandler {
	return &HTTPHandler{registry: registry}
}

// Register mounts the room routes on the group.
func (h *HTTPHandler) Register(g *gin.RouterGroup) {
	g.POST("/rooms", h.publish)
	g.GET("/rooms", h.list)
	g.GET("/rooms/:id", h.get)
}

type vertexDTO struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type roomDTO struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Building             string      `json:"building"`
	Floor                int         `json:"floor"`
	Capacity             int         `json:"capacity"`
	Vertices             []vertexDTO `json:"vertices"`
	FloorAltitudeM       float64     `json:"floor_altitude_m"`
	CeilingAltitudeM     float64     `json:"ceiling_altitude_m"`
	ReferencePressureHPa float64     `json:"reference_pressure_hpa"`
	RefLat               float64     `json:"ref_lat"`
	RefLng               float64     `json:"ref_lng"`
	HorizontalToleranceM float64     `json:"horizontal_tolerance_m"`
	VerticalToleranceM   float64     `json:"vertical_tolerance_m"`
	CalibratedAt         time.Time   `json:"calibrated_at"`
}

func toDTO(rm *domain.Room) roomDTO {
	vertices := make([]vertexDTO, len(rm.Vertices))
	for i, v := range rm.Vertices {
		vertices[i] = vertexDTO{X: v.X, Y: v.Y}
	}
	return roomDTO{
		ID:                   rm.ID,
		Name:                 rm.Name,
		Building:             rm.Building,
		Floor:                rm.Floor,
		Capacity:             rm.Capacity,
		Vertices:             vertices,
		FloorAltitudeM:       rm.FloorAltitudeM,
		CeilingAltitudeM:     rm.CeilingAltitudeM,
		ReferencePressureHPa: rm.ReferencePressureHPa,
		RefLat:               rm.RefLat,
		RefLng:               rm.RefLng,
		HorizontalToleranceM: rm.HorizontalToleranceM,
		VerticalToleranceM:   rm.VerticalToleranceM,
		CalibratedAt:         rm.CalibratedAt,
	}
}

type publishRequest struct {
	ID                   string      `json:"id" binding:"required"`
	Name                 string      `json:"name" binding:"required"`
	Building             string      `json:"building"`
	Floor                int         `json:"floor"`
	Capacity             int         `json:"capacity"`
	Vertices             []vertexDTO `json:"vertices" binding:"required"`
	FloorAltitudeM       float64     `json:"floor_altitude_m"`
	CeilingAltitudeM     float64     `json:"ceiling_altitude_m"`
	ReferencePressureHPa float64     `json:"reference_pressure_hpa"`
	RefLat               float64     `json:"ref_lat"`
	RefLng               float64     `json:"ref_lng"`
	HorizontalToleranceM float64     `json:"horizontal_tolerance_m"`
	VerticalToleranceM   float64     `json:"vertical_tolerance_m"`
}

func (h *HTTPHandler) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vertices := make([]geo.Point, len(req.Vertices))
	for i, v := range req.Vertices {
		vertices[i] = geo.Point{X: v.X, Y: v.Y}
	}
	rm := &domain.Room{
		ID:                   req.ID,
		Name:                 req.Name,
		Building:             req.Building,
		Floor:                req.Floor,
		Capacity:             req.Capacity,
		Vertices:             vertices,
		FloorAltitudeM:       req.FloorAltitudeM,
		CeilingAltitudeM:     req.CeilingAltitudeM,
		ReferencePressureHPa: req.ReferencePressureHPa,
		RefLat:               req.RefLat,
		RefLng:               req.RefLng,
		HorizontalToleranceM: req.HorizontalToleranceM,
		VerticalToleranceM:   req.VerticalToleranceM,
		CalibratedAt:         time.Now().UTC(),
	}
	if err := h.registry.Publish(c.Request.Context(), rm); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidGeometry) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toDTO(rm))
}

func (h *HTTPHandler) get(c *gin.Context) {
	rm, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rm == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, toDTO(rm))
}

func (h *HTTPHandler) list(c *gin.Context) {
	rooms, err := h.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]roomDTO, len(rooms))
	for i, rm := range rooms {
		out[i] = toDTO(rm)
	}
	c.JSON(http.StatusOK, out)
}
