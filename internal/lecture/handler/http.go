// Package handler exposes lecture scheduling over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attendance-verification-engine/internal/lecture/domain"
	lecturerepo "attendance-verification-engine/internal/lecture/repository"
)

// HTTPHandler serves lecture creation and lookup.
type HTTPHandler struct {
	repo lecturerepo.Repository
}

// NewHTTPHandler returns a handler backed by repo.
func NewHTTPHandler(repo lecturerepo.Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

// Register mounts the lecture routes on the group.
func (h *HTTPHandler) Register(g *gin.RouterGroup) {
	g.POST("/lectures", h.create)
	g.GET("/lectures/:id", h.get)
}

type createRequest struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id" binding:"required"`
	Title             string    `json:"title"`
	StartsAt          time.Time `json:"starts_at" binding:"required"`
	EndsAt            time.Time `json:"ends_at" binding:"required"`
	TokenMinTTLSecond int64     `json:"token_min_ttl_seconds"`
	TokenMaxTTLSecond int64     `json:"token_max_ttl_seconds"`
}

type lectureDTO struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id"`
	Title             string    `json:"title"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	TokenMinTTLSecond int64     `json:"token_min_ttl_seconds"`
	TokenMaxTTLSecond int64     `json:"token_max_ttl_seconds"`
}

func toDTO(l *domain.Lecture) lectureDTO {
	return lectureDTO{
		ID:                l.ID,
		RoomID:            l.RoomID,
		Title:             l.Title,
		StartsAt:          l.StartsAt,
		EndsAt:            l.EndsAt,
		TokenMinTTLSecond: int64(l.TokenMinTTL / time.Second),
		TokenMaxTTLSecond: int64(l.TokenMaxTTL / time.Second),
	}
}

func (h *HTTPHandler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be after starts_at"})
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	l := &domain.Lecture{
		ID:          id,
		RoomID:      req.RoomID,
		Title:       req.Title,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		TokenMinTTL: time.Duration(req.TokenMinTTLSecond) * time.Second,
		TokenMaxTTL: time.Duration(req.TokenMaxTTLSecond) * time.Second,
	}
	if err := h.repo.Create(c.Request.Context(), l); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toDTO(l))
}

func (h *HTTPHandler) get(c *gin.Context) {
	l, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if l == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "lecture not found"})
		return
	}
	c.JSON(http.StatusOK, toDTO(l))
}
