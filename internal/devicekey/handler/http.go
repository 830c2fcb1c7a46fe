// Package handler exposes device key registration over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-verification-engine/internal/devicekey/domain"
	devicekeyrepo "attendance-verification-engine/internal/devicekey/repository"
	"attendance-verification-engine/internal/security"
)

// HTTPHandler serves device key registration.
type HTTPHandler struct {
	repo devicekeyrepo.Repository
}

// NewHTTPHandler returns a handler backed by repo.
func NewHTTPHandler(repo devicekeyrepo.Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

// Register mounts the device key routes on the group.
func (h *HTTPHandler) Register(g *gin.RouterGroup) {
	g.POST("/device-keys", h.create)
}

type createRequest struct {
	StudentID    string `json:"student_id" binding:"required"`
	DeviceID     string `json:"device_id" binding:"required"`
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
}

func (h *HTTPHandler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Reject keys we could never verify assertions against.
	if _, err := security.ParsePublicKey(req.PublicKeyPEM); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := &domain.DeviceKey{
		StudentID:    req.StudentID,
		DeviceID:     req.DeviceID,
		PublicKeyPEM: req.PublicKeyPEM,
		RegisteredAt: time.Now().UTC(),
	}
	if err := h.repo.Create(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"student_id": key.StudentID,
		"device_id":  key.DeviceID,
	})
}
