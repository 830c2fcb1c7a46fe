// Package handler exposes the audit trail over HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	auditrepo "attendance-verification-engine/internal/audit/repository"
)

// HTTPHandler serves audit log queries.
type HTTPHandler struct {
	repo auditrepo.Repository
}

// NewHTTPHandler returns a handler backed by repo.
func NewHTTPHandler(repo auditrepo.Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

// Register mounts the audit routes on the group.
func (h *HTTPHandler) Register(g *gin.RouterGroup) {
	g.GET("/lectures/:id/audit", h.listByLecture)
}

type entryDTO struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	LectureID string    `json:"lecture_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HTTPHandler) listByLecture(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 100)
	offset := parseQueryInt(c, "offset", 0)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := h.repo.ListByLecture(c.Request.Context(), c.Param("id"), int32(limit), int32(offset))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]entryDTO, len(entries))
	for i, e := range entries {
		out[i] = entryDTO{
			ID:        e.ID,
			StudentID: e.StudentID,
			LectureID: e.LectureID,
			Action:    e.Action,
			Resource:  e.Resource,
			IP:        e.IP,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

func parseQueryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
