// Package handler exposes the verification flow over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-verification-engine/internal/biometric"
	"attendance-verification-engine/internal/geo"
	tokendomain "attendance-verification-engine/internal/token/domain"
	"attendance-verification-engine/internal/verification"
)

// Service is the slice of the orchestrator the HTTP layer needs.
type Service interface {
	ReportLocation(ctx context.Context, studentID, lectureID string, pos geo.Position) (verification.StageResult, error)
	SubmitToken(ctx context.Context, studentID, lectureID, value string) (verification.StageResult, error)
	SubmitBiometric(ctx context.Context, studentID, lectureID, signedAssertion string) (verification.StageResult, error)
	OverrideExceptional(ctx context.Context, studentID, lectureID, approverID, approverRole, justification string) (verification.StageResult, error)
	IssueToken(ctx context.Context, lectureID string, ttl time.Duration) (*tokendomain.Token, string, error)
}

// HTTPHandler serves the verification endpoints.
type HTTPHandler struct {
	svc Service
}

// NewHTTPHandler returns a handler backed by svc.
func NewHTTPHandler(svc Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register mounts the verification routes on the group.
func (h *HTTPHandler) Register(g *gin.RouterGroup) {
	g.POST("/verification/location", h.reportLocation)
	g.POST("/verification/token", h.submitToken)
	g.POST("/verification/biometric", h.submitBiometric)
	g.POST("/verification/override", h.override)
	g.POST("/lectures/:id/token", h.issueToken)
}

type stageResponse struct {
	Stage          string `json:"stage"`
	Passed         bool   `json:"passed"`
	Reason         string `json:"reason,omitempty"`
	TriesRemaining int    `json:"tries_remaining"`
}

func writeStage(c *gin.Context, res verification.StageResult) {
	resp := stageResponse{Passed: res.Passed, Reason: res.Reason, TriesRemaining: res.TriesRemaining}
	if res.Session != nil {
		resp.Stage = string(res.Session.Stage)
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, res verification.StageResult, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, verification.ErrUnknownLecture), errors.Is(err, verification.ErrUnknownRoom):
		status = http.StatusNotFound
	case errors.Is(err, verification.ErrLectureClosed), errors.Is(err, verification.ErrWrongStage):
		status = http.StatusConflict
	case errors.Is(err, verification.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, verification.ErrOverrideDenied):
		status = http.StatusForbidden
	case errors.Is(err, biometric.ErrNoDeviceKey):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, tokendomain.ErrInvalidTTL):
		status = http.StatusBadRequest
	}
	body := gin.H{"error": err.Error()}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	if res.Session != nil {
		body["stage"] = string(res.Session.Stage)
	}
	c.JSON(status, body)
}

type locationRequest struct {
	StudentID   string  `json:"student_id" binding:"required"`
	LectureID   string  `json:"lecture_id" binding:"required"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	AltitudeM   float64 `json:"altitude_m"`
	AccuracyM   float64 `json:"accuracy_m"`
	PressureHPa float64 `json:"pressure_hpa"`
	// Lat/Lng are an alternative to x/y for clients reporting raw GPS.
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *HTTPHandler) reportLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos := geo.Position{
		Point:       geo.Point{X: req.X, Y: req.Y},
		AltitudeM:   req.AltitudeM,
		AccuracyM:   req.AccuracyM,
		PressureHPa: req.PressureHPa,
	}
	if req.Lat != nil && req.Lng != nil {
		pos.Lat, pos.Lng, pos.HasLatLng = *req.Lat, *req.Lng, true
	}
	res, err := h.svc.ReportLocation(c.Request.Context(), req.StudentID, req.LectureID, pos)
	if err != nil {
		writeError(c, res, err)
		return
	}
	writeStage(c, res)
}

type tokenRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	LectureID string `json:"lecture_id" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

func (h *HTTPHandler) submitToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SubmitToken(c.Request.Context(), req.StudentID, req.LectureID, req.Token)
	if err != nil {
		writeError(c, res, err)
		return
	}
	writeStage(c, res)
}

type biometricRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	LectureID string `json:"lecture_id" binding:"required"`
	Assertion string `json:"assertion" binding:"required"`
}

func (h *HTTPHandler) submitBiometric(c *gin.Context) {
	var req biometricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SubmitBiometric(c.Request.Context(), req.StudentID, req.LectureID, req.Assertion)
	if err != nil {
		writeError(c, res, err)
		return
	}
	writeStage(c, res)
}

type overrideRequest struct {
	StudentID     string `json:"student_id" binding:"required"`
	LectureID     string `json:"lecture_id" binding:"required"`
	ApproverID    string `json:"approver_id" binding:"required"`
	ApproverRole  string `json:"approver_role" binding:"required"`
	Justification string `json:"justification"`
}

func (h *HTTPHandler) override(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.OverrideExceptional(c.Request.Context(),
		req.StudentID, req.LectureID, req.ApproverID, req.ApproverRole, req.Justification)
	if err != nil {
		writeError(c, res, err)
		return
	}
	writeStage(c, res)
}

type issueTokenRequest struct {
	TTLSeconds int64 `json:"ttl_seconds" binding:"required"`
}

type issueTokenResponse struct {
	TokenID   string    `json:"token_id"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *HTTPHandler) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, value, err := h.svc.IssueToken(c.Request.Context(), c.Param("id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(c, verification.StageResult{}, err)
		return
	}
	c.JSON(http.StatusCreated, issueTokenResponse{
		TokenID:   tok.ID,
		Value:     value,
		ExpiresAt: tok.ExpiresAt,
	})
}
