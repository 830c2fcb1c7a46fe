// Package server assembles the HTTP API from the per-context handlers.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registrar mounts a handler's routes on the versioned API group.
type Registrar interface {
	Register(g *gin.RouterGroup)
}

// HealthCheck probes one dependency. A nil return means healthy.
type HealthCheck func(ctx context.Context) error

// NewRouter builds the gin engine with all handlers mounted under /v1 and a
// /healthz endpoint running the named checks. env selects the gin mode;
// anything other than a development environment runs in release mode.
func NewRouter(env string, registrars []Registrar, checks map[string]HealthCheck) *gin.Engine {
	switch env {
	case "dev", "development":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), clientIPMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
			} else {
				results[name] = "ok"
			}
		}
		c.JSON(status, results)
	})

	v1 := r.Group("/v1")
	for _, reg := range registrars {
		reg.Register(v1)
	}
	return r
}
