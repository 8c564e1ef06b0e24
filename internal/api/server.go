// Package api is the HTTP façade: gin handlers that translate JSON requests
// into core calls and typed failures into status codes.
package api

import (
	"errors"
	"net/http"

	"code-judge/internal/auth"
	"code-judge/internal/cache"
	"code-judge/internal/catalog"
	"code-judge/internal/config"
	"code-judge/internal/fixtures"
	"code-judge/internal/grader"
	"code-judge/internal/logging"
	"code-judge/internal/progress"
	"code-judge/internal/runner"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server bundles the judge's core components behind the HTTP handlers.
type Server struct {
	cfg      *config.Config
	catalog  *catalog.Store
	fixtures *fixtures.Store
	runner   *runner.Runner
	grader   *grader.Grader
	progress *progress.Engine
	auth     *auth.Service
	cache    *cache.Cache
	log      *zap.Logger
}

// NewServer wires the façade.
func NewServer(cfg *config.Config, cat *catalog.Store, fx *fixtures.Store, run *runner.Runner, gr *grader.Grader, prog *progress.Engine, authSvc *auth.Service, c *cache.Cache) *Server {
	return &Server{
		cfg:      cfg,
		catalog:  cat,
		fixtures: fx,
		runner:   run,
		grader:   gr,
		progress: prog,
		auth:     authSvc,
		cache:    c,
		log:      logging.L().Named("api"),
	}
}

// fail maps a core error to its HTTP status. Anything unrecognized is a
// storage-level failure and comes back as a 500 without leaking internals.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, fixtures.ErrNotFound),
		errors.Is(err, progress.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "NOT_FOUND"})

	case errors.Is(err, catalog.ErrInvalidID),
		errors.Is(err, catalog.ErrNoTestCases),
		errors.Is(err, fixtures.ErrInvalidPath),
		errors.Is(err, fixtures.ErrInvalidPermissions),
		errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_ERROR"})

	case errors.Is(err, runner.ErrUnknownLanguage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "UNKNOWN_LANGUAGE"})

	case errors.Is(err, runner.ErrRuntimeUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "RUNTIME_UNAVAILABLE"})

	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "INVALID_CREDENTIALS"})

	default:
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  "STORAGE_ERROR",
		})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "VALIDATION_ERROR"})
}
