// Package httpapi serves media records and transcode progress over HTTP.
//
// Routes (under /api/v1):
//
//	GET    /health
//	GET    /media/:cid       classified record for an identifier
//	POST   /transcode/:cid   submit a job and start watching it
//	GET    /transcode/:cid   pending job and last known progress
//	DELETE /transcode/:cid   stop watching (the pending job is kept)
//
// Encrypted identifiers carry their key in the path segment, so the API is
// meant for a trusted local listener.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/media"
	"xdao.co/mediacid/pipeline"
	"xdao.co/mediacid/transcode"
)

const requestIDKey = "request_id"

type Options struct {
	Merger *media.Merger
	// Pipeline and Poller are optional; without them the transcode routes
	// answer 503.
	Pipeline *pipeline.Service
	Poller   *pipeline.Poller
	Logger   hclog.Logger
	// BaseContext parents poll loops started by POST /transcode. Defaults to
	// context.Background.
	BaseContext context.Context
}

type Server struct {
	merger   *media.Merger
	pipeline *pipeline.Service
	poller   *pipeline.Poller
	logger   hclog.Logger
	baseCtx  context.Context
	engine   *gin.Engine
}

func New(opts Options) (*Server, error) {
	if opts.Merger == nil {
		return nil, errors.New("httpapi: merger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	s := &Server{
		merger:   opts.Merger,
		pipeline: opts.Pipeline,
		poller:   opts.Poller,
		logger:   logger.Named("http"),
		baseCtx:  base,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.RegisterRoutes(r.Group("/api/v1"))
	s.engine = r
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", s.health)
	r.GET("/media/:cid", s.getMedia)
	r.POST("/transcode/:cid", s.submitTranscode)
	r.GET("/transcode/:cid", s.getTranscode)
	r.DELETE("/transcode/:cid", s.stopTranscode)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(transcode.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(transcode.RequestIDHeader, id)
		c.Next()
	}
}

// accessLog logs the route template, never the raw path, so embedded keys
// stay out of logs.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDKey))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"transcoder": s.pipeline != nil,
	})
}

func (s *Server) parseRef(c *gin.Context) (cidcodec.Ref, bool) {
	ref, err := pipeline.ParseRef(c.Param("cid"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return ref, true
}

// fail maps err to a status code and writes the JSON error body.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case cidcodec.IsMalformed(err):
		status = http.StatusBadRequest
	case cidcodec.IsKeyMismatch(err):
		status = http.StatusForbidden
	case errors.Is(err, transcode.ErrNoPendingJob):
		status = http.StatusNotFound
	case transcode.IsDuplicateMerge(err):
		status = http.StatusConflict
	case transcode.Retryable(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "route", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      http.StatusText(status),
		"details":    err.Error(),
		"request_id": c.GetString(requestIDKey),
	})
}
