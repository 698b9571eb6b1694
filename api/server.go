package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gregtusar/synthlong/pkg/screener"
	"github.com/gregtusar/synthlong/pkg/strategy"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Port          string
	AllowedOrigin string
	JWTSecret     string
}

type Server struct {
	engine     screener.Evaluator
	runner     *screener.Runner
	params     strategy.Parameters
	logger     *logrus.Logger
	opts       Options
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the HTTP API. runner may be nil, in which case the run
// endpoints answer 503.
func NewServer(engine screener.Evaluator, runner *screener.Runner, params strategy.Parameters, opts Options, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	s := &Server{
		engine: engine,
		runner: runner,
		params: params,
		logger: logger,
		opts:   opts,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), corsMiddleware(s.opts.AllowedOrigin))

	router.GET("/api/health", s.handleHealth)

	protected := router.Group("/api")
	if s.opts.JWTSecret != "" {
		protected.Use(jwtMiddleware([]byte(s.opts.JWTSecret)))
	}
	protected.GET("/screen/:ticker", s.handleScreen)
	protected.GET("/screen/:ticker/best", s.handleBest)
	protected.GET("/runs/latest", s.handleLatestRun)
	protected.POST("/runs", s.handleTriggerRun)
	protected.GET("/price", s.handlePrice)
	protected.GET("/ws/runs", s.handleRunFeed)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. A server shut down before Start
// returns immediately without listening.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on port %s", s.opts.Port)
	return serveResult(s.httpServer.ListenAndServe())
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infof("Starting API server on %s", l.Addr())
	return serveResult(s.httpServer.Serve(l))
}

func serveResult(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) fail(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
		s.logger.WithError(err).WithField("path", c.FullPath()).Warn(message)
	}
	c.AbortWithStatusJSON(status, body)
}
