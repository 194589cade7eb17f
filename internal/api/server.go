package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/pipeline"
	"github.com/pgx-knowledge-graph/internal/store"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	Genes   []string        `json:"genes" binding:"required,min=1"`
	Patient *domain.Patient `json:"patient,omitempty"`
}

// Server is the HTTP API over the pipeline and the run-history store.
type Server struct {
	config       *domain.Config
	orchestrator *pipeline.Orchestrator
	kb           *external.KnowledgeBase
	bus          *events.Bus
	runs         store.Store
	logger       *logrus.Logger
	router       *gin.Engine
	server       *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard clients connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer creates the HTTP server.
func NewServer(config *domain.Config, orchestrator *pipeline.Orchestrator, kb *external.KnowledgeBase, bus *events.Bus, runs store.Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	s := &Server{
		config:       config,
		orchestrator: orchestrator,
		kb:           kb,
		bus:          bus,
		runs:         runs,
		logger:       logger,
		router:       router,
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/events", s.handleEvents)
	}
}

// handleHealth reports process health including breaker states.
func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if s.kb != nil {
		breakers := make(map[string]string)
		for name, state := range s.kb.BreakerStates() {
			breakers[name] = state.String()
		}
		health["circuit_breakers"] = breakers
	}
	c.JSON(http.StatusOK, health)
}

// handleAnalyze runs the pipeline synchronously for the requested genes.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run := s.orchestrator.RunMulti(c.Request.Context(), req.Genes, req.Patient)

	if s.runs != nil {
		patientID := ""
		if req.Patient != nil {
			patientID = req.Patient.PatientID
		}
		record := store.RecordFromRun(patientID, req.Genes, run)
		if err := s.runs.Save(c.Request.Context(), record); err != nil {
			s.logger.WithError(err).Warn("Failed to persist run record")
		}
	}

	status := http.StatusOK
	if !run.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, run)
}

// handleListRuns pages through persisted runs.
func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history store not configured"})
		return
	}
	limit, offset := 50, 0
	fmt.Sscanf(c.DefaultQuery("limit", "50"), "%d", &limit)
	fmt.Sscanf(c.DefaultQuery("offset", "0"), "%d", &offset)

	records, err := s.runs.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.runs.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": records, "total": total})
}

// handleGetRun returns one persisted run.
func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history store not configured"})
		return
	}
	record, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleEvents streams pipeline events over a websocket.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	ctx := c.Request.Context()
	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
