// Package http exposes the provisioning service over a REST API. Responses
// use a {success, data, error} envelope; every request gets a request id for
// log correlation.
package http

import (
	"context"
	"log/slog"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/provisioner"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/template"
)

// Server is the REST boundary over the provisioning service.
type Server struct {
	svc    *provisioner.Service
	cfg    config.ServerConfig
	logger *slog.Logger
	router *gin.Engine
}

// NewServer builds the router with all routes and middleware attached.
func NewServer(svc *provisioner.Service, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With("component", "gateway"),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestID())
	r.Use(s.cors())
	r.Use(s.accessLog())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.Use(s.requireAPIKey())
	{
		api.POST("/agents", s.handleProvision)
		api.POST("/agents/:workflowId/prompt", s.handlePrompt)
		api.GET("/workflows", s.handleListWorkflows)
		api.GET("/workflows/:id", s.handleGetWorkflow)
		api.PATCH("/workflows/:id", s.handlePatchWorkflow)
		api.DELETE("/workflows/:id", s.handleDeleteWorkflow)
		api.POST("/workflows/:id/sync", s.handleSync)
		api.GET("/workflows/:id/credentials", s.handleGetCredentials)
		api.PUT("/config/engine", s.handleRotateEndpoint)
	}

	s.router = r
	return s
}

// Handler returns the router as a stdlib handler.
func (s *Server) Handler() stdhttp.Handler { return s.router }

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &stdhttp.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// envelope is the uniform response shape
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(stdhttp.StatusOK, envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(stdhttp.StatusCreated, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: msg})
}

// respondFailure maps classified errors onto HTTP statuses.
func (s *Server) respondFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errors.ErrWorkflowNotFound),
		errors.Is(err, errors.ErrStructuralNotFound):
		respondError(c, stdhttp.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrEngineNotConfigured):
		respondError(c, stdhttp.StatusServiceUnavailable, err.Error())
	case errors.IsInvalid(err):
		respondError(c, stdhttp.StatusBadRequest, err.Error())
	case errors.IsRemoteUnavailable(err):
		respondError(c, stdhttp.StatusBadGateway, err.Error())
	default:
		if status := errors.RemoteStatus(err); status >= 400 && status < 500 {
			respondError(c, stdhttp.StatusBadGateway, err.Error())
			return
		}
		respondError(c, stdhttp.StatusInternalServerError, err.Error())
	}
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) cors() gin.HandlerFunc {
	origins := map[string]bool{}
	for _, o := range s.cfg.CORSOrigins {
		origins[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origins["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && origins[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == stdhttp.MethodOptions {
			c.AbortWithStatus(stdhttp.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("requestID"))
	}
}

// requireAPIKey guards the API group when a key is configured. An empty
// configured key leaves the API open, which suits local development.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+s.cfg.APIKey {
			respondError(c, stdhttp.StatusUnauthorized, "invalid or missing API key")
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	respondOK(c, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleProvision(c *gin.Context) {
	var req provisioner.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, stdhttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.OwnerID = ownerFromQuery(c)

	result, err := s.svc.ProvisionAgent(c.Request.Context(), req)
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondCreated(c, result)
}

type promptRequest struct {
	Prompt     string                   `json:"prompt"`
	NameHint   string                   `json:"agentName"`
	Structured *template.PromptSections `json:"structured"`
}

func (s *Server) handlePrompt(c *gin.Context) {
	workflowID := c.Param("workflowId")
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, stdhttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var err error
	switch {
	case req.Structured != nil:
		err = s.svc.ApplyStructuredPrompt(c.Request.Context(), workflowID, *req.Structured)
	case req.Prompt != "":
		err = s.svc.UpdateAgentPrompt(c.Request.Context(), workflowID, req.Prompt, req.NameHint)
	default:
		respondError(c, stdhttp.StatusBadRequest, "either prompt or structured sections are required")
		return
	}
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, gin.H{"workflowId": workflowID})
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	list, err := s.svc.ListMirroredWorkflows(c.Request.Context(), ownerFromQuery(c))
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, list)
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	detail, err := s.svc.GetMirroredWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, detail)
}

type patchWorkflowRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *Server) handlePatchWorkflow(c *gin.Context) {
	id := c.Param("id")
	var req patchWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, stdhttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == nil && req.Active == nil {
		respondError(c, stdhttp.StatusBadRequest, "nothing to update")
		return
	}

	ctx := c.Request.Context()
	if req.Name != nil {
		if err := s.svc.RenameAgent(ctx, id, *req.Name); err != nil {
			s.respondFailure(c, err)
			return
		}
	}
	if req.Active != nil {
		if err := s.svc.SetAgentActive(ctx, id, *req.Active); err != nil {
			s.respondFailure(c, err)
			return
		}
	}
	respondOK(c, gin.H{"id": id})
}

func (s *Server) handleDeleteWorkflow(c *gin.Context) {
	if err := s.svc.DeleteAgent(c.Request.Context(), c.Param("id")); err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, gin.H{"id": c.Param("id")})
}

func (s *Server) handleSync(c *gin.Context) {
	count, err := s.svc.SyncFromEngine(c.Request.Context(), ownerFromQuery(c))
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, gin.H{"synced": count})
}

func (s *Server) handleGetCredentials(c *gin.Context) {
	creds, err := s.svc.GetMirroredCredentials(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, creds)
}

type rotateRequest struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
}

func (s *Server) handleRotateEndpoint(c *gin.Context) {
	var req rotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, stdhttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BaseURL == "" || req.APIKey == "" {
		respondError(c, stdhttp.StatusBadRequest, "baseUrl and apiKey are required")
		return
	}
	ep := config.Endpoint{BaseURL: req.BaseURL, APIKey: req.APIKey}
	if err := s.svc.RotateEndpoint(c.Request.Context(), ep); err != nil {
		s.respondFailure(c, err)
		return
	}
	respondOK(c, gin.H{"baseUrl": ep.Normalize().BaseURL})
}

func ownerFromQuery(c *gin.Context) *int64 {
	raw := c.Query("ownerId")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
