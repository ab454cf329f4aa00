// Package apiserver is the reference HTTP/WebSocket server exposing a
// conversation's lifecycle over the network: search/create, send a
// message, respond to a pending confirmation, pause/resume, update
// secrets, and stream its events live. It is deliberately thin — every
// operation is a direct call into pkg/conversation; this package owns
// only routing, request/response shapes, and the live event fan-out.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coreagent/runtime/pkg/condense"
	"github.com/coreagent/runtime/pkg/confirm"
	"github.com/coreagent/runtime/pkg/indexstore"
	"github.com/coreagent/runtime/pkg/llm"
	"github.com/coreagent/runtime/pkg/secrets"
	"github.com/coreagent/runtime/pkg/security"
	"github.com/coreagent/runtime/pkg/step"
	"github.com/coreagent/runtime/pkg/tool"
)

// Dependencies are the per-conversation defaults an embedding application
// supplies once at startup. A new conversation inherits them unless the
// create request overrides the fields that are safe to override
// (workspace, system prompt, agent class).
type Dependencies struct {
	LLM           llm.Client
	Tools         *tool.Registry
	Analyzer      security.Analyzer
	Policy        confirm.Policy
	Condenser     condense.Condenser
	Masker        step.Masker
	MaxIterations int
	SystemPrompt  string

	// PersistRoot is the directory under which each conversation gets its
	// own PersistDir (PersistRoot/<conversation_id>).
	PersistRoot string
}

// Server is the gin-based HTTP/WebSocket API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Dependencies
	index      *indexstore.Store
	registry   *conversationRegistry
}

// NewServer wires routes against deps and index. index may be nil, in
// which case list/search endpoints respond 503 — the conversation
// lifecycle endpoints work regardless, since the EventLog (not the
// index) is the source of truth.
func NewServer(deps Dependencies, index *indexstore.Store) *Server {
	s := &Server{
		deps:     deps,
		index:    index,
		registry: newConversationRegistry(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	s.router = router
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	v1.GET("/conversations", s.listConversationsHandler)
	v1.GET("/conversations/search", s.searchConversationsHandler)
	v1.POST("/conversations", s.createConversationHandler)
	v1.GET("/conversations/:id", s.getConversationHandler)
	v1.POST("/conversations/:id/events", s.sendMessageHandler)
	v1.POST("/conversations/:id/secrets", s.updateSecretsHandler)
	v1.POST("/conversations/:id/confirm", s.confirmHandler)
	v1.POST("/conversations/:id/reject", s.rejectHandler)
	v1.POST("/conversations/:id/pause", s.pauseHandler)
	v1.POST("/conversations/:id/run", s.runHandler)

	s.router.GET("/ws/conversations/:id/events", s.wsHandler)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails to serve.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) persistDirFor(conversationID string) string {
	if s.deps.PersistRoot == "" {
		return ""
	}
	return filepath.Join(s.deps.PersistRoot, conversationID)
}

func (s *Server) secretSource(value string) secrets.Source {
	return secrets.StaticSource(value)
}

var errIndexUnavailable = fmt.Errorf("apiserver: conversation index not configured")
