package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coreagent/runtime/pkg/convstate"
	"github.com/coreagent/runtime/pkg/conversation"
	"github.com/coreagent/runtime/pkg/indexstore"
)

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, errorResponse{Error: err.Error()})
}

// createConversationHandler handles POST /api/v1/conversations.
func (s *Server) createConversationHandler(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	b := newBroadcaster()
	m := &managedConversation{workspace: req.Workspace, agentClass: req.AgentClass, broadcaster: b}

	cfg := conversation.Config{
		ConversationID: conversationID,
		Workspace:      req.Workspace,
		PersistDir:     s.persistDirFor(conversationID),
		LLM:            s.deps.LLM,
		Tools:          s.deps.Tools,
		Analyzer:       s.deps.Analyzer,
		Policy:         s.deps.Policy,
		Masker:         s.deps.Masker,
		Condenser:      s.deps.Condenser,
		MaxIterations:  s.deps.MaxIterations,
		SystemPrompt:   req.SystemPrompt,
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = s.deps.SystemPrompt
	}

	callbacks := s.newManagedCallbacks(b, func(status convstate.Status) {
		s.upsertIndex(m, string(status))
	})

	conv, err := conversation.New(cfg, callbacks)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	m.conv = conv
	s.registry.put(m)
	s.upsertIndex(m, string(conv.Status()))

	c.JSON(http.StatusCreated, conversationResponse{
		ConversationID: conv.ID(),
		Status:         string(conv.Status()),
	})
}

func (s *Server) upsertIndex(m *managedConversation, status string) {
	if s.index == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if status == "" {
		status = string(m.conv.Status())
	}
	title, _ := m.conv.GenerateTitle(ctx, nil)
	if err := s.index.Upsert(ctx, indexstore.Record{
		ConversationID: m.conv.ID(),
		Workspace:      m.workspace,
		AgentClass:     m.agentClass,
		Status:         status,
		Title:          title,
	}); err != nil {
		// The EventLog remains authoritative; a failed index write only
		// degrades search/list until the next status change retries it.
		_ = err
	}
}

// getConversationHandler handles GET /api/v1/conversations/:id.
func (s *Server) getConversationHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	c.JSON(http.StatusOK, conversationDetailResponse{
		ConversationID: m.conv.ID(),
		Status:         string(m.conv.Status()),
		Events:         m.conv.History(),
	})
}

// sendMessageHandler handles POST /api/v1/conversations/:id/events.
func (s *Server) sendMessageHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	ev, err := m.conv.SendMessage(req.Text)
	if err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

// runHandler handles POST /api/v1/conversations/:id/run. Run blocks
// until the conversation stops making progress (idle, finished, paused,
// stuck, waiting-for-confirmation, or errored), so it is driven on a
// background goroutine — the handler returns immediately with the
// "started" status and clients observe actual progress over the
// WebSocket event stream or by polling GET /conversations/:id.
func (s *Server) runHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	go func() {
		if err := m.conv.Run(context.Background()); err != nil {
			// Surfaced to clients as a ConversationErrorEvent on the
			// event stream; nothing further to do here.
			_ = err
		}
	}()
	c.JSON(http.StatusAccepted, conversationResponse{ConversationID: m.conv.ID(), Status: "started"})
}

// pauseHandler handles POST /api/v1/conversations/:id/pause.
func (s *Server) pauseHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	if err := m.conv.Pause(); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{ConversationID: m.conv.ID(), Status: string(m.conv.Status())})
}

// confirmHandler handles POST /api/v1/conversations/:id/confirm.
func (s *Server) confirmHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	if err := m.conv.Confirm(c.Request.Context()); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{ConversationID: m.conv.ID(), Status: string(m.conv.Status())})
}

// rejectHandler handles POST /api/v1/conversations/:id/reject.
func (s *Server) rejectHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	var req rejectRequest
	_ = c.ShouldBindJSON(&req)
	if err := m.conv.Reject(req.Reason); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, conversationResponse{ConversationID: m.conv.ID(), Status: string(m.conv.Status())})
}

// updateSecretsHandler handles POST /api/v1/conversations/:id/secrets.
func (s *Server) updateSecretsHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, errConversationNotFound)
		return
	}
	var req updateSecretsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	for _, se := range req.Secrets {
		m.conv.UpdateSecrets(se.Name, se.EnvVar, s.secretSource(se.Value))
	}
	c.Status(http.StatusNoContent)
}

// listConversationsHandler handles GET /api/v1/conversations.
func (s *Server) listConversationsHandler(c *gin.Context) {
	if s.index == nil {
		respondError(c, http.StatusServiceUnavailable, errIndexUnavailable)
		return
	}
	filter := indexstore.ListFilter{
		Workspace: c.Query("workspace"),
		Status:    c.Query("status"),
	}
	result, err := s.index.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toListResponse(result))
}

// searchConversationsHandler handles GET /api/v1/conversations/search.
func (s *Server) searchConversationsHandler(c *gin.Context) {
	if s.index == nil {
		respondError(c, http.StatusServiceUnavailable, errIndexUnavailable)
		return
	}
	q := c.Query("q")
	if q == "" {
		respondError(c, http.StatusBadRequest, errors.New("apiserver: q query parameter is required"))
		return
	}
	records, err := s.index.Search(c.Request.Context(), q, 0)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]conversationRecordResponse, len(records))
	for i, r := range records {
		out[i] = toRecordResponse(r)
	}
	c.JSON(http.StatusOK, listConversationsResponse{Conversations: out, TotalCount: len(out)})
}

func toListResponse(r *indexstore.ListResult) listConversationsResponse {
	out := make([]conversationRecordResponse, len(r.Records))
	for i, rec := range r.Records {
		out[i] = toRecordResponse(rec)
	}
	return listConversationsResponse{
		Conversations: out,
		TotalCount:    r.TotalCount,
		Limit:         r.Limit,
		Offset:        r.Offset,
	}
}

func toRecordResponse(r indexstore.Record) conversationRecordResponse {
	return conversationRecordResponse{
		ConversationID: r.ConversationID,
		Workspace:      r.Workspace,
		AgentClass:     r.AgentClass,
		Status:         r.Status,
		Title:          r.Title,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
