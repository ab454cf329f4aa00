package apiserver

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// wsHandler upgrades GET /ws/conversations/:id/events to a WebSocket and
// streams every event the conversation appends from this point on. It
// does not replay history — clients fetch GET /conversations/:id first
// for the backlog, then subscribe for live updates, mirroring the
// teacher's catchup-then-subscribe pattern without the Postgres
// LISTEN/NOTIFY machinery this file-backed EventLog has no equivalent of.
func (s *Server) wsHandler(c *gin.Context) {
	m, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: errConversationNotFound.Error()})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin validation is a deployment-time concern for the embedding
		// application's reverse proxy; this reference server accepts all.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	connID := uuid.NewString()
	m.broadcaster.register(connID, conn)
	defer m.broadcaster.unregister(connID)

	ctx := c.Request.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			slog.Debug("apiserver: websocket closed", "connection_id", connID, "conversation_id", m.conv.ID(), "error", err)
			return
		}
		// Client messages are not part of this protocol (the stream is
		// server → client only); any read just confirms the connection is
		// still alive, matching the teacher's read-loop-for-keepalive use.
	}
}
