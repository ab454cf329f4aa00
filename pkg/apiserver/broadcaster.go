package apiserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/coreagent/runtime/pkg/event"
)

// writeTimeout bounds how long a single WebSocket send may block. A slow
// or wedged client must not stall the conversation's event-append path.
const writeTimeout = 5 * time.Second

// broadcaster fans out one conversation's events to every subscribed
// WebSocket connection. Grounded on the teacher's events.ConnectionManager
// Broadcast/register/unregister shape, reduced to a single channel (one
// broadcaster per conversation, not per-process with dynamic topics) since
// this server has no Postgres LISTEN/NOTIFY layer to multiplex over.
type broadcaster struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

func newBroadcaster() *broadcaster {
	return &broadcaster{conns: make(map[string]*websocket.Conn)}
}

func (b *broadcaster) register(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[id] = conn
}

func (b *broadcaster) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, id)
}

// broadcast sends ev to every currently-registered connection. Called
// synchronously from the conversation's OnEvent callback, so it must not
// block on a wedged client longer than writeTimeout.
func (b *broadcaster) broadcast(ev event.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		slog.Error("apiserver: marshal event for broadcast", "error", err)
		return
	}

	b.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(b.conns))
	for id, c := range b.conns {
		conns[id] = c
	}
	b.mu.RUnlock()

	for id, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, raw)
		cancel()
		if err != nil {
			slog.Warn("apiserver: dropping websocket subscriber after write failure",
				"connection_id", id, "error", err)
			b.unregister(id)
		}
	}
}
