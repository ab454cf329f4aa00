package apiserver

import (
	"fmt"
	"sync"

	"github.com/coreagent/runtime/pkg/convstate"
	"github.com/coreagent/runtime/pkg/conversation"
	"github.com/coreagent/runtime/pkg/event"
)

// managedConversation pairs a live Conversation with the broadcaster that
// fans its events out to subscribed WebSocket clients.
type managedConversation struct {
	conv        *conversation.Conversation
	workspace   string
	agentClass  string
	broadcaster *broadcaster
}

// conversationRegistry holds every conversation this server process has
// loaded, keyed by ID. A conversation absent from the registry may still
// exist on disk — GET /conversations/:id falls back to loading it from
// its PersistDir on demand.
type conversationRegistry struct {
	mu   sync.RWMutex
	byID map[string]*managedConversation
}

func newConversationRegistry() *conversationRegistry {
	return &conversationRegistry{byID: make(map[string]*managedConversation)}
}

func (r *conversationRegistry) put(m *managedConversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.conv.ID()] = m
}

func (r *conversationRegistry) get(id string) (*managedConversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

var errConversationNotFound = fmt.Errorf("apiserver: conversation not loaded in this process")

// newManagedCallbacks builds the Callbacks a new Conversation should be
// constructed with: every event fans out to the conversation's
// broadcaster, and a status change triggers an index upsert so the
// search side table stays current.
func (s *Server) newManagedCallbacks(b *broadcaster, onStatusChange func(to convstate.Status)) conversation.Callbacks {
	return conversation.Callbacks{
		OnEvent: func(ev event.Event) {
			b.broadcast(ev)
		},
		OnStatusChange: func(from, to convstate.Status) {
			onStatusChange(to)
		},
	}
}
