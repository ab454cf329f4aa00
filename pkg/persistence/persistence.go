// Package persistence implements the on-disk layout a Conversation is
// saved to and resumed from: a base_state.json file plus an events/
// directory backed by pkg/eventlog, and the Reconciler that decides what
// of a resumed conversation's runtime configuration may legitimately
// differ from what was persisted.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreagent/runtime/pkg/convstate"
	"github.com/coreagent/runtime/pkg/eventlog"
)

const baseStateFilename = "base_state.json"
const eventsDirName = "events"

// BaseState is the root persisted document: conversation identity,
// execution state snapshot, the tool names the conversation was last
// configured with, and secrets in their persisted (masked or ciphered)
// form.
type BaseState struct {
	ConversationID   string             `json:"conversation_id"`
	Workspace        string             `json:"workspace"`
	AgentClass       string             `json:"agent_class"`
	State            convstate.Snapshot `json:"state"`
	ToolNames        []string           `json:"tool_names"`
	SecurityAnalyzer string             `json:"security_analyzer,omitempty"`
	LiteLLMExtraBody map[string]any     `json:"litellm_extra_body,omitempty"`
	SecretsPayload   json.RawMessage    `json:"secrets,omitempty"`
}

// Store is a conversation's persistence directory: base_state.json plus
// an events/ subdirectory managed by an eventlog.EventLog.
type Store struct {
	Dir   string
	Log   *eventlog.EventLog
}

// Open loads or creates the persistence directory at dir and opens its
// event log.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create dir: %w", err)
	}
	log, err := eventlog.Open(filepath.Join(dir, eventsDirName))
	if err != nil {
		return nil, fmt.Errorf("persistence: open event log: %w", err)
	}
	return &Store{Dir: dir, Log: log}, nil
}

// LoadBaseState reads base_state.json, returning (nil, nil) if it does
// not exist yet (a brand-new conversation).
func (s *Store) LoadBaseState() (*BaseState, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, baseStateFilename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: read base state: %w", err)
	}
	var bs BaseState
	if err := json.Unmarshal(raw, &bs); err != nil {
		return nil, fmt.Errorf("persistence: decode base state: %w", err)
	}
	return &bs, nil
}

// SaveBaseState atomically writes base_state.json: write to a temp file
// in the same directory, then rename over the target, so a crash never
// leaves a half-written base_state.json behind.
func (s *Store) SaveBaseState(bs BaseState) error {
	raw, err := json.MarshalIndent(bs, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: encode base state: %w", err)
	}
	tmp := filepath.Join(s.Dir, baseStateFilename+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("persistence: write base state: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.Dir, baseStateFilename))
}
