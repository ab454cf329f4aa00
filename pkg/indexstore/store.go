package indexstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a conversation_id has no index row.
var ErrNotFound = errors.New("indexstore: conversation not found")

// Record is one indexed conversation's searchable metadata. It mirrors
// persistence.BaseState's identity fields, not its full state — this
// store is a lookup index, not a second source of truth.
type Record struct {
	ConversationID string
	Workspace      string
	AgentClass     string
	Status         string
	Title          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Upsert inserts a new index row or updates an existing one by
// ConversationID. Called whenever a Conversation's status or title
// changes, typically from the same callback site that drives
// pkg/persistence.SaveBaseState.
func (s *Store) Upsert(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (conversation_id, workspace, agent_class, status, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (conversation_id) DO UPDATE SET
			workspace   = EXCLUDED.workspace,
			agent_class = EXCLUDED.agent_class,
			status      = EXCLUDED.status,
			title       = EXCLUDED.title,
			updated_at  = now()
	`, r.ConversationID, r.Workspace, r.AgentClass, r.Status, r.Title)
	if err != nil {
		return fmt.Errorf("indexstore: upsert %s: %w", r.ConversationID, err)
	}
	return nil
}

// Get returns the index row for a conversation ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, conversationID string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT conversation_id, workspace, agent_class, status, title, created_at, updated_at
		FROM conversations WHERE conversation_id = $1
	`, conversationID)

	var r Record
	err := row.Scan(&r.ConversationID, &r.Workspace, &r.AgentClass, &r.Status, &r.Title, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("indexstore: get %s: %w", conversationID, err)
	}
	return r, nil
}

// Delete removes a conversation's index row. It does not touch the
// conversation's on-disk EventLog.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("indexstore: delete %s: %w", conversationID, err)
	}
	return nil
}

// ListFilter narrows ListResult's query. Zero-value fields are ignored.
type ListFilter struct {
	Workspace string
	Status    string
	Limit     int
	Offset    int
}

// ListResult is a page of conversations plus the total count matching
// the filter (for client-side pagination controls).
type ListResult struct {
	Records    []Record
	TotalCount int
	Limit      int
	Offset     int
}

// List returns conversations matching filter, newest-updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	total, err := s.pool.Query(ctx, `
		SELECT count(*) FROM conversations
		WHERE ($1 = '' OR workspace = $1) AND ($2 = '' OR status = $2)
	`, filter.Workspace, filter.Status)
	if err != nil {
		return nil, fmt.Errorf("indexstore: count: %w", err)
	}
	var totalCount int
	if total.Next() {
		if err := total.Scan(&totalCount); err != nil {
			total.Close()
			return nil, fmt.Errorf("indexstore: scan count: %w", err)
		}
	}
	total.Close()

	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, workspace, agent_class, status, title, created_at, updated_at
		FROM conversations
		WHERE ($1 = '' OR workspace = $1) AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, filter.Workspace, filter.Status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("indexstore: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ConversationID, &r.Workspace, &r.AgentClass, &r.Status, &r.Title, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("indexstore: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indexstore: rows: %w", err)
	}

	return &ListResult{Records: out, TotalCount: totalCount, Limit: limit, Offset: offset}, nil
}

// Search runs a full-text search over conversation titles using the
// idx_conversations_title_gin index, returning up to limit matches
// ranked by relevance.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, workspace, agent_class, status, title, created_at, updated_at
		FROM conversations
		WHERE to_tsvector('english', title) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title), plainto_tsquery('english', $1)) DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("indexstore: search: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ConversationID, &r.Workspace, &r.AgentClass, &r.Status, &r.Title, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("indexstore: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indexstore: rows: %w", err)
	}
	return out, nil
}
