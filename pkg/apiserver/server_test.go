package apiserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/pkg/confirm"
	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/llm"
	"github.com/coreagent/runtime/pkg/tool"
	"github.com/coreagent/runtime/pkg/tool/builtin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, responses []llm.Response) *Server {
	t.Helper()

	tools := tool.New()
	require.NoError(t, tools.Register(builtin.Finish{}))
	require.NoError(t, tools.Register(builtin.Think{}))

	deps := Dependencies{
		LLM:         &llm.StubClient{Responses: responses},
		Tools:       tools,
		Policy:      confirm.NeverConfirm{},
		PersistRoot: t.TempDir(),
	}
	return NewServer(deps, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler_NoIndex(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.Equal(t, "disabled", resp.Index)
}

func TestCreateConversation(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations", createConversationRequest{
		Workspace: "ws-1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "idle", resp.Status)
}

func TestCreateConversation_MissingWorkspace(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations", createConversationRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversation_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/conversations/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageAndHistory(t *testing.T) {
	srv := newTestServer(t, []llm.Response{
		{Chunks: []llm.Chunk{&llm.ToolCallChunk{CallID: "call-1", Name: builtin.NameFinish, Arguments: `{"message":"done"}`}}},
	})

	createRec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations", createConversationRequest{Workspace: "ws-1"})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created conversationResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	sendRec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations/"+created.ConversationID+"/events", sendMessageRequest{
		Text: "please finish",
	})
	assert.Equal(t, http.StatusAccepted, sendRec.Code)

	runRec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations/"+created.ConversationID+"/run", nil)
	assert.Equal(t, http.StatusAccepted, runRec.Code)

	require.Eventually(t, func() bool {
		getRec := doJSON(t, srv, http.MethodGet, "/api/v1/conversations/"+created.ConversationID, nil)
		if getRec.Code != http.StatusOK {
			return false
		}
		var detail conversationDetailResponse
		require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &detail))
		return detail.Status == "finished"
	}, time.Second, 5*time.Millisecond)

	getRec := doJSON(t, srv, http.MethodGet, "/api/v1/conversations/"+created.ConversationID, nil)
	var detail conversationDetailResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &detail))

	var sawFinish bool
	for _, ev := range detail.Events {
		if ev.Kind == event.KindAction && ev.Action != nil && ev.Action.ToolName == builtin.NameFinish {
			sawFinish = true
		}
	}
	assert.True(t, sawFinish, "expected a finish action event in history")
}

func TestPauseHandler(t *testing.T) {
	srv := newTestServer(t, nil)
	createRec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations", createConversationRequest{Workspace: "ws-1"})
	var created conversationResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/conversations/"+created.ConversationID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "pause from idle is not a legal transition")
}

func TestListConversations_NoIndexConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchConversations_RequiresQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/conversations/search", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no index configured takes precedence over the missing query param")
}
