package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageEvent_Text(t *testing.T) {
	m := MessageEvent{Content: []ContentBlock{
		{Text: "hello "},
		{Text: "world"},
		{Data: []byte("ignored")},
	}}
	assert.Equal(t, "hello world", m.Text())
}

func TestMessageEvent_Text_Empty(t *testing.T) {
	var m MessageEvent
	assert.Equal(t, "", m.Text())
}

func TestEvent_Kinds_AreDistinct(t *testing.T) {
	kinds := []Kind{
		KindSystemPrompt, KindMessage, KindAction, KindObservation,
		KindAgentError, KindUserRejectObservation, KindCondensationRequest,
		KindCondensation, KindPause, KindConversationError, KindToken,
		KindConversationStateUpdate,
	}
	seen := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		assert.False(t, seen[k], "duplicate kind %q", k)
		seen[k] = true
	}
}
