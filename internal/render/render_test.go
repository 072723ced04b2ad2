package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"realtime-voice-agent/backend/internal/agent"
	"realtime-voice-agent/backend/internal/transcript"
)

func TestRenderPlaceholder(t *testing.T) {
	out := New("voice agent", 0).Render(agent.Snapshot{State: agent.StateIdle})

	assert.Contains(t, out, "voice agent")
	assert.Contains(t, out, "[idle]")
	assert.Contains(t, out, Placeholder)
}

func TestRenderErrorHidesPlaceholder(t *testing.T) {
	out := New("voice agent", 0).Render(agent.Snapshot{State: agent.StateError, Error: "failed to create session"})

	assert.Contains(t, out, "error: failed to create session")
	assert.NotContains(t, out, Placeholder)
}

func TestRenderMessagesInOrder(t *testing.T) {
	snap := agent.Snapshot{
		State:  agent.StateConnected,
		Status: "connection state: connected",
		Messages: []transcript.Message{
			{ID: "u1", Role: transcript.RoleUser, Text: "hi there"},
			{ID: "r1", Role: transcript.RoleAssistant, Text: "hello, how can I help?", IsStreaming: true},
		},
	}
	out := New("voice agent", 80).Render(snap)

	assert.Contains(t, out, "connection state: connected")
	user := strings.Index(out, LabelUser)
	agentLabel := strings.Index(out, LabelAssistant)
	assert.True(t, user >= 0 && agentLabel > user)
	assert.Less(t, strings.Index(out, "hi there"), strings.Index(out, "hello, how can I help?"))
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, Placeholder)
}

func TestRenderWrapsLongText(t *testing.T) {
	snap := agent.Snapshot{Messages: []transcript.Message{
		{ID: "r1", Role: transcript.RoleAssistant, Text: strings.Repeat("word ", 40)},
	}}
	out := New("voice agent", 20).Render(snap)

	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 40, line)
	}
}
