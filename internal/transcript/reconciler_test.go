package transcript

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-voice-agent/backend/internal/realtime"
)

var fixedTime = time.Date(2024, 12, 17, 9, 0, 0, 0, time.UTC)

func newTestReconciler() *Reconciler {
	return New(WithClock(func() time.Time { return fixedTime }))
}

// feed ingests raw JSON frames and fails the test on decode errors.
func feed(t *testing.T, r *Reconciler, frames ...string) []Delta {
	t.Helper()
	var out []Delta
	for _, f := range frames {
		d, err := r.IngestFrame([]byte(f))
		require.NoError(t, err, f)
		out = append(out, d)
	}
	return out
}

func TestAssistantDeltasThenDone(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.text.delta","response_id":"r1","delta":"こん"}`,
		`{"type":"response.text.delta","response_id":"r1","delta":"にちは"}`,
		`{"type":"response.done","response":{"id":"r1","output":[]}}`,
	)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].ID)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, "こんにちは", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
	assert.Equal(t, fixedTime, msgs[0].Timestamp)
}

func TestUserItemCreatedWithText(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[{"type":"input_text","text":"hello"}]}}`)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "u1", Role: RoleUser, Text: "hello", IsStreaming: false, Timestamp: fixedTime}, msgs[0])
}

func TestInputTranscriptionDeltasThenDone(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u2","delta":"he"}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u2","delta":"llo"}`,
	)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)

	feed(t, r, `{"type":"conversation.item.input_audio_transcription.done","item_id":"u2","transcript":"hello"}`)
	msgs = r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "u2", msgs[0].ID)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestResponseErrorLeavesMessagesAlone(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"partial"}`,
	)
	before := r.Messages()

	deltas := feed(t, r, `{"type":"response.error","error":{"message":"rate limited"}}`)
	assert.Equal(t, "rate limited", deltas[0].Error)
	assert.Empty(t, deltas[0].Changes)
	assert.Equal(t, before, r.Messages())
}

func TestErrorWithoutMessageUsesDefault(t *testing.T) {
	r := newTestReconciler()
	deltas := feed(t, r, `{"type":"error"}`)
	assert.Equal(t, DefaultErrorMessage, deltas[0].Error)
}

func TestUnknownEventIsNoOp(t *testing.T) {
	r := newTestReconciler()
	deltas := feed(t, r, `{"type":"ping"}`)
	assert.True(t, deltas[0].Empty())
	assert.Equal(t, realtime.KindUnknown, deltas[0].Kind)
	assert.Zero(t, r.Len())
}

func TestMalformedFrameIsDropped(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.text.delta","response_id":"r1","delta":"ok"}`,
	)
	before := r.Messages()

	for _, frame := range []string{`{"type":`, `not json`, `{"delta":"x"}`, `{"type":"response.created","response":"r2"}`} {
		d, err := r.IngestFrame([]byte(frame))
		assert.Error(t, err, frame)
		assert.True(t, d.Empty(), frame)
	}
	assert.Equal(t, before, r.Messages())

	// The stream keeps going after a drop.
	feed(t, r, `{"type":"response.text.delta","response_id":"r1","delta":"!"}`)
	assert.Equal(t, "ok!", r.Messages()[0].Text)
}

func TestDoneWithTextOverridesStreamingText(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.text.delta","response_id":"r1","delta":"draft"}`,
		`{"type":"response.completed","response":{"id":"r1","output":[{"role":"assistant","content":[{"type":"text","text":"final answer"}]}]}}`,
	)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "final answer", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestDoneForUnknownResponse(t *testing.T) {
	r := newTestReconciler()

	deltas := feed(t, r, `{"type":"response.done","response":{"id":"r9"}}`)
	assert.True(t, deltas[0].Empty())
	assert.Zero(t, r.Len())

	feed(t, r, `{"type":"response.done","response":{"id":"r9","output":[{"content":[{"type":"audio","transcript":"late"}]}]}}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestResponseCreatedIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	deltas := feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.text.delta","response_id":"r1","delta":"a"}`,
		`{"type":"response.created","response":{"id":"r1"}}`,
	)
	assert.Len(t, deltas[0].Changes, 1)
	assert.Equal(t, OpAppend, deltas[0].Changes[0].Op)
	assert.True(t, deltas[2].Empty())

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)
}

func TestDeltaBeforeCreated(t *testing.T) {
	r := newTestReconciler()
	deltas := feed(t, r, `{"type":"response.output_text.delta","response_id":"r1","delta":"early"}`)
	require.Len(t, deltas[0].Changes, 1)
	assert.Equal(t, OpAppend, deltas[0].Changes[0].Op)

	feed(t, r, `{"type":"response.created","response":{"id":"r1"}}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "early", msgs[0].Text)
}

func TestEmptyDeltaIsNoOp(t *testing.T) {
	r := newTestReconciler()
	deltas := feed(t, r,
		`{"type":"response.text.delta","response_id":"r1","delta":""}`,
		`{"type":"response.text.delta","response_id":"r1"}`,
		`{"type":"response.text.delta","response_id":"r1","delta":null}`,
	)
	for _, d := range deltas {
		assert.True(t, d.Empty())
	}
	assert.Zero(t, r.Len())
}

func TestStructuredDeltas(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.text.delta","response_id":"r1","delta":["a",{"text":"b"}]}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","delta":{"transcript":"c"}}`,
		`{"type":"response.content_part.added","response_id":"r1","part":{"type":"text","text":"d"}}`,
	)
	assert.Equal(t, "abcd", r.Messages()[0].Text)
}

func TestAudioTranscriptDoneReplacesWithoutFinalizing(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"helo"}`,
		`{"type":"response.audio_transcript.done","response_id":"r1","transcript":"hello"}`,
	)
	msgs := r.Messages()
	assert.Equal(t, "hello", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)

	// An empty transcript does not wipe accumulated text.
	deltas := feed(t, r, `{"type":"response.audio_transcript.done","response_id":"r1","transcript":""}`)
	assert.True(t, deltas[0].Empty())
	assert.Equal(t, "hello", r.Messages()[0].Text)
}

func TestContentPartDoneAndOutputItemDone(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.content_part.done","response_id":"r1","part":{"type":"audio","transcript":"from part"}}`,
	)
	assert.Equal(t, "from part", r.Messages()[0].Text)

	feed(t, r, `{"type":"response.output_item.done","response_id":"r1","item":{"id":"item_a","role":"assistant","content":[{"type":"audio","transcript":"from item"}]}}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "from item", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)
}

func TestUserItemCreatedWithoutTextStreamsUntilTranscribed(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[{"type":"input_audio"}]}}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)

	feed(t, r, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"spoken words"}`)
	msgs = r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "spoken words", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestFinalizedMessageIsNeverReopened(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[{"type":"input_text","text":"hi"}]}}`,
		`{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[]}}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u1","delta":"!"}`,
	)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi!", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestAssistantItemCreatedPatchesFirstWaitingMessage(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.done","response":{"id":"r1","output":[{"content":[{"type":"text","text":"one"}]}]}}`,
		`{"type":"response.created","response":{"id":"r2"}}`,
		`{"type":"response.created","response":{"id":"r3"}}`,
	)

	deltas := feed(t, r, `{"type":"conversation.item.created","item":{"id":"item_x","role":"assistant","content":[{"type":"text","text":"patched"}]}}`)
	require.Len(t, deltas[0].Changes, 1)
	assert.Equal(t, 1, deltas[0].Changes[0].Index)

	msgs := r.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "r2", msgs[1].ID)
	assert.Equal(t, "patched", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)
	assert.Equal(t, "", msgs[2].Text)
	assert.True(t, msgs[2].IsStreaming)
}

func TestAssistantItemCreatedFallsBackToAppend(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"conversation.item.created","item":{"id":"item_a","role":"assistant","content":[{"type":"text","text":"injected"}]}}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "item_a", Role: RoleAssistant, Text: "injected", Timestamp: fixedTime}, msgs[0])

	// Same id again: the finalized message keeps its text and nothing is appended.
	deltas := feed(t, r, `{"type":"conversation.item.created","item":{"id":"item_a","role":"assistant","content":[{"type":"text","text":"revised"}]}}`)
	assert.True(t, deltas[0].Empty())
	msgs = r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "injected", msgs[0].Text)
}

func TestAssistantItemCreatedWithoutTextIsIgnored(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"conversation.item.created","item":{"id":"item_a","role":"assistant","content":[]}}`,
	)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsStreaming)
}

func TestConversationItemCompleted(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u1","delta":"draft"}`,
		`{"type":"conversation.item.completed","item":{"id":"u1","role":"user","content":[{"type":"input_audio","transcript":"final"}]}}`,
	)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "final", msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)
}

func TestConversationItemCompletedIgnoresAssistantItems(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.text.delta","response_id":"r1","delta":"partial"}`,
	)

	deltas := feed(t, r,
		`{"type":"conversation.item.completed","item":{"id":"r1","role":"assistant","content":[{"type":"text","text":"other"}]}}`,
		`{"type":"conversation.item.completed","item":{"id":"a9","role":"assistant","content":[{"type":"text","text":"stray"}]}}`,
	)
	for _, d := range deltas {
		assert.True(t, d.Empty())
	}

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)
}

func TestUserEventsNeverRewriteAssistantMessages(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"response.created","response":{"id":"r1"}}`)

	deltas := feed(t, r,
		`{"type":"conversation.item.created","item":{"id":"r1","role":"user","content":[{"type":"input_text","text":"u"}]}}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"r1","delta":"x"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"r1","transcript":"y"}`,
	)
	for _, d := range deltas {
		assert.True(t, d.Empty())
	}

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "r1", Role: RoleAssistant, IsStreaming: true, Timestamp: fixedTime}, msgs[0])
}

func TestInterleavedTurnsKeepFirstSeenOrder(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[{"type":"input_audio"}]}}`,
		`{"type":"response.created","response":{"id":"r1"}}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"Sure"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"Can you help?"}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","delta":", happy to."}`,
		`{"type":"response.done","response":{"id":"r1"}}`,
	)

	msgs := r.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, "Can you help?", msgs[0].Text)
	assert.Equal(t, "r1", msgs[1].ID)
	assert.Equal(t, "Sure, happy to.", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)
}

func TestDeltaConcatenationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"", "a", "bc", "日本", " ", "語", "!", ""}

	for run := 0; run < 50; run++ {
		r := newTestReconciler()
		var want strings.Builder
		n := rng.Intn(20)
		for i := 0; i < n; i++ {
			w := words[rng.Intn(len(words))]
			want.WriteString(w)
			_, err := r.IngestFrame([]byte(fmt.Sprintf(`{"type":"response.text.delta","response_id":"r","delta":%q}`, w)))
			require.NoError(t, err)
		}
		if want.Len() == 0 {
			assert.Zero(t, r.Len())
			continue
		}
		require.Equal(t, 1, r.Len())
		assert.Equal(t, want.String(), r.Messages()[0].Text)
	}
}

func TestIDsAreNeverDuplicated(t *testing.T) {
	r := newTestReconciler()
	feed(t, r,
		`{"type":"response.created","response":{"id":"x"}}`,
		`{"type":"response.text.delta","response_id":"x","delta":"1"}`,
		`{"type":"response.audio_transcript.done","response_id":"x","transcript":"2"}`,
		`{"type":"response.output_item.done","response_id":"x","item":{"content":[{"type":"text","text":"3"}]}}`,
		`{"type":"response.done","response":{"id":"x"}}`,
		`{"type":"conversation.item.created","item":{"id":"y","role":"user","content":[{"type":"input_text","text":"q"}]}}`,
		`{"type":"conversation.item.created","item":{"id":"y","role":"user","content":[{"type":"input_text","text":"q"}]}}`,
		`{"type":"conversation.item.input_audio_transcription.done","item_id":"y","transcript":"q2"}`,
	)

	seen := map[string]bool{}
	for _, m := range r.Messages() {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 2)
}

func TestMessagesReturnsCopy(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"response.text.delta","response_id":"r1","delta":"x"}`)

	snapshot := r.Messages()
	snapshot[0].Text = "mutated"
	assert.Equal(t, "x", r.Messages()[0].Text)
}

func TestReset(t *testing.T) {
	r := newTestReconciler()
	feed(t, r, `{"type":"response.text.delta","response_id":"r1","delta":"x"}`)
	r.Reset()
	assert.Zero(t, r.Len())

	feed(t, r, `{"type":"response.text.delta","response_id":"r1","delta":"y"}`)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "y", msgs[0].Text)
}

func TestIngestNil(t *testing.T) {
	r := newTestReconciler()
	assert.True(t, r.Ingest(nil).Empty())
}
