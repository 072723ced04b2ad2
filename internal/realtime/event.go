package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client event types (sent from client to server).
const (
	EventTypeResponseCreate = "response.create"
	EventTypeResponseCancel = "response.cancel"
)

// Server event types (sent from server to client).
const (
	EventTypeError         = "error"
	EventTypeResponseError = "response.error"

	EventTypeResponseCreated   = "response.created"
	EventTypeResponseDone      = "response.done"
	EventTypeResponseCompleted = "response.completed"

	EventTypeResponseTextDelta       = "response.text.delta"
	EventTypeResponseTextDone        = "response.text.done"
	EventTypeResponseOutputTextDelta = "response.output_text.delta"
	EventTypeResponseOutputTextDone  = "response.output_text.done"

	EventTypeResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone        = "response.audio_transcript.done"
	EventTypeResponseOutputAudioTranscriptDelta = "response.output_audio_transcript.delta"
	EventTypeResponseOutputAudioTranscriptDone  = "response.output_audio_transcript.done"

	EventTypeResponseContentPartAdded = "response.content_part.added"
	EventTypeResponseContentPartDone  = "response.content_part.done"
	EventTypeResponseOutputItemDone   = "response.output_item.done"

	EventTypeConversationItemCreated   = "conversation.item.created"
	EventTypeConversationItemCompleted = "conversation.item.completed"

	EventTypeInputAudioTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTypeInputAudioTranscriptionDone      = "conversation.item.input_audio_transcription.done"
	EventTypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
)

// Kind is the semantic class of a server event. Several wire types map to
// the same kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindResponseCreated
	KindResponseTextDelta
	KindResponseDone
	KindAudioTranscriptDelta
	KindAudioTranscriptDone
	KindContentPartDelta
	KindContentPartDone
	KindOutputItemDone
	KindResponseError
	KindConversationItemCreated
	KindInputTranscriptionDelta
	KindInputTranscriptionDone
	KindConversationItemCompleted
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	KindResponseCreated:           "response_created",
	KindResponseTextDelta:         "response_text_delta",
	KindResponseDone:              "response_done",
	KindAudioTranscriptDelta:      "audio_transcript_delta",
	KindAudioTranscriptDone:       "audio_transcript_done",
	KindContentPartDelta:          "content_part_delta",
	KindContentPartDone:           "content_part_done",
	KindOutputItemDone:            "output_item_done",
	KindResponseError:             "response_error",
	KindConversationItemCreated:   "conversation_item_created",
	KindInputTranscriptionDelta:   "input_transcription_delta",
	KindInputTranscriptionDone:    "input_transcription_done",
	KindConversationItemCompleted: "conversation_item_completed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var wireKinds = map[string]Kind{
	EventTypeResponseCreated: KindResponseCreated,

	EventTypeResponseTextDelta:       KindResponseTextDelta,
	EventTypeResponseOutputTextDelta: KindResponseTextDelta,

	EventTypeResponseDone:      KindResponseDone,
	EventTypeResponseCompleted: KindResponseDone,

	EventTypeResponseAudioTranscriptDelta:       KindAudioTranscriptDelta,
	EventTypeResponseOutputAudioTranscriptDelta: KindAudioTranscriptDelta,

	EventTypeResponseAudioTranscriptDone:       KindAudioTranscriptDone,
	EventTypeResponseOutputAudioTranscriptDone: KindAudioTranscriptDone,
	EventTypeResponseTextDone:                  KindAudioTranscriptDone,
	EventTypeResponseOutputTextDone:            KindAudioTranscriptDone,

	EventTypeResponseContentPartAdded: KindContentPartDelta,
	EventTypeResponseContentPartDone:  KindContentPartDone,
	EventTypeResponseOutputItemDone:   KindOutputItemDone,

	EventTypeResponseError: KindResponseError,
	EventTypeError:         KindResponseError,

	EventTypeConversationItemCreated:   KindConversationItemCreated,
	EventTypeConversationItemCompleted: KindConversationItemCompleted,

	EventTypeInputAudioTranscriptionDelta:     KindInputTranscriptionDelta,
	EventTypeInputAudioTranscriptionDone:      KindInputTranscriptionDone,
	EventTypeInputAudioTranscriptionCompleted: KindInputTranscriptionDone,
}

// ErrMissingType is returned by Decode for frames without a type.
var ErrMissingType = errors.New("realtime: event has no type")

// Event is a decoded server event. Only the fields the transcript needs are
// typed; text-bearing fields stay raw because their shape varies.
type Event struct {
	// Type is the wire discriminator.
	Type string `json:"type"`

	// EventID is the server-assigned event identifier.
	EventID string `json:"event_id,omitempty"`

	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`

	Response *Response `json:"response,omitempty"`
	Item     *Item     `json:"item,omitempty"`

	// Delta is a bare string, a list of sub-deltas, or an object with a
	// text or transcript field.
	Delta      json.RawMessage `json:"delta,omitempty"`
	Part       json.RawMessage `json:"part,omitempty"`
	Text       json.RawMessage `json:"text,omitempty"`
	Transcript json.RawMessage `json:"transcript,omitempty"`

	Error *EventError `json:"error,omitempty"`

	// Raw is the original frame.
	Raw []byte `json:"-"`
}

// Decode parses one data channel frame.
func Decode(frame []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("realtime: parse error: %w", err)
	}
	if ev.Type == "" {
		return nil, ErrMissingType
	}
	ev.Raw = frame
	return &ev, nil
}

// Kind classifies the event. Unrecognized wire types yield KindUnknown.
func (e *Event) Kind() Kind {
	return wireKinds[e.Type]
}

// ResponseKey returns the response id an event refers to, preferring the
// flat response_id field over the nested response resource.
func (e *Event) ResponseKey() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

// ItemKey returns the item id an event refers to.
func (e *Event) ItemKey() string {
	if e.ItemID != "" {
		return e.ItemID
	}
	if e.Item != nil {
		return e.Item.ID
	}
	return ""
}

// Fragment returns the normalized text carried by a delta-style event,
// looking at delta, then part, then text and transcript.
func (e *Event) Fragment() string {
	for _, raw := range []json.RawMessage{e.Delta, e.Part, e.Text, e.Transcript} {
		if s := NormalizeDelta(raw); s != "" {
			return s
		}
	}
	return ""
}

// ErrorMessage returns the human-readable message of an error event.
func (e *Event) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}
