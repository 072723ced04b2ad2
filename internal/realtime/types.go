package realtime

const (
	// DefaultHTTPURL is the realtime endpoint used for SDP exchange.
	DefaultHTTPURL = "https://api.openai.com/v1/realtime"

	// DefaultWebSocketURL is the realtime WebSocket endpoint.
	DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

	// DataChannelLabel is the label of the data channel carrying events.
	DataChannelLabel = "oai-events"
)

// ModelGPT4oRealtimePreview20241217 is the default realtime model.
const ModelGPT4oRealtimePreview20241217 = "gpt-4o-realtime-preview-2024-12-17"

// VoiceAlloy is the default output voice.
const VoiceAlloy = "alloy"

// Modality types.
const (
	ModalityText  = "text"
	ModalityAudio = "audio"
)

// Roles carried by conversation items.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Content part types.
const (
	ContentInputText   = "input_text"
	ContentOutputText  = "output_text"
	ContentText        = "text"
	ContentTranscript  = "transcript"
	ContentInputAudio  = "input_audio"
	ContentAudio       = "audio"
	ContentOutputAudio = "output_audio"
)

// Item is a conversation item as it appears in conversation.item.* and
// response.output_item.* events and in a response's output list.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Type    string        `json:"type,omitempty"`
	Status  string        `json:"status,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Text and Transcript are pre-formatted shortcuts some producers set
	// on the item itself.
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ContentPart is one entry of an item's content list.
type ContentPart struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Response is the response resource of response.created / response.done.
type Response struct {
	ID         string `json:"id,omitempty"`
	Object     string `json:"object,omitempty"`
	Status     string `json:"status,omitempty"`
	Output     []Item `json:"output,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// EventError is the error object of error events.
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// SessionDescriptor is the short-lived credential bundle authorizing a
// single realtime connection.
type SessionDescriptor struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	ClientSecret ClientSecret `json:"client_secret"`
}

// ClientSecret is the ephemeral key handed to the client.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// SessionRequest is the body sent upstream when creating a session.
type SessionRequest struct {
	Model                   string               `json:"model"`
	Voice                   string               `json:"voice,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Modalities              []string             `json:"modalities,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
}

// TranscriptionConfig enables transcription of user audio.
type TranscriptionConfig struct {
	Model string `json:"model"`
}
