// Package realtime is a thin, typed wire adapter to the remote bidirectional
// realtime speech-to-speech service, transported over
// github.com/gorilla/websocket. The closed server-event variant set follows
// an OpenAI-Realtime-API-style event taxonomy: a ServerEvent DTO with a
// "type" discriminator and per-variant optional fields.
package realtime

// ServerEventType is the closed set of event variants consumed by the
// Realtime Agent Core.
type ServerEventType string

const (
	EventSessionStarted                  ServerEventType = "session.started"
	EventOutputStreamingStarted          ServerEventType = "response.output_item.started"
	EventOutputDelta                     ServerEventType = "response.output_item.delta"
	EventOutputStreamingFinished         ServerEventType = "response.output_item.done"
	EventInputAudioTranscriptionFinished ServerEventType = "conversation.item.input_audio_transcription.completed"
	EventResponseFinished                ServerEventType = "response.done"
	EventError                           ServerEventType = "error"
)

// CreatedItem describes one item produced by a finished response.
type CreatedItem struct {
	FunctionName   string `json:"function_name,omitempty"`
	FunctionCallID string `json:"function_call_id,omitempty"`
	MessageRole    string `json:"message_role,omitempty"`
}

// ServerEvent is the decoded form of every inbound wire message. Only the
// fields relevant to Type are populated; the rest are zero values.
type ServerEvent struct {
	Type ServerEventType `json:"type"`

	SessionID string `json:"session_id,omitempty"`

	ItemID         string `json:"item_id,omitempty"`
	FunctionName   string `json:"function_name,omitempty"`
	FunctionCallID string `json:"function_call_id,omitempty"`

	AudioBytes        []byte `json:"audio,omitempty"`
	AudioTranscript   string `json:"audio_transcript,omitempty"`
	Text              string `json:"text,omitempty"`
	FunctionArguments string `json:"function_arguments,omitempty"`

	Transcript string `json:"transcript,omitempty"`

	CreatedItems []CreatedItem `json:"created_items,omitempty"`

	ErrorMessage string `json:"message,omitempty"`
}

// clientEvent is the outbound wire envelope; only the fields relevant to
// Type are marshalled (others are omitted via omitempty).
type clientEvent struct {
	Type string `json:"type"`

	// configure
	Voice             string   `json:"voice,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
	ServerVADDisabled bool     `json:"server_vad_disabled,omitempty"`
	Tools             []wireTool `json:"tools,omitempty"`
	ToolChoice        string   `json:"tool_choice,omitempty"`

	// send-input-audio
	Audio []byte `json:"audio,omitempty"`

	// add-item
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`

	// truncate-item
	ItemID       string `json:"item_id,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`
	AudioEndMs   int64  `json:"audio_end_ms,omitempty"`
}

type wireTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

const (
	opConfigure          = "session.update"
	opSendInputAudio     = "input_audio_buffer.append"
	opCommitPendingAudio = "input_audio_buffer.commit"
	opStartResponse      = "response.create"
	opAddItem            = "conversation.item.create"
	opCancelResponse     = "response.cancel"
	opTruncateItem       = "conversation.item.truncate"
)
