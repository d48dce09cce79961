package bus

import "time"

// Kind enumerates the closed event taxonomy THE CORE publishes and consumes.
type Kind string

const (
	KindStartListening        Kind = "StartListening"
	KindStopListening         Kind = "StopListening"
	KindTalkLevel             Kind = "TalkLevel"
	KindShutdown              Kind = "Shutdown"
	KindFunctionInvoking      Kind = "FunctionInvoking"
	KindFunctionInvoked       Kind = "FunctionInvoked"
	KindSystemError           Kind = "SystemError"
	KindSystemOk              Kind = "SystemOk"
	KindWakeWordDetected      Kind = "WakeWordDetected"
	KindNoiseDetected         Kind = "NoiseDetected"
	KindSilenceDetected       Kind = "SilenceDetected"
	KindConfigChanged         Kind = "ConfigChanged"
	KindHangupInput           Kind = "HangupInput"
	KindVolumeCtrlUp          Kind = "VolumeCtrlUp"
	KindVolumeCtrlDown        Kind = "VolumeCtrlDown"
	KindNightModeActivated    Kind = "NightModeActivated"
	KindNightModeDeactivated  Kind = "NightModeDeactivated"

	// Internal transitions published by the Realtime Agent Core; not part of
	// the remote wire protocol's own event set, but needed to drive the
	// Device Coordinator's talk-level/listening states.
	KindSpeakingStarted Kind = "SpeakingStarted"
	KindSpeakingStopped Kind = "SpeakingStopped"
)

// AllKinds lists every Kind in the taxonomy above, in declaration order.
// Callers that need to observe the bus indiscriminately (the debug API's
// event recorder) subscribe to each of these individually — the Bus itself
// has no wildcard subscription.
func AllKinds() []Kind {
	return []Kind{
		KindStartListening,
		KindStopListening,
		KindTalkLevel,
		KindShutdown,
		KindFunctionInvoking,
		KindFunctionInvoked,
		KindSystemError,
		KindSystemOk,
		KindWakeWordDetected,
		KindNoiseDetected,
		KindSilenceDetected,
		KindConfigChanged,
		KindHangupInput,
		KindVolumeCtrlUp,
		KindVolumeCtrlDown,
		KindNightModeActivated,
		KindNightModeDeactivated,
		KindSpeakingStarted,
		KindSpeakingStopped,
	}
}

// Event is the common envelope for every published value. Payload fields
// beyond Sender/Timestamp are carried in the typed wrapper structs below;
// handlers switch on Kind and type-assert Payload.
type Event struct {
	Kind        Kind
	Timestamp   time.Time
	Sender      string
	SkipLogging bool
	Payload     any
}

// TalkLevelPayload carries the 0..255 meter byte, or nil when speech stops.
type TalkLevelPayload struct {
	Level *int
}

// WakeWordPayload names the model that fired.
type WakeWordPayload struct {
	ModelID string
}

// FunctionPayload names the tool in flight.
type FunctionPayload struct {
	Name   string
	CallID string
}

// ErrorPayload carries a human-readable message; the originating error kind
// (coreerr.Kind) is not re-exported on the bus — subscribers react to the
// event, not to Go error internals.
type ErrorPayload struct {
	Message string
}

// New builds an Event, defaulting Timestamp to now and Kind-specific
// SkipLogging policy: high-frequency per-frame events (TalkLevel) skip
// tracing by default, everything else logs.
func New(kind Kind, sender string, payload any) Event {
	return Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		Sender:      sender,
		SkipLogging: kind == KindTalkLevel,
		Payload:     payload,
	}
}
