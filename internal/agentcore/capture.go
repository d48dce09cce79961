package agentcore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corevox/noia/internal/audioio"
	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/realtime"
	"github.com/corevox/noia/internal/vad"
)

// Audio constants, bit-exact for interoperability with the remote service's
// expectations.
const (
	UplinkSampleRateHz       = 24000
	VADSampleRateHz          = 16000
	PreBufferFrames          = 15
	MinSpeechFrames          = 3
	MinSpeechFramesForBargeIn = 2
	SilenceMillisecondsToStop = 1600
	speechProbabilityGate    = 0.5
)

// ResponseWaitTimeout bounds how long the capture loop waits for a response
// before clearing waitingForResponse and continuing.
const ResponseWaitTimeout = 30 * time.Second

// captureState is owned by exactly one Run's capture loop invocation, never
// shared, and requires no lock.
type captureState struct {
	preBuffer [][]int16
	utterance []int16

	isRecording             bool
	speechFrameCount        int
	bargeInSpeechFrameCount int
	silenceDurationMs       int
	wasModelSpeaking        bool
	lastActivityAt          time.Time
}

// captureLoop runs the audio-capture loop, one frame at a time.
func (a *Agent) captureLoop(ctx context.Context, frames <-chan []int16, frameRateHz int, detector vad.Detector, session realtime.Session, cs *captureState) (RunResult, error) {
	frameDurationMs := 1000 * audioio.CaptureFrameSamples / frameRateHz

	for {
		select {
		case <-ctx.Done():
			return RunCancelled, nil
		case frame, ok := <-frames:
			if !ok {
				return RunCancelled, nil
			}
			if result, done := a.captureFrame(ctx, frame, frameRateHz, frameDurationMs, detector, session, cs); done {
				return result, nil
			}
		}
		time.Sleep(time.Millisecond)
	}
}

// captureFrame processes one frame and returns (result, true) only when the
// loop should return; (_, false) to keep iterating.
func (a *Agent) captureFrame(ctx context.Context, frame []int16, frameRateHz, frameDurationMs int, detector vad.Detector, session realtime.Session, cs *captureState) (RunResult, bool) {
	isSpeech := a.queryVAD(frame, frameRateHz, detector)

	snap := a.ps.snapshot()

	now := time.Now()
	if isSpeech || (cs.wasModelSpeaking && !snap.modelIsSpeaking) {
		cs.lastActivityAt = now
	}
	cs.wasModelSpeaking = snap.modelIsSpeaking

	if snap.modelIsSpeaking && isSpeech {
		cs.bargeInSpeechFrameCount++
		if cs.bargeInSpeechFrameCount >= MinSpeechFramesForBargeIn {
			a.handleBargeIn(session, cs, detector)
			snap = a.ps.snapshot()
		}
	} else {
		cs.bargeInSpeechFrameCount = 0
	}

	upsampled := audioio.NearestNeighborResample(frame, frameRateHz, UplinkSampleRateHz)

	if !cs.isRecording {
		a.pushPreBuffer(cs, upsampled)
		if !snap.modelIsSpeaking {
			a.detectStartOfSpeech(cs, isSpeech)
		}
	} else {
		a.advanceUtterance(session, cs, upsampled, isSpeech, frameDurationMs)
	}

	if snap.waitingForResponse && !snap.responseRequestedAt.IsZero() &&
		time.Since(snap.responseRequestedAt) > ResponseWaitTimeout {
		a.ps.clearWaiting()
		a.logf(logrus.WarnLevel, "response wait timed out after %s", ResponseWaitTimeout)
	}

	if !cs.isRecording && !snap.modelIsSpeaking && !snap.waitingForResponse &&
		time.Since(cs.lastActivityAt) >= a.cfg.ConversationInactivityTimeout {
		return RunInactivityTimeout, true
	}

	return 0, false
}

func (a *Agent) queryVAD(frame []int16, frameRateHz int, detector vad.Detector) bool {
	resampled := audioio.NearestNeighborResample(frame, frameRateHz, VADSampleRateHz)
	prob, err := detector.Process(audioio.Int16ToFloat32(resampled), VADSampleRateHz)
	if err != nil {
		a.logf(logrus.WarnLevel, "vad error: %v", err)
		return false
	}
	return prob >= speechProbabilityGate
}

// handleBargeIn cancels the in-flight response and truncates the streaming
// item at the point playback was interrupted.
func (a *Agent) handleBargeIn(session realtime.Session, cs *captureState, detector vad.Detector) {
	itemID, ok := a.ps.triggerBargeIn()
	if !ok {
		return
	}

	speaker := a.speaker.get()
	var playedMs int64
	if speaker != nil {
		speaker.Clear()
		playedMs = speaker.EstimatedPlayedMilliseconds()
	}
	if err := session.CancelResponse(); err != nil {
		a.logf(logrus.WarnLevel, "cancelResponse: %v", err)
	}
	if err := session.TruncateItem(itemID, 0, playedMs); err != nil {
		a.logf(logrus.WarnLevel, "truncateItem: %v", err)
	}

	a.bus.PublishFrom(bus.KindSpeakingStopped, "agentcore")
	a.stateCB.call(StateSpeakingStopped)

	cs.isRecording = true
	cs.utterance = cs.utterance[:0]
	cs.preBuffer = cs.preBuffer[:0]
	cs.silenceDurationMs = 0
	cs.speechFrameCount = 0
	cs.bargeInSpeechFrameCount = 0
	detector.Reset()
}

func (a *Agent) pushPreBuffer(cs *captureState, frame []int16) {
	cs.preBuffer = append(cs.preBuffer, frame)
	if len(cs.preBuffer) > PreBufferFrames {
		cs.preBuffer = cs.preBuffer[len(cs.preBuffer)-PreBufferFrames:]
	}
}

func (a *Agent) detectStartOfSpeech(cs *captureState, isSpeech bool) {
	if isSpeech {
		cs.speechFrameCount++
	} else {
		cs.speechFrameCount = 0
	}
	if cs.speechFrameCount < MinSpeechFrames {
		return
	}

	cs.isRecording = true
	for _, f := range cs.preBuffer {
		cs.utterance = append(cs.utterance, f...)
	}
	cs.preBuffer = cs.preBuffer[:0]
	cs.silenceDurationMs = 0
}

func (a *Agent) advanceUtterance(session realtime.Session, cs *captureState, frame []int16, isSpeech bool, frameDurationMs int) {
	cs.utterance = append(cs.utterance, frame...)
	if isSpeech {
		cs.silenceDurationMs = 0
		return
	}

	cs.silenceDurationMs += frameDurationMs
	if cs.silenceDurationMs < SilenceMillisecondsToStop {
		return
	}

	pcm := audioio.Int16ToPCM16Bytes(cs.utterance)
	if err := session.SendInputAudio(pcm); err != nil {
		a.logf(logrus.WarnLevel, "sendInputAudio: %v", err)
	}
	if err := session.CommitPendingAudio(); err != nil {
		a.logf(logrus.WarnLevel, "commitPendingAudio: %v", err)
	}
	if err := session.StartResponse(); err != nil {
		a.logf(logrus.WarnLevel, "startResponse: %v", err)
	}
	a.ps.setWaitingForResponse(time.Now())

	cs.isRecording = false
	cs.utterance = cs.utterance[:0]
	cs.speechFrameCount = 0
	cs.silenceDurationMs = 0
}
