// Package agentcore implements the Realtime Agent Core: one long-lived
// remote session per agent configuration, driven by a receive loop that
// outlives any single conversation and an audio-capture loop scoped to a
// single Run call. Two independent loops share state guarded by one lock;
// resources are scoped to a run and released on every exit path.
package agentcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corevox/noia/internal/audioio"
	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/coreerr"
	"github.com/corevox/noia/internal/realtime"
	"github.com/corevox/noia/internal/tools"
	"github.com/corevox/noia/internal/vad"
)

// RunResult is the closed set of non-error outcomes of Run.
type RunResult int

const (
	RunCancelled RunResult = iota
	RunInactivityTimeout
)

func (r RunResult) String() string {
	if r == RunInactivityTimeout {
		return "InactivityTimeout"
	}
	return "Cancelled"
}

// StateUpdate is a lightweight signal from the Agent Core to the caller
// (the Supervisor), used to drive StartListening/TalkLevel(nil) publication
// without the Agent Core itself depending on bus event naming for these.
type StateUpdate string

const (
	StateReady           StateUpdate = "Ready"
	StateSpeakingStopped StateUpdate = "SpeakingStopped"
)

// Config is the per-agent session configuration applied on connect, derived
// from an Agent Configuration plus the App Configuration's global
// instructions.
type Config struct {
	Model                         string
	Voice                         string
	Instructions                  string
	Temperature                   *float64
	ConversationInactivityTimeout time.Duration
}

// Deps constructs the run-scoped resources: microphone, speaker, and VAD are
// scoped to the current Run call with guaranteed release on every exit path.
type Deps struct {
	NewCapturer func() (audioio.Capturer, error)
	NewRenderer func() (audioio.Renderer, error)
	NewDetector func() (vad.Detector, error)
}

// Agent owns one long-lived remote session for a single agent
// configuration.
type Agent struct {
	name     string
	client   *realtime.Client
	registry *tools.Registry
	bus      *bus.Bus
	log      *logrus.Logger
	deps     Deps
	cfg      Config

	mu               sync.Mutex
	session          realtime.Session
	sessionCreatedAt time.Time
	receiveCancel    context.CancelFunc
	receiveDone      chan struct{}

	speaker *speakerHandle
	stateCB *stateCallback
	ps      *playbackSync
}

// New constructs an Agent for one agent configuration. No remote connection
// is opened until the first Run call.
func New(name string, client *realtime.Client, registry *tools.Registry, b *bus.Bus, log *logrus.Logger, deps Deps, cfg Config) *Agent {
	if log == nil {
		log = logrus.New()
	}
	return &Agent{
		name:     name,
		client:   client,
		registry: registry,
		bus:      b,
		log:      log,
		deps:     deps,
		cfg:      cfg,
		speaker:  &speakerHandle{},
		stateCB:  &stateCallback{},
		ps:       &playbackSync{},
	}
}

// Age reports how long the current remote session has been open, or zero if
// none exists. The Supervisor disposes and recreates the Agent once this
// reaches the configured session timeout.
func (a *Agent) Age() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return 0
	}
	return time.Since(a.sessionCreatedAt)
}

// ensureSession connects if absent, or reconnects if the receive loop has
// terminated because the wire closed.
func (a *Agent) ensureSession(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		select {
		case <-a.receiveDone:
			a.log.WithField("component", "agentcore").WithField("agent", a.name).
				Warn("receive loop terminated, reconnecting")
			a.disposeSessionLocked()
		default:
			return nil
		}
	}

	sess, err := a.client.Connect(ctx, a.cfg.Model)
	if err != nil {
		return err
	}

	if err := sess.Configure(realtime.SessionConfig{
		Voice:             a.cfg.Voice,
		Instructions:      a.cfg.Instructions,
		Temperature:       a.cfg.Temperature,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		ServerVADDisabled: true,
		ToolList:          a.registry.ConvertFunctions(),
		ToolChoice:        "auto",
	}); err != nil {
		sess.Close()
		return err
	}

	receiveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	events, errs := sess.ReceiveUpdates(receiveCtx)

	a.session = sess
	a.sessionCreatedAt = time.Now()
	a.receiveCancel = cancel
	a.receiveDone = done

	go a.receiveLoop(receiveCtx, events, errs, done)
	return nil
}

func (a *Agent) disposeSessionLocked() error {
	if a.session == nil {
		return nil
	}
	if a.receiveCancel != nil {
		a.receiveCancel()
	}
	err := a.session.Close()
	a.session = nil
	return err
}

// Dispose tears down the remote session. Only Dispose closes the session;
// Run's cancellation or InactivityTimeout never do.
func (a *Agent) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposeSessionLocked()
}

// Run drives one conversation: establishes/reuses the remote session, then
// runs the audio-capture loop until cancellation or inactivity timeout.
// Microphone, speaker, and VAD are constructed fresh and released on every
// exit path.
func (a *Agent) Run(ctx context.Context, onStateUpdate func(StateUpdate), onMeter func(byte)) (RunResult, error) {
	if err := a.ensureSession(ctx); err != nil {
		return RunCancelled, coreerr.TransientNetwork("agentcore.Run", err)
	}

	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	capturer, err := a.deps.NewCapturer()
	if err != nil {
		return RunCancelled, coreerr.DeviceError("agentcore.Run.capturer", err)
	}
	defer capturer.Stop()

	renderer, err := a.deps.NewRenderer()
	if err != nil {
		return RunCancelled, coreerr.DeviceError("agentcore.Run.renderer", err)
	}
	if onMeter != nil {
		renderer.SetMeterCallback(onMeter)
	}
	if err := renderer.Start(); err != nil {
		return RunCancelled, coreerr.DeviceError("agentcore.Run.renderer.Start", err)
	}
	defer renderer.Stop()

	detector, err := a.deps.NewDetector()
	if err != nil {
		return RunCancelled, coreerr.Configuration("agentcore.Run.detector", err)
	}
	defer detector.Close()

	a.speaker.set(renderer)
	defer a.speaker.set(nil)

	a.stateCB.set(onStateUpdate)
	defer a.stateCB.set(nil)

	frames, err := capturer.Start(ctx)
	if err != nil {
		return RunCancelled, coreerr.DeviceError("agentcore.Run.capturer.Start", err)
	}

	if onStateUpdate != nil {
		onStateUpdate(StateReady)
	}

	cs := &captureState{lastActivityAt: time.Now()}
	return a.captureLoop(ctx, frames, capturer.SampleRateHz(), detector, session, cs)
}

func (a *Agent) logf(level logrus.Level, format string, args ...any) {
	a.log.WithFields(logrus.Fields{"component": "agentcore", "agent": a.name}).Log(level, fmt.Sprintf(format, args...))
}
