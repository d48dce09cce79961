// Package supervisor implements the top-level state machine that idles on
// the Wake Stage, hands wake-word matches off to a per-agent Realtime Agent
// Core, and recovers from fatal errors with a sleep-then-reloop policy.
package supervisor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/corevox/noia/internal/agentcore"
	"github.com/corevox/noia/internal/appconfig"
	"github.com/corevox/noia/internal/audioio"
	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/device"
	"github.com/corevox/noia/internal/memoryitem"
	"github.com/corevox/noia/internal/models"
	"github.com/corevox/noia/internal/realtime"
	"github.com/corevox/noia/internal/tools"
	"github.com/corevox/noia/internal/vad"
	"github.com/corevox/noia/internal/wakeengine"
	"github.com/corevox/noia/internal/wakestage"
)

// wakeEngineSampleRateHz is the fixed rate the Wake Engine's models expect.
const wakeEngineSampleRateHz = 16000

// errorRecoverDelay is the sleep between a fatal error and the next loop
// iteration.
const errorRecoverDelay = 5 * time.Second

// staleAgentSweepSchedule evicts agents that have aged past the configured
// session timeout without anyone revisiting getOrCreateAgent to notice.
const staleAgentSweepSchedule = "@every 30s"

// modelFreshnessSchedule re-verifies the provisioned model files on disk and
// re-downloads anything missing or failing its checksum.
const modelFreshnessSchedule = "@every 1h"

// Deps supplies the hardware and remote-service bindings the Supervisor
// wires into each Realtime Agent Core instance it creates. NewWakeEngine is
// pluggable so tests can inject a fake multi-model engine without an ONNX
// Runtime.
type Deps struct {
	NewCapturer   func() (audioio.Capturer, error)
	NewRenderer   func() (audioio.Renderer, error)
	NewVAD        func() (vad.Detector, error)
	NewWakeEngine func(models []wakeengine.ModelConfig) (wakestage.WakeEngine, error)

	RealtimeClient *realtime.Client
	Device         *device.Coordinator
	Memory         *memoryitem.Store

	// ModelManifests and ModelsDir drive the periodic model-freshness check.
	// Freshness checking is skipped when ModelManifests is empty.
	ModelManifests []models.ModelManifest
	ModelsDir      string
}

func defaultNewWakeEngine(models []wakeengine.ModelConfig) (wakestage.WakeEngine, error) {
	return wakeengine.New(models)
}

// Supervisor owns the agent cache and drives the main idle/converse loop.
type Supervisor struct {
	b          *bus.Bus
	log        *logrus.Logger
	cfgWatcher *appconfig.Watcher
	deps       Deps
	hangup     *hangupSource

	mu     sync.Mutex
	agents map[string]*agentcore.Agent
}

// New constructs a Supervisor. deps.NewWakeEngine defaults to the real
// ONNX-backed wakeengine.Engine when nil.
func New(b *bus.Bus, log *logrus.Logger, cfgWatcher *appconfig.Watcher, deps Deps) *Supervisor {
	if log == nil {
		log = logrus.New()
	}
	if deps.NewWakeEngine == nil {
		deps.NewWakeEngine = defaultNewWakeEngine
	}
	return &Supervisor{
		b:          b,
		log:        log,
		cfgWatcher: cfgWatcher,
		deps:       deps,
		hangup:     &hangupSource{},
		agents:     make(map[string]*agentcore.Agent),
	}
}

// Run drives the Supervisor until ctx is cancelled (process shutdown).
func (s *Supervisor) Run(ctx context.Context) error {
	cfg := s.cfgWatcher.Current()
	if s.deps.Device != nil {
		s.deps.Device.SetPlaybackVolume(cfg.StartupVolume)
	}
	s.b.PublishFrom(bus.KindSystemOk, "supervisor")

	configChanged := make(chan struct{}, 1)
	cfgToken := s.b.Subscribe(bus.KindConfigChanged, func(bus.Event) {
		select {
		case configChanged <- struct{}{}:
		default:
		}
	})
	defer s.b.Unsubscribe(cfgToken)

	hangupToken := s.b.Subscribe(bus.KindHangupInput, func(bus.Event) { s.hangup.trigger() })
	defer s.b.Unsubscribe(hangupToken)

	c := cron.New()
	c.AddFunc(staleAgentSweepSchedule, s.sweepStaleAgents)
	if len(s.deps.ModelManifests) > 0 && s.deps.ModelsDir != "" {
		c.AddFunc(modelFreshnessSchedule, func() { s.checkModelFreshness(ctx) })
	}
	c.Start()
	defer c.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-configChanged:
			s.disposeAllAgents()
			cfg = s.cfgWatcher.Current()
		default:
			cfg = s.cfgWatcher.Current()
		}

		s.b.PublishFrom(bus.KindSystemOk, "supervisor")

		wakeID, fired, err := s.waitForWakeWord(s.hangup.link(ctx), cfg)
		if err != nil {
			s.reportFatal(err, "wake stage failed")
			if !sleepOrDone(ctx, errorRecoverDelay) {
				return nil
			}
			continue
		}

		if !fired {
			if ctx.Err() != nil {
				return nil
			}
			agentCfg, found := firstEnabledAgent(cfg)
			if !found {
				continue
			}
			s.runConversation(ctx, agentCfg, cfg)
			continue
		}

		s.b.PublishFrom(bus.KindWakeWordDetected, "supervisor")
		agentCfg, found := findAgentByWakeWord(cfg, wakeID)
		if !found {
			s.log.WithFields(logrus.Fields{"component": "supervisor", "wake_word": wakeID}).
				Error("no agent configuration matches the fired wake word")
			continue
		}
		s.runConversation(ctx, agentCfg, cfg)
	}
}

func (s *Supervisor) runConversation(ctx context.Context, agentCfg appconfig.AgentConfig, cfg *appconfig.AppConfig) {
	agent, err := s.getOrCreateAgent(agentCfg, cfg)
	if err != nil {
		s.reportFatal(err, "could not create realtime agent")
		sleepOrDone(ctx, errorRecoverDelay)
		return
	}

	hangupCtx := s.hangup.link(ctx)
	result, err := agent.Run(hangupCtx, s.onAgentStateUpdate, s.onAgentMeter)
	s.b.PublishFrom(bus.KindStopListening, "supervisor")

	if err != nil {
		s.reportFatal(err, "agent run failed")
		s.disposeAgent(agentCfg.Name)
		sleepOrDone(ctx, errorRecoverDelay)
		return
	}

	s.log.WithFields(logrus.Fields{"component": "supervisor", "agent": agentCfg.Name, "result": result.String()}).
		Debug("conversation ended")
}

func (s *Supervisor) onAgentStateUpdate(st agentcore.StateUpdate) {
	switch st {
	case agentcore.StateReady:
		s.b.PublishFrom(bus.KindStartListening, "supervisor")
	case agentcore.StateSpeakingStopped:
		s.b.Publish(bus.New(bus.KindTalkLevel, "supervisor", bus.TalkLevelPayload{Level: nil}))
	}
}

func (s *Supervisor) onAgentMeter(level byte) {
	lvl := int(level)
	s.b.Publish(bus.New(bus.KindTalkLevel, "supervisor", bus.TalkLevelPayload{Level: &lvl}))
}

func (s *Supervisor) reportFatal(err error, msg string) {
	s.log.WithFields(logrus.Fields{"component": "supervisor"}).WithError(err).Error(msg)
	s.b.PublishFrom(bus.KindSystemError, "supervisor")
}

// waitForWakeWord opens a fresh microphone capture and wake engine for the
// idle phase and releases both before returning.
func (s *Supervisor) waitForWakeWord(ctx context.Context, cfg *appconfig.AppConfig) (string, bool, error) {
	engine, err := s.deps.NewWakeEngine(buildWakeModels(cfg))
	if err != nil {
		return "", false, err
	}

	capturer, err := s.deps.NewCapturer()
	if err != nil {
		return "", false, err
	}
	defer capturer.Stop()

	frames, err := capturer.Start(ctx)
	if err != nil {
		return "", false, err
	}

	stage := wakestage.New(s.b, engine, cfg.WakeWordSilenceAmplitudeThreshold, capturer.SampleRateHz(), wakeEngineSampleRateHz)
	id, ok := stage.WaitForWakeWord(ctx, frames)
	return id, ok, nil
}

func buildWakeModels(cfg *appconfig.AppConfig) []wakeengine.ModelConfig {
	models := make([]wakeengine.ModelConfig, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.Disabled {
			continue
		}
		models = append(models, wakeengine.ModelConfig{
			ModelID:      a.WakeWordModelID,
			ModelPath:    a.WakeWordModelPath,
			Threshold:    float32(a.WakeWordThreshold),
			TriggerLevel: a.WakeWordTriggerLevel,
		})
	}
	return models
}

func findAgentByWakeWord(cfg *appconfig.AppConfig, wakeID string) (appconfig.AgentConfig, bool) {
	for _, a := range cfg.Agents {
		if !a.Disabled && a.WakeWordModelID == wakeID {
			return a, true
		}
	}
	return appconfig.AgentConfig{}, false
}

func firstEnabledAgent(cfg *appconfig.AppConfig) (appconfig.AgentConfig, bool) {
	for _, a := range cfg.Agents {
		if !a.Disabled {
			return a, true
		}
	}
	return appconfig.AgentConfig{}, false
}

// getOrCreateAgent reuses the cached agent unless its session has aged past
// the configured timeout, in which case it disposes the stale one first.
func (s *Supervisor) getOrCreateAgent(agentCfg appconfig.AgentConfig, cfg *appconfig.AppConfig) (*agentcore.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionTimeout := time.Duration(cfg.SessionTimeoutMinutes) * time.Minute
	if existing, ok := s.agents[agentCfg.Name]; ok {
		if existing.Age() < sessionTimeout {
			return existing, nil
		}
		existing.Dispose()
		delete(s.agents, agentCfg.Name)
	}

	registry := s.buildRegistry(agentCfg)
	instructions := strings.TrimSpace(strings.TrimSpace(cfg.GlobalInstructions) + " " + strings.TrimSpace(agentCfg.Instructions))

	agentCoreCfg := agentcore.Config{
		Model:                         cfg.RemoteModel,
		Voice:                         agentCfg.Voice,
		Instructions:                  instructions,
		Temperature:                   agentCfg.Temperature,
		ConversationInactivityTimeout: time.Duration(cfg.ConversationInactivityTimeoutSeconds) * time.Second,
	}

	agent := agentcore.New(agentCfg.Name, s.deps.RealtimeClient, registry, s.b, s.log, agentcore.Deps{
		NewCapturer: s.deps.NewCapturer,
		NewRenderer: s.deps.NewRenderer,
		NewDetector: s.deps.NewVAD,
	}, agentCoreCfg)

	s.agents[agentCfg.Name] = agent
	return agent, nil
}

// buildRegistry enables the plugin subset named by the Agent Configuration's
// tool-enable flags, defaulting to every plugin when none are named.
func (s *Supervisor) buildRegistry(agentCfg appconfig.AgentConfig) *tools.Registry {
	available := map[string]tools.Plugin{
		"CalculatorPlugin": tools.CalculatorPlugin{},
		"DateTimePlugin":   tools.DateTimePlugin{Now: time.Now},
		"GeoIpPlugin":      tools.GeoIpPlugin{},
		"WeatherPlugin":    tools.WeatherPlugin{},
		"MemoryPlugin":     tools.MemoryPlugin{Store: s.deps.Memory},
		"SystemPlugin":     tools.SystemPlugin{OnStopRequested: s.hangup.trigger},
		"EyesPlugin":       tools.EyesPlugin{},
	}

	names := agentCfg.EnabledTools
	if len(names) == 0 {
		names = make([]string, 0, len(available))
		for name := range available {
			names = append(names, name)
		}
	}

	plugins := make([]tools.Plugin, 0, len(names))
	for _, name := range names {
		if p, ok := available[name]; ok {
			plugins = append(plugins, p)
		}
	}
	return tools.NewRegistry(plugins...)
}

// Snapshot reports the name of every currently cached agent and its session
// age, for the debug API's /debug/state route.
func (s *Supervisor) Snapshot() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.agents))
	for name, a := range s.agents {
		out[name] = a.Age()
	}
	return out
}

func (s *Supervisor) disposeAgent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[name]; ok {
		a.Dispose()
		delete(s.agents, name)
	}
}

// disposeAllAgents disposes every cached agent so the next conversation
// reconnects under the new config.
func (s *Supervisor) disposeAllAgents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, a := range s.agents {
		a.Dispose()
		delete(s.agents, name)
	}
}

// sweepStaleAgents evicts cached agents whose session has aged past the
// configured timeout. getOrCreateAgent already performs this check lazily
// on the next conversation for a given agent name, but an agent that never
// gets revisited would otherwise stay cached with its session open
// indefinitely; this periodic sweep disposes those.
func (s *Supervisor) sweepStaleAgents() {
	sessionTimeout := time.Duration(s.cfgWatcher.Current().SessionTimeoutMinutes) * time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, a := range s.agents {
		if a.Age() >= sessionTimeout {
			a.Dispose()
			delete(s.agents, name)
		}
	}
}

// checkModelFreshness re-runs EnsureModels against the configured manifest
// set, re-downloading anything that went missing or failed its checksum
// since the last check.
func (s *Supervisor) checkModelFreshness(ctx context.Context) {
	if err := models.EnsureModels(ctx, s.deps.ModelsDir, s.deps.ModelManifests, nil); err != nil {
		s.log.WithFields(logrus.Fields{"component": "supervisor"}).WithError(err).Warn("model freshness check failed")
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
