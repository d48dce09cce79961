package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevox/noia/internal/appconfig"
	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/realtime"
)

func testConfig() *appconfig.AppConfig {
	return &appconfig.AppConfig{
		RemoteAPIKey:                         "k",
		RemoteModel:                          "m",
		SessionTimeoutMinutes:                30,
		ConversationInactivityTimeoutSeconds: 30,
		Agents: []appconfig.AgentConfig{
			{Name: "Kitchen", WakeWordModelID: "hey-kitchen", Voice: "alloy"},
			{Name: "Retired", WakeWordModelID: "hey-retired", Disabled: true},
		},
	}
}

func TestFindAgentByWakeWordSkipsDisabledAgents(t *testing.T) {
	cfg := testConfig()

	agentCfg, ok := findAgentByWakeWord(cfg, "hey-kitchen")
	require.True(t, ok)
	assert.Equal(t, "Kitchen", agentCfg.Name)

	_, ok = findAgentByWakeWord(cfg, "hey-retired")
	assert.False(t, ok, "a disabled agent's wake word must never match")

	_, ok = findAgentByWakeWord(cfg, "no-such-word")
	assert.False(t, ok)
}

func TestFirstEnabledAgentSkipsDisabled(t *testing.T) {
	cfg := testConfig()
	agentCfg, ok := firstEnabledAgent(cfg)
	require.True(t, ok)
	assert.Equal(t, "Kitchen", agentCfg.Name)
}

func TestFirstEnabledAgentFalseWhenAllDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].Disabled = true
	_, ok := firstEnabledAgent(cfg)
	assert.False(t, ok)
}

func TestBuildWakeModelsExcludesDisabledAgents(t *testing.T) {
	cfg := testConfig()
	models := buildWakeModels(cfg)
	require.Len(t, models, 1)
	assert.Equal(t, "hey-kitchen", models[0].ModelID)
}

func TestHangupSourceTriggerCancelsLinkedContext(t *testing.T) {
	h := &hangupSource{}
	ctx := h.link(context.Background())

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before trigger")
	default:
	}

	h.trigger()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("trigger did not cancel the linked context")
	}
}

func TestHangupSourceTriggerBeforeLinkIsNoOp(t *testing.T) {
	h := &hangupSource{}
	h.trigger() // must not panic with no linked token
}

func TestHangupSourceRelinkAbandonsPreviousToken(t *testing.T) {
	h := &hangupSource{}
	first := h.link(context.Background())
	second := h.link(context.Background())

	h.trigger()

	select {
	case <-second.Done():
	default:
		t.Fatal("trigger should cancel the most recently linked token")
	}
	select {
	case <-first.Done():
		t.Fatal("trigger must not reach back to an abandoned token")
	default:
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	b := bus.New(nil)
	cfg := testConfig()
	watcher := appconfig.NewWatcher("", cfg, b, nil)
	client := realtime.NewClient("wss://example.invalid", "test-key")
	return New(b, nil, watcher, Deps{
		RealtimeClient: client,
	})
}

func TestBuildRegistryDefaultsToEveryPlugin(t *testing.T) {
	s := newTestSupervisor(t)
	r := s.buildRegistry(appconfig.AgentConfig{Name: "Kitchen"})
	assert.Len(t, r.ConvertFunctions(), 9)
}

func TestBuildRegistryHonorsEnabledToolsSubset(t *testing.T) {
	s := newTestSupervisor(t)
	r := s.buildRegistry(appconfig.AgentConfig{
		Name:         "Kitchen",
		EnabledTools: []string{"CalculatorPlugin", "NoSuchPlugin"},
	})
	descs := r.ConvertFunctions()
	require.Len(t, descs, 2)
	names := []string{descs[0].Name, descs[1].Name}
	assert.ElementsMatch(t, []string{"CalculatorPlugin-AddAsync", "CalculatorPlugin-SubtractAsync"}, names)
}

func TestGetOrCreateAgentCachesByName(t *testing.T) {
	s := newTestSupervisor(t)
	cfg := testConfig()

	a1, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)
	a2, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)

	assert.Same(t, a1, a2, "an agent within its session timeout must be reused, not rebuilt")
}

func TestSweepStaleAgentsEvictsAgedOutEntries(t *testing.T) {
	s := newTestSupervisor(t)
	cfg := testConfig()
	cfg.SessionTimeoutMinutes = 0 // everything is immediately stale

	a1, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)

	s.cfgWatcher = appconfig.NewWatcher("", cfg, s.b, nil)
	s.sweepStaleAgents()

	s.mu.Lock()
	_, cached := s.agents[cfg.Agents[0].Name]
	s.mu.Unlock()
	assert.False(t, cached, "an agent past its session timeout must be evicted by the sweep")

	a2, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2, "sweepStaleAgents must force a fresh agent on next use")
}

func TestDisposeAllAgentsClearsCache(t *testing.T) {
	s := newTestSupervisor(t)
	cfg := testConfig()

	a1, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)

	s.disposeAllAgents()

	a2, err := s.getOrCreateAgent(cfg.Agents[0], cfg)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2, "disposeAllAgents must force a fresh agent on next use")
}
