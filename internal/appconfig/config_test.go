package appconfig

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevox/noia/internal/bus"
)

const validYAML = `
remote_api_key: test-key
remote_model: realtime-mini
global_instructions: be concise
session_timeout_minutes: 30
conversation_inactivity_timeout_seconds: 45
memory_cap: 100
startup_volume: 5
wake_word_silence_amplitude_threshold: 500
agents:
  - name: default
    wake_word_model_id: hey-noia
    wake_word_threshold: 0.5
    wake_word_trigger_level: 3
    voice: sage
`

func writeTemp(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "noia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "realtime-mini", cfg.RemoteModel)
	assert.Len(t, cfg.Agents, 1)
	assert.Equal(t, 0.5, cfg.Agents[0].WakeWordThreshold)
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	bad := validYAML + "\n" // unused; the YAML below carries the bad threshold
	path := writeTemp(t, `
remote_api_key: k
remote_model: m
session_timeout_minutes: 1
conversation_inactivity_timeout_seconds: 1
startup_volume: 5
agents:
  - name: a
    wake_word_threshold: 5.0
    wake_word_trigger_level: 3
`)
	_, err := Load(path)
	require.Error(t, err)
	_ = bad
}

func TestLoadRejectsDuplicateAgentNames(t *testing.T) {
	path := writeTemp(t, `
remote_api_key: k
remote_model: m
session_timeout_minutes: 1
conversation_inactivity_timeout_seconds: 1
startup_volume: 5
agents:
  - name: a
    wake_word_threshold: 0.5
    wake_word_trigger_level: 3
  - name: a
    wake_word_threshold: 0.5
    wake_word_trigger_level: 3
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestWatcherPublishesConfigChangedOnRealEdit(t *testing.T) {
	path := writeTemp(t, validYAML)
	initial, err := Load(path)
	require.NoError(t, err)

	b := bus.New(nil)
	changed := make(chan bus.Event, 1)
	b.Subscribe(bus.KindConfigChanged, func(e bus.Event) { changed <- e })

	w := NewWatcher(path, initial, b, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	edited := strings.Replace(validYAML, "be concise", "be brief", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("ConfigChanged not published after edit")
	}
}

func TestWatcherSkipsPublishWhenContentUnchanged(t *testing.T) {
	path := writeTemp(t, validYAML)
	initial, err := Load(path)
	require.NoError(t, err)

	b := bus.New(nil)
	changed := make(chan bus.Event, 1)
	b.Subscribe(bus.KindConfigChanged, func(e bus.Event) { changed <- e })

	w := NewWatcher(path, initial, b, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	select {
	case <-changed:
		t.Fatal("ConfigChanged published for byte-identical rewrite")
	case <-time.After(300 * time.Millisecond):
	}
}
