package debugapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corevox/noia/internal/bus"
)

type fakeState struct{ snapshot map[string]time.Duration }

func (f fakeState) Snapshot() map[string]time.Duration { return f.snapshot }

func TestHealthzReturnsOK(t *testing.T) {
	e := New(Handlers{})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestDebugStateReportsAgentsAndEvents(t *testing.T) {
	b := bus.New(nil)
	rec := NewRecorder(b, 10)
	b.PublishFrom(bus.KindSystemOk, "test")

	e := New(Handlers{
		Recorder: rec,
		State:    fakeState{snapshot: map[string]time.Duration{"Kitchen": 5 * time.Minute}},
	})

	r := httptest.NewRequest(http.MethodGet, "/debug/state", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Kitchen")
	assert.Contains(t, w.Body.String(), "SystemOk")
}
