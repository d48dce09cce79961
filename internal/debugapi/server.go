// Package debugapi exposes a minimal local-only inspection surface:
// GET /healthz and GET /debug/state. It is deliberately not a full
// configuration/logs REST API — just enough to let an operator on the
// SBC's LAN ask "is it alive, and what is it doing".
package debugapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StateProvider is the subset of *supervisor.Supervisor the debug API
// depends on, declared locally so this package does not import supervisor
// (which would create an import cycle once the Supervisor wants to log its
// own debug-server address).
type StateProvider interface {
	Snapshot() map[string]time.Duration
}

// Handlers bundles the debug API's dependencies and registers its routes.
type Handlers struct {
	Recorder *Recorder
	State    StateProvider
}

// New builds an *echo.Echo with the debug routes registered and standard
// Logger/Recover middleware attached.
func New(h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.Register(e)
	return e
}

// Register attaches the debug routes to an existing *echo.Echo.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/debug/state", func(c echo.Context) error {
		agents := map[string]string{}
		if h.State != nil {
			for name, age := range h.State.Snapshot() {
				agents[name] = age.String()
			}
		}
		events := []EventRecord{}
		if h.Recorder != nil {
			events = h.Recorder.Recent()
		}
		return c.JSON(http.StatusOK, map[string]any{
			"agents": agents,
			"events": events,
		})
	})
}
