package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/tradeline/internal/connection"
	"github.com/rickgao/tradeline/internal/version"
)

// Health is the /health response body.
type Health struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	Identity      IdentityHealth `json:"identity"`
	Channel       string         `json:"channel"`
	Notifications int            `json:"notifications"`
	Events        EventHealth    `json:"events"`
}

// IdentityHealth summarizes the resolved identity.
type IdentityHealth struct {
	Authenticated bool   `json:"authenticated"`
	Source        string `json:"source"`
	User          string `json:"user,omitempty"`
}

// EventHealth summarizes router counters.
type EventHealth struct {
	Received int64 `json:"received"`
	Routed   int64 `json:"routed"`
	Dropped  int64 `json:"dropped"`
}

// Health reports the pipeline state. A signed-in client whose channel gave
// up is unhealthy; any other state short of an open channel is degraded.
func (p *Pipeline) Health() Health {
	id := p.auth.Current()
	state := p.conn.State()
	stats := p.router.Stats()

	h := Health{
		Status:        "healthy",
		Version:       version.Version,
		Channel:       state.String(),
		Notifications: len(p.center.Active()),
	}
	h.Identity = IdentityHealth{
		Authenticated: id.Authenticated,
		Source:        string(id.Source),
	}
	h.Events = EventHealth{
		Received: stats.Received,
		Routed:   stats.Routed,
		Dropped:  stats.Dropped,
	}
	if id.User != nil {
		h.Identity.User = id.User.DisplayName()
	}

	switch {
	case id.Authenticated && state.Phase == connection.PhaseClosed:
		h.Status = "unhealthy"
	case state.Phase != connection.PhaseOpen:
		h.Status = "degraded"
	}
	return h
}

// HealthHandler serves Health as JSON.
func (p *Pipeline) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := p.Health()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
