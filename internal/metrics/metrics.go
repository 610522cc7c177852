package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IdentityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeline_identity_resolutions_total",
			Help: "Identity resolutions committed, by resulting source",
		},
		[]string{"source"},
	)

	IdentityStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeline_identity_stale_total",
			Help: "Resolution results discarded because the identity was invalidated meanwhile",
		},
	)

	// ChannelState flips exactly one labeled series to 1.
	ChannelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradeline_channel_state",
			Help: "Event channel state (one-hot across the state label)",
		},
		[]string{"state"},
	)

	ChannelReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeline_channel_reconnects_total",
			Help: "Reconnect attempts scheduled after a channel failure",
		},
	)

	ChannelMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeline_channel_messages_total",
			Help: "Raw frames read from the event channel",
		},
	)

	ChannelDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeline_channel_dropped_total",
			Help: "Raw frames dropped because the output buffer was full",
		},
	)

	EventsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeline_events_routed_total",
			Help: "Validated domain events delivered to subscribers",
		},
		[]string{"kind"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeline_events_dropped_total",
			Help: "Inbound frames rejected by the router",
		},
		[]string{"reason"},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeline_notifications_created_total",
			Help: "Notifications added to the active set, by kind",
		},
		[]string{"kind"},
	)

	NotificationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeline_notifications_active",
			Help: "Notifications currently visible",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IdentityResolutions,
		IdentityStale,
		ChannelState,
		ChannelReconnects,
		ChannelMessages,
		ChannelDropped,
		EventsRouted,
		EventsDropped,
		NotificationsCreated,
		NotificationsActive,
	)
}

// SetChannelState marks state as the current one among states.
func SetChannelState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		ChannelState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
