package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetChannelState(t *testing.T) {
	states := []string{"idle", "connecting", "open", "reconnecting", "closed"}

	SetChannelState("open", states)
	for _, s := range states {
		want := 0.0
		if s == "open" {
			want = 1
		}
		if got := testutil.ToFloat64(ChannelState.WithLabelValues(s)); got != want {
			t.Errorf("channel_state{state=%q} = %v, want %v", s, got, want)
		}
	}

	SetChannelState("closed", states)
	if got := testutil.ToFloat64(ChannelState.WithLabelValues("open")); got != 0 {
		t.Errorf("open should be cleared, got %v", got)
	}
	if got := testutil.ToFloat64(ChannelState.WithLabelValues("closed")); got != 1 {
		t.Errorf("closed = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	EventsDropped.WithLabelValues("missing_field").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "tradeline_events_dropped_total") {
		t.Error("exposition should include tradeline_events_dropped_total")
	}
}
