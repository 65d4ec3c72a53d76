package observ

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EventsPublished.WithLabelValues("receiveMessage").Inc()
	m.Connections.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"relaychat_events_published_total", "relaychat_ws_connections"} {
		if !names[want] {
			t.Fatalf("metric %q not registered; got %v", want, names)
		}
	}
}

func TestNopMetricsDoesNotPanicTwice(t *testing.T) {
	a := NopMetrics()
	b := NopMetrics()
	a.ChatOps.WithLabelValues("send", "ok").Inc()
	b.ChatOps.WithLabelValues("send", "ok").Inc()
}
