package metrics

import (
	"testing"
)

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()

	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
	m.SessionDuration.Observe(0.05)
	m.ErrorResponses.WithLabelValues("503").Inc()
	m.RelayedBytes.Add(1024)
	m.OriginDialDuration.Observe(0.01)
	m.OriginDialFailures.Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	got := make(map[string]bool, len(families))
	for _, f := range families {
		got[f.GetName()] = true
	}

	want := []string{
		"forward_proxy_sessions_total",
		"forward_proxy_sessions_active",
		"forward_proxy_session_duration_seconds",
		"forward_proxy_error_responses_total",
		"forward_proxy_relayed_bytes_total",
		"forward_proxy_origin_dial_duration_seconds",
		"forward_proxy_origin_dial_failures_total",
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("Gather() missing metric family %q", name)
		}
	}
}

func TestNew_ErrorResponsesLabels(t *testing.T) {
	m := New()

	m.ErrorResponses.WithLabelValues("400").Inc()
	m.ErrorResponses.WithLabelValues("400").Inc()
	m.ErrorResponses.WithLabelValues("501").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() != "forward_proxy_error_responses_total" {
			continue
		}
		counts := make(map[string]float64)
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_code" {
					counts[lp.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
		if counts["400"] != 2 {
			t.Errorf("400 counter = %v, want 2", counts["400"])
		}
		if counts["501"] != 1 {
			t.Errorf("501 counter = %v, want 1", counts["501"])
		}
		return
	}
	t.Error("forward_proxy_error_responses_total not gathered")
}
