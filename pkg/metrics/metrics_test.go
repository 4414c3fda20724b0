package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestForSharesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := For(reg)
	b := For(reg)
	if a != b {
		t.Fatal("For returned different registries for the same registerer")
	}

	a.WriterErrors.WithLabelValues("w", "closed").Inc()
	if got := testutil.ToFloat64(b.WriterErrors.WithLabelValues("w", "closed")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestForNilUsesDefault(t *testing.T) {
	if For(nil) != DefaultRegistry {
		t.Error("expected DefaultRegistry for nil registerer")
	}
}

func TestConfigResolve(t *testing.T) {
	if (Config{Enabled: false, Registry: prometheus.NewRegistry()}).Resolve() != nil {
		t.Error("disabled config should resolve to nil")
	}
	if DefaultConfig().Resolve() != DefaultRegistry {
		t.Error("default config should resolve to DefaultRegistry")
	}
}

func TestRegistryCollectorNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.WriterWrites.WithLabelValues("w").Inc()
	r.ChannelDepth.WithLabelValues("c").Set(2)
	r.TransportErrors.WithLabelValues("redis", "events", "send").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"sinkflow_writer_writes_total":    false,
		"sinkflow_channel_depth":          false,
		"sinkflow_transport_errors_total": false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestNewRegistryPanicsOnDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewRegistry(reg)
}
