package metrics

import (
	"testing"

	"github.com/kilianp07/gridmarket/core/factory"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
)

func TestFactoryRegistersSinks(t *testing.T) {
	s, err := coremetrics.NewSink([]factory.ModuleConfig{{Type: "prometheus"}})
	if err != nil {
		t.Fatalf("prometheus sink: %v", err)
	}
	if _, ok := s.(*PromSink); !ok {
		t.Fatalf("expected PromSink got %T", s)
	}
	s, err = coremetrics.NewSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"url": "http://127.0.0.1:1"}}})
	if err != nil {
		t.Fatalf("influx sink: %v", err)
	}
	if _, ok := s.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink for unreachable influx got %T", s)
	}
}
