package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/legendaryobs/crystal/internal/stats"
)

func TestCollector_LogsMetrics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(zap.New(core))

	c.IncCounter(stats.MetricWrites, 2)
	c.SetGauge(stats.MetricEfficiency, 87.5)
	c.ObserveHistogram(stats.MetricLatency, 0.01)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("logged %d entries, want 3", len(entries))
	}
	want := []struct{ msg, kind string }{
		{"writes_total", "counter"},
		{"efficiency_score", "gauge"},
		{"response_time_seconds", "histogram"},
	}
	for i, w := range want {
		if entries[i].Message != w.msg {
			t.Errorf("entry[%d].Message = %q, want %q", i, entries[i].Message, w.msg)
		}
		if got := entries[i].ContextMap()["kind"]; got != w.kind {
			t.Errorf("entry[%d] kind = %v, want %s", i, got, w.kind)
		}
	}
	if got := entries[1].ContextMap()["value"]; got != 87.5 {
		t.Errorf("gauge value = %v, want 87.5", got)
	}
}

func TestCollector_CounterTotals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(zap.New(core))

	c.IncCounter(stats.MetricCacheHits, 1)
	c.IncCounter(stats.MetricCacheMisses, 1)
	c.IncCounter(stats.MetricCacheHits, 3)

	entries := logs.FilterMessage("cache_hits_total").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d hit entries, want 2", len(entries))
	}
	if got := entries[1].ContextMap()["total"]; got != int64(4) {
		t.Errorf("hits total = %v, want 4", got)
	}
}

func TestNew_NilLogger(t *testing.T) {
	c := New(nil)
	c.IncCounter("x", 1) // Must not panic.
}
