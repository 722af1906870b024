package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/cache"
)

var _ cache.Observer = (*Metrics)(nil)

// sample sums every series of the named family whose labels include want.
func sample(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, s := range f.GetMetric() {
			if !hasLabels(s, want) {
				continue
			}
			switch {
			case s.Counter != nil:
				total += s.Counter.GetValue()
			case s.Gauge != nil:
				total += s.Gauge.GetValue()
			case s.Histogram != nil:
				total += float64(s.Histogram.GetSampleCount())
			}
		}
		return total
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func hasLabels(s *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, l := range s.GetLabel() {
			if l.GetName() == k && l.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestCacheObserver(t *testing.T) {
	m := New()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.CacheEvicted(3)
	m.CacheEvicted(0)
	m.CacheSize(12, 480)
	m.ServiceCall(4*time.Millisecond, nil)
	m.ServiceCall(50*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 2.0, sample(t, m, "wordfill_cache_hits_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "wordfill_cache_misses_total", nil))
	assert.Equal(t, 3.0, sample(t, m, "wordfill_cache_evictions_total", nil))
	assert.Equal(t, 12.0, sample(t, m, "wordfill_cache_entries", nil))
	assert.Equal(t, 480.0, sample(t, m, "wordfill_cache_bytes", nil))
	assert.Equal(t, 2.0, sample(t, m, "wordfill_suggest_latency_seconds", nil))
	assert.Equal(t, 1.0, sample(t, m, "wordfill_suggest_errors_total", nil))
}

func TestCycleAndInsert(t *testing.T) {
	m := New()
	m.Cycle("shown", 20*time.Millisecond)
	m.Cycle("shown", 10*time.Millisecond)
	m.Cycle("no_completions", 0)
	m.Insert("structured", true, 0)
	m.Insert("synthesized", true, 2)
	m.Insert("", false, 0)

	assert.Equal(t, 2.0, sample(t, m, "wordfill_cycle_total", map[string]string{"outcome": "shown"}))
	assert.Equal(t, 1.0, sample(t, m, "wordfill_cycle_total", map[string]string{"outcome": "no_completions"}))
	assert.Equal(t, 2.0, sample(t, m, "wordfill_cycle_duration_seconds", nil))
	assert.Equal(t, 1.0, sample(t, m, "wordfill_insert_total", map[string]string{"strategy": "structured", "result": "true"}))
	assert.Equal(t, 1.0, sample(t, m, "wordfill_insert_total", map[string]string{"strategy": "none", "result": "false"}))
	assert.Equal(t, 2.0, sample(t, m, "wordfill_insert_skipped_runes_total", nil))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.CacheEvicted(1)
		m.CacheSize(1, 1)
		m.ServiceCall(time.Millisecond, nil)
		m.Cycle("shown", time.Millisecond)
		m.Insert("structured", true, 0)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wordfill_cache_hits_total 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	m := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "wordfill_cache_entries"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestServeExtraRoutes(t *testing.T) {
	m := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	healthz := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	go m.serve(ctx, ln, nil, Route{Pattern: "/healthz", Handler: healthz})

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
