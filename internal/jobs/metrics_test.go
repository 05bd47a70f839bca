package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected scrape status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestTrackerRecordsRunAndFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if err := metrics.Track("import:parse").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantErr := errors.New("boom")
	if err := metrics.Track("import:parse").End(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("End must return the error untouched, got %v", err)
	}

	body := scrape(t, registry)
	if !strings.Contains(body, `stocktally_jobs_total{job="import:parse",status="success"} 1`) {
		t.Fatalf("missing success counter: %s", body)
	}
	if !strings.Contains(body, `stocktally_jobs_total{job="import:parse",status="failure"} 1`) {
		t.Fatalf("missing failure counter: %s", body)
	}
	if !strings.Contains(body, `stocktally_jobs_failures_total{job="import:parse"} 1`) {
		t.Fatalf("missing failures counter: %s", body)
	}
}

func TestAddImportOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.AddImportOutcomes(3, 2, 1, 0)

	body := scrape(t, registry)
	if !strings.Contains(body, `stocktally_import_outcomes_total{outcome="new"} 3`) {
		t.Fatalf("missing new counter: %s", body)
	}
	if !strings.Contains(body, `stocktally_import_outcomes_total{outcome="update"} 2`) {
		t.Fatalf("missing update counter: %s", body)
	}
	if !strings.Contains(body, `stocktally_import_outcomes_total{outcome="duplicate"} 1`) {
		t.Fatalf("missing duplicate counter: %s", body)
	}
	if strings.Contains(body, `outcome="error"`) {
		t.Fatalf("zero counts must not emit samples: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	if err := metrics.Track("anything").End(errors.New("x")); err == nil {
		t.Fatal("expected error passthrough")
	}
	metrics.AddImportOutcomes(1, 1, 1, 1)
}
