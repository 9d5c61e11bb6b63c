package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET /x", "GET", 200, time.Millisecond)
	m.SearchServed(true)
	m.StaleSearch()
	m.TableEvent("row_added")
	m.TableOpened()
	m.TableClosed()
	m.Exported("csv")
	m.Submitted(false)
	if m.Registry() != nil {
		t.Fatal("nil metrics has no registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SearchServed(false)
	m.SearchServed(true)
	m.SearchServed(true)
	m.Exported("xlsx")
	m.TableOpened()
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, 2*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`stockmaster_product_searches_total{cache="hit"} 2`,
		`stockmaster_product_searches_total{cache="miss"} 1`,
		`stockmaster_exports_total{format="xlsx"} 1`,
		`stockmaster_open_tables 1`,
		`stockmaster_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in scrape output", want)
		}
	}
}
