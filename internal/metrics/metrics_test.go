package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveAnnotation("annotated", 2*time.Second)
	m.ObserveAnnotation("skipped", 0)
	m.ObserveFlush(3, 1)
	m.RecordsIngested.Add(2)

	out := scrape(t, m)
	for _, want := range []string{
		`picshelf_annotations_total{outcome="annotated"} 1`,
		`picshelf_annotations_total{outcome="skipped"} 1`,
		`picshelf_flush_updates_total{result="ok"} 3`,
		`picshelf_flush_updates_total{result="failed"} 1`,
		`picshelf_annotation_call_seconds_count 1`,
		`picshelf_records_ingested_total 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
