package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Record(t *testing.T) {
	m := New("test")

	m.ObserveForward("transformer", 4, 20*time.Millisecond, nil)
	m.ObserveForward("transformer", 2, 0, errors.New("boom"))
	m.AddIndexed("wiki", 3)
	m.AddIndexed("news", 0)
	m.AddTruncated("wiki", 1)
	m.AddSkipped("wiki", 5)
	m.AddDeleted("wiki", 2)
	m.ObserveHTTP("/encode", 200, time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `test_forward_documents_total{segment_encoder="transformer"} 4`)
	assert.Contains(t, body, `test_forward_errors_total{segment_encoder="transformer"} 1`)
	assert.Contains(t, body, `test_documents_indexed_total{corpus="wiki"} 3`)
	assert.NotContains(t, body, `corpus="news"`)
	assert.Contains(t, body, `test_documents_truncated_total{corpus="wiki"} 1`)
	assert.Contains(t, body, `test_documents_skipped_total{corpus="wiki"} 5`)
	assert.Contains(t, body, `test_documents_deleted_total{corpus="wiki"} 2`)
	assert.Contains(t, body, `test_http_requests_total{path="/encode",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveForward("lstm", 1, time.Second, nil)
		m.AddIndexed("x", 1)
		m.AddSkipped("x", 1)
		m.AddTruncated("x", 1)
		m.AddDeleted("x", 1)
		m.ObserveHTTP("/", 200, time.Second)
	})
}
