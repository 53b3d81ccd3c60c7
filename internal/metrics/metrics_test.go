package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveAttempt(OutcomeExecutionFailed)
	m.ObserveAttempt(OutcomeExecutionFailed)
	m.ObserveAttempt(OutcomeSucceeded)
	m.ObserveSynthesis("succeeded")
	m.ObserveTurn("answered")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues(OutcomeExecutionFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues(OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.synthesisTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("answered")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveTurn("answered")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.turnsTotal.WithLabelValues("answered")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.turnsTotal.WithLabelValues("answered")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveGeneration(StageQuery, 1200*time.Millisecond)
	m.ObserveQuery(15 * time.Millisecond)
	m.ObserveHTTP("POST", "/v1/chat", "200", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `askdb_generation_seconds_count{stage="query"} 1`)
	assert.Contains(t, string(body), "askdb_query_seconds_count 1")
	assert.Contains(t, string(body), `askdb_http_requests_total{method="POST",path="/v1/chat",status="200"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt(OutcomeSucceeded)
		m.ObserveSynthesis("succeeded")
		m.ObserveGeneration(StageAnswer, time.Second)
		m.ObserveQuery(time.Second)
		m.ObserveTurn("answered")
		m.ObserveHTTP("GET", "/", "200", time.Second)
	})
	assert.Nil(t, m.Registry())
}
