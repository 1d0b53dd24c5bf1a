package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	first := New()
	second := New()

	first.Scans.Inc()
	first.Transitions.WithLabelValues("report_lost").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(first.Scans))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.Scans))
	assert.Equal(t, 2.0, testutil.ToFloat64(first.Transitions.WithLabelValues("report_lost")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.CodesGenerated.Add(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "upets_qr_codes_generated_total 5"))
}
