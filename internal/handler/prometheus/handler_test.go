package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewRegistry()
	m := metrics.NewMetrics("clinica", registry)
	m.TurnoTransitions.WithLabelValues("PENDIENTE", "ACEPTADO").Inc()

	r := gin.New()
	New(registry).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `clinica_turno_transitions_total{from="PENDIENTE",to="ACEPTADO"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
