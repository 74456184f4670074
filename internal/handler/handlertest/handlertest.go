// Package handlertest serves handler routes in tests without the token layer.
package handlertest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validator.RegisterGinValidations(); err != nil {
		panic(err)
	}
}

// Envelope mirrors httputil.Response with a raw data field
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// Router builds an engine whose routes see actor as the authenticated caller.
// A nil actor leaves the request anonymous.
func Router(actor *model.Actor, register func(r *gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/v1")
	if actor != nil {
		a := *actor
		g.Use(func(c *gin.Context) {
			c.Set(middleware.ContextActor, a)
			c.Next()
		})
	}
	register(g)
	return r
}

// Do sends body (JSON encoded unless it is nil or a raw string) and returns the recorder
func Do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return DoWithHeaders(t, r, method, path, body, nil)
}

func DoWithHeaders(t *testing.T, r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Decode unwraps the envelope and, when out is non-nil, its data
func Decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}
