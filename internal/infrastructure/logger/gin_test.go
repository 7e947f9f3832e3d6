package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(log *zap.Logger, skip ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("request_id", "req-123")
		c.Next()
	})
	r.Use(GinMiddleware(log, skip...), Recovery(log))
	r.GET("/ok", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGinMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	r := newTestRouter(zap.New(core), "/health")

	tests := []struct {
		path      string
		status    int
		wantLevel zapcore.Level
		logged    bool
	}{
		{"/ok", http.StatusOK, zapcore.InfoLevel, true},
		{"/health", http.StatusOK, zapcore.InfoLevel, false},
		{"/missing", http.StatusNotFound, zapcore.WarnLevel, true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			before := recorded.Len()
			w := serve(r, tc.path)
			assert.Equal(t, tc.status, w.Code)

			entries := recorded.All()[before:]
			if !tc.logged {
				assert.Empty(t, entries)
				return
			}
			require.NotEmpty(t, entries)
			last := entries[len(entries)-1]
			assert.Equal(t, "HTTP Request", last.Message)
			assert.Equal(t, tc.wantLevel, last.Level)
			assert.Equal(t, "req-123", last.ContextMap()["request_id"])
		})
	}
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	r := newTestRouter(zap.New(core))

	w := serve(r, "/panic")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, recorded.FilterMessage("Panic recovered").All())
}

func TestGetGinLogger_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
