package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"id": RequestID(c)}) })
	r.GET("/fail", func(c *gin.Context) { Fail(c, http.StatusConflict, ErrAlreadySubmitted) })
	return r
}

func TestRequestID_PropagatesCallerID(t *testing.T) {
	r := newTestEngine()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get(HeaderRequestID))
	assert.Contains(t, w.Body.String(), `"request_id":"trace-123"`)
}

func TestRequestID_ReplacesInvalidID(t *testing.T) {
	r := newTestEngine()
	for _, bad := range []string{"", strings.Repeat("a", 65), "has space"} {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		if bad != "" {
			req.Header.Set(HeaderRequestID, bad)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(HeaderRequestID)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 36)
	}
}

func TestFail_Envelope(t *testing.T) {
	r := newTestEngine()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"ALREADY_SUBMITTED"`)
	assert.Contains(t, w.Body.String(), `"data":null`)
}
