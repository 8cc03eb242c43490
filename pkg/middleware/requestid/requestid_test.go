package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, header string) (string, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	var fromGin, fromCtx string
	router.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(headerKey, header)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	return recorder.Header().Get(headerKey), fromGin, fromCtx
}

func TestMiddlewareReusesInboundID(t *testing.T) {
	header, fromGin, fromCtx := serve(t, "edge-42")
	assert.Equal(t, "edge-42", header)
	assert.Equal(t, "edge-42", fromGin)
	assert.Equal(t, "edge-42", fromCtx)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	for _, inbound := range []string{"", "has space", strings.Repeat("x", maxIDLength+1)} {
		header, fromGin, _ := serve(t, inbound)
		_, err := uuid.Parse(header)
		assert.NoError(t, err, "inbound %q", inbound)
		assert.Equal(t, header, fromGin)
	}
}
