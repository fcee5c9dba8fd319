package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/twinmcp/gateway/common/helper"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	logger, err := glog.NewConsoleWithName("test", glog.LevelError)
	require.NoError(t, err)
	engine.Use(RequestId(), gmw.NewLoggerMiddleware(
		gmw.WithLevel(glog.LevelError.String()),
		gmw.WithLogger(logger),
	))
	return engine
}

func TestRequestIdStampsHeaderAndContext(t *testing.T) {
	engine := testRouter(t)
	engine.GET("/ping", func(c *gin.Context) {
		require.NotEmpty(t, GetRequestId(c))
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(helper.RequestIdKey))
}

func TestRequestIdPreservesInboundId(t *testing.T) {
	engine := testRouter(t)
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(helper.RequestIdKey, "upstream-id")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, "upstream-id", w.Header().Get(helper.RequestIdKey))
}

func TestAbortWithErrorEnvelope(t *testing.T) {
	engine := testRouter(t)
	engine.GET("/fail", func(c *gin.Context) {
		AbortWithError(c, http.StatusBadRequest, errors.New("bad input"))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "bad input")
	require.Contains(t, w.Body.String(), "request id")
	require.Contains(t, w.Body.String(), `"success":false`)
}
