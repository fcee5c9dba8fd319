package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/common/metrics"
	"github.com/twinmcp/gateway/controller"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/ratelimit"
	"github.com/twinmcp/gateway/registry"
	"github.com/twinmcp/gateway/transform"
)

type apiFixture struct {
	engine *gin.Engine
	apiKey string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	require.NoError(t, reg.Register(&registry.Tool{
		Id:       "echo",
		Name:     "Echo",
		Category: registry.CategoryDevelopment,
		Caps:     registry.Capabilities{Async: true},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"required": ["message"]
		}`),
		Cache: &registry.CachePolicy{Enabled: true, TTL: 60},
		Executor: registry.ExecutorFunc(func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"message": args["message"]}, nil
		}),
	}))

	authSvc := auth.NewService("router-test-secret", "tmk_")
	require.NoError(t, authSvc.AddUser(&auth.User{
		Id:       "u1",
		Name:     "User One",
		IsActive: true,
		Permissions: []auth.Permission{{
			Resource: auth.ResourceGlobal,
			Actions:  []auth.Action{auth.ActionRead, auth.ActionWrite, auth.ActionExecute},
		}},
	}))
	apiKey, err := authSvc.GenerateAPIKey("u1", "router test", nil)
	require.NoError(t, err)

	logger, err := glog.NewConsoleWithName("router-test", glog.LevelError)
	require.NoError(t, err)

	d, err := dispatcher.New(dispatcher.Config{
		Registry: reg,
		Auth:     authSvc,
		Limiter:  ratelimit.NewMemoryLimiter(),
		Pipeline: transform.NewDefaultPipeline("1.0", func() string { return "req-1" }),
		Logger:   logger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)

	engine := gin.New()
	SetRouter(engine, controller.NewServer(d, reg, authSvc, "1.0"), &metrics.NoOpRecorder{}, logger)
	return &apiFixture{engine: engine, apiKey: apiKey}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", f.apiKey)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
	require.Contains(t, w.Body.String(), `"tool_count":1`)
}

func TestToolCatalog(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/tools", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"echo"`)
	require.Contains(t, w.Body.String(), `"total":1`)

	w = f.do(t, http.MethodGet, "/api/tools?category=data", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"total":0`)

	w = f.do(t, http.MethodGet, "/api/tools/echo", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"input_schema"`)

	w = f.do(t, http.MethodGet, "/api/tools/missing", "", false)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteSyncWithAPIKey(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/tools/echo/execute", `{"args":{"message":"hi"}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"hi"`)
	require.Contains(t, w.Body.String(), `"cacheHit":false`)

	// Identical call hits the result cache.
	w = f.do(t, http.MethodPost, "/api/tools/echo/execute", `{"args":{"message":"hi"}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"cacheHit":true`)
}

func TestExecuteRejectsInvalidArgs(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/tools/echo/execute", `{"args":{"message":42}}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), `"fields"`)
	require.Contains(t, w.Body.String(), `/message`)
}

func TestExecuteForbiddenForAnonymous(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/tools/echo/execute", `{"args":{"message":"hi"}}`, false)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAsyncJobLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/tools/echo/execute",
		`{"args":{"message":"later"},"async":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	var queued struct {
		Data struct {
			JobId  string `json:"jobId"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queued))
	require.NotEmpty(t, queued.Data.JobId)
	require.Equal(t, "queued", queued.Data.Status)

	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/api/jobs/"+queued.Data.JobId, "", true)
		return w.Code == http.StatusOK &&
			strings.Contains(w.Body.String(), `"completed"`)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestJobNotFound(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/jobs/no-such-job", "", true)
	require.Equal(t, http.StatusNotFound, w.Code)
}
