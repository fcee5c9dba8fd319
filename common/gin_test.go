package common

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T, body string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c
}

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalBodyReusable(t *testing.T) {
	c := testContext(t, `{"name":"a","count":2}`)

	var first testPayload
	require.NoError(t, UnmarshalBodyReusable(c, &first))
	require.Equal(t, testPayload{Name: "a", Count: 2}, first)

	// The body stays readable for a second consumer.
	var second testPayload
	require.NoError(t, UnmarshalBodyReusable(c, &second))
	require.Equal(t, first, second)
}

func TestUnmarshalBodyReusableEmptyBody(t *testing.T) {
	c := testContext(t, "")

	var payload testPayload
	require.NoError(t, UnmarshalBodyReusable(c, &payload))
	require.Equal(t, testPayload{}, payload)
}

func TestUnmarshalBodyReusableRejectsNonPointer(t *testing.T) {
	c := testContext(t, `{}`)
	require.Error(t, UnmarshalBodyReusable(c, testPayload{}))
}

func TestUnmarshalBodyReusableMalformedJSON(t *testing.T) {
	c := testContext(t, `{"name":`)
	var payload testPayload
	require.Error(t, UnmarshalBodyReusable(c, &payload))
}
