package middleware

import (
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/gin-gonic/gin"

	"github.com/twinmcp/gateway/common/ctxkey"
	"github.com/twinmcp/gateway/common/helper"
)

// RequestId stamps every request with a UUIDv7 identifier, stored on the
// context and echoed back in the response header.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(helper.RequestIdKey)
		if id == "" {
			id = gutils.UUID7()
		}
		c.Set(ctxkey.RequestId, id)
		c.Set(helper.RequestIdKey, id)
		c.Header(helper.RequestIdKey, id)
		c.Next()
	}
}

// GetRequestId returns the request identifier stamped by RequestId.
func GetRequestId(c *gin.Context) string {
	return c.GetString(helper.RequestIdKey)
}
