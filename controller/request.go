// Package controller maps the HTTP surface onto the dispatch pipeline.
// Handlers stay thin: decode, dispatch, encode.
package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/middleware"
)

// ginRequest adapts a gin request to the credential view the auth service
// consumes.
type ginRequest struct {
	c *gin.Context
}

// Header implements auth.Request.
func (r ginRequest) Header(name string) string { return r.c.GetHeader(name) }

// Query implements auth.Request.
func (r ginRequest) Query(name string) string { return r.c.Query(name) }

// Cookie implements auth.Request.
func (r ginRequest) Cookie(name string) string {
	value, err := r.c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}

var _ auth.Request = ginRequest{}

// statusOf maps the dispatch error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch dispatcher.KindOf(err) {
	case dispatcher.KindUnauthorized:
		return http.StatusUnauthorized
	case dispatcher.KindForbidden:
		return http.StatusForbidden
	case dispatcher.KindNotFound:
		return http.StatusNotFound
	case dispatcher.KindBadRequest:
		return http.StatusBadRequest
	case dispatcher.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a dispatch failure, attaching field detail for
// validation errors.
func respondError(c *gin.Context, err error) {
	var de *dispatcher.Error
	if errors.As(err, &de) && len(de.Fields) > 0 {
		c.JSON(statusOf(err), gin.H{
			"success": false,
			"error": gin.H{
				"message": de.Message,
				"fields":  de.Fields,
			},
		})
		c.Abort()
		return
	}
	middleware.AbortWithError(c, statusOf(err), err)
}

// respond writes the standard success envelope.
func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    data,
	})
}
