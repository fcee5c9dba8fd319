package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/twinmcp/gateway/dispatcher"
)

// callerUserId authenticates the request and returns the caller identity.
// Credential failures surface as unauthorized.
func (s *Server) callerUserId(c *gin.Context) (string, error) {
	authCtx, err := s.Auth.Authenticate(ginRequest{c: c})
	if err != nil {
		return "", &dispatcher.Error{Kind: dispatcher.KindUnauthorized, Message: "authentication failed"}
	}
	return authCtx.UserId, nil
}

// GetJob returns a job's status to its owner.
func (s *Server) GetJob(c *gin.Context) {
	userId, err := s.callerUserId(c)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := s.Dispatcher.JobStatus(c.Param("id"), userId)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"job": job})
}

// CancelJob cancels a job on behalf of its owner.
func (s *Server) CancelJob(c *gin.Context) {
	userId, err := s.callerUserId(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.Dispatcher.CancelJob(c.Param("id"), userId); err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"cancelled": true})
}
