package controller

import (
	"time"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/registry"
)

// Server holds the handlers' collaborators. Everything is injected so a
// test can stand up a complete HTTP surface around in-memory components.
type Server struct {
	Dispatcher *dispatcher.Dispatcher
	Registry   *registry.Registry
	Auth       *auth.Service
	APIVersion string
	StartTime  time.Time
}

// NewServer wires a controller server.
func NewServer(d *dispatcher.Dispatcher, reg *registry.Registry, authSvc *auth.Service, apiVersion string) *Server {
	return &Server{
		Dispatcher: d,
		Registry:   reg,
		Auth:       authSvc,
		APIVersion: apiVersion,
		StartTime:  time.Now(),
	}
}
