package controllers

import (
	"net/http"

	"github.com/rzbill/logmux/internal/runtime"
	logpkg "github.com/rzbill/logmux/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	streams *StreamsController
}

func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		streams: NewStreamsController(rt, logger),
	}
}

// RegisterAllRoutes registers every controller's routes with mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.streams.RegisterRoutes(mux)
}
