package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
)

// profiles lists the runtime profiles served by name under /ops/debug/pprof/.
var profiles = []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"}

// profilerHandlers maps the pprof endpoints which are not named profiles.
var profilerHandlers = map[string]http.HandlerFunc{
	"":        pprof.Index,
	"profile": pprof.Profile,
	"trace":   pprof.Trace,
	"symbol":  pprof.Symbol,
	"cmdline": pprof.Cmdline,
}

// SetupOpsRoutes injects internal operations related endpoints. The
// lending journal and the profiler have their own toggles.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	routes := map[string]httprouter.Handle{
		"/ops/configs":     api.GetConfigs,
		"/ops/stats":       api.GetStatistics,
		"/ops/maintenance": api.Maintenance,
		"/ops/events":      api.GetEvents,
		"/ops/debug/vars":  GetMemStats,
		"/ops/debug/gc":    api.RunGC,
		"/ops/debug/fos":   api.FreeOSMemory,
	}
	for path, handle := range routes {
		router.GET(path, m.ops(handle))
	}

	if !api.config.ProfilerEndpointsEnable {
		return router
	}
	for name, h := range profilerHandlers {
		router.GET("/ops/debug/pprof/"+name, m.ops(api.OpsHandlerWrapper(h)))
	}
	for _, name := range profiles {
		router.GET("/ops/debug/pprof/"+name, m.ops(api.OpsHandlerWrapper(pprof.Handler(name))))
	}
	return router
}
