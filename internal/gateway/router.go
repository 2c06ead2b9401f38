package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/guided-traffic/payload-gateway/internal/gateway/handlers/health"
	"github.com/guided-traffic/payload-gateway/internal/gateway/handlers/inspect"
	"github.com/guided-traffic/payload-gateway/internal/gateway/middleware"
	"github.com/guided-traffic/payload-gateway/internal/gateway/response"
	"github.com/guided-traffic/payload-gateway/internal/monitoring"
	"github.com/sirupsen/logrus"
)

// defaultMethods are served by routes that do not list their own
var defaultMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// setupRoutes configures the HTTP routes of the gateway
func (s *Server) setupRoutes(router *mux.Router) {
	// Add monitoring middleware if monitoring is enabled
	if s.config.Monitoring.Enabled {
		router.Use(monitoring.HTTPMiddleware)
	}
	router.Use(middleware.RequestID)

	healthHandler := health.NewHandler(s.logger, s.config.LogHealthRequests, s.version)
	healthHandler.SetShutdownStateHandler(s.shutdownStateHandler)
	healthHandler.SetActiveRequests(s.requestTracker.Active)

	// Health and version endpoints - before payload middleware
	healthRouter := router.NewRoute().Subrouter()
	healthRouter.HandleFunc("/health", healthHandler.Health).Methods("GET")
	healthRouter.HandleFunc("/version", healthHandler.Version).Methods("GET")

	// Payload endpoints - order matters: tracking first, then logging and cors
	apiRouter := router.NewRoute().Subrouter()
	apiRouter.Use(s.requestTrackingMiddleware)
	apiRouter.Use(s.loggingMiddleware)
	apiRouter.Use(s.corsMiddleware)

	inspectHandler := inspect.NewHandler(s.logger)
	errorWriter := response.NewErrorWriter(s.logger)
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorWriter.WriteGenericError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Method "+r.Method+" is not allowed on "+r.URL.Path)
	})

	for _, route := range s.config.Routes {
		methods := route.Methods
		if len(methods) == 0 {
			methods = defaultMethods
		}
		methods = upper(methods)

		opts := s.config.PayloadOptions(route)
		handler := s.payloadMiddleware(opts)(http.HandlerFunc(inspectHandler.Handle))
		apiRouter.Handle(route.Path, handler).Methods(append(methods, http.MethodOptions)...)
		// Other methods on a configured path must not fall through to the defaults
		apiRouter.Handle(route.Path, methodNotAllowed)

		s.logger.WithFields(logrus.Fields{
			"path":        route.Path,
			"methods":     methods,
			"output":      opts.Output,
			"parse":       opts.Parse,
			"fail_action": opts.FailAction,
			"max_bytes":   opts.MaxBytes,
		}).Info("Registered payload route")
	}

	// Every other path reads bodies with the top-level payload defaults
	fallback := s.payloadMiddleware(s.config.DefaultPayloadOptions())(http.HandlerFunc(inspectHandler.Handle))
	apiRouter.PathPrefix("/").Handler(fallback).Methods(append(defaultMethods, http.MethodOptions)...)
}

func upper(methods []string) []string {
	out := make([]string, len(methods))
	for i, method := range methods {
		out[i] = strings.ToUpper(method)
	}
	return out
}
