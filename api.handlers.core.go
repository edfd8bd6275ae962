package main

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger     *zap.Logger
	config     *Config
	stats      *Statistics
	mode       *Maintenance
	clock      Clocker
	idsHandler UIDHandler
	service    LibraryServiceProvider
	journal    Journal
}

// NewAPIHandler provides a new instance of APIHandler. The journal may be nil.
func NewAPIHandler(
	logger *zap.Logger,
	config *Config,
	stats *Statistics,
	clock Clocker,
	idsHandler UIDHandler,
	ls LibraryServiceProvider,
	journal Journal,
) *APIHandler {
	m := &Maintenance{}
	m.enabled.Store(false)
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:     logger,
		config:     config,
		stats:      stats,
		mode:       m,
		clock:      clock,
		idsHandler: idsHandler,
		service:    ls,
		journal:    journal,
	}
}

// errorStatus maps a lending error to its response status and message.
// Unknown errors are internal failures and their details are not exposed.
func errorStatus(err error, fallback string) (int, string) {
	for _, e := range []struct {
		target error
		status int
	}{
		{ErrUsernameTaken, http.StatusBadRequest},
		{ErrISBNTaken, http.StatusBadRequest},
		{ErrNoAvailableCopies, http.StatusBadRequest},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrInvalidAuthHeader, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrNotOwner, http.StatusForbidden},
		{ErrBookNotFound, http.StatusNotFound},
		{ErrUserNotFound, http.StatusNotFound},
	} {
		if errors.Is(err, e.target) {
			return e.status, e.target.Error()
		}
	}
	return http.StatusInternalServerError, fallback
}

// writeError sends an error envelope and logs when the response could not be sent.
func (api *APIHandler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	errResp := NewAPIError(requestID, status, message, EmptyData)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// writeServiceError logs the failure then answers with the mapped status.
func (api *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := errorStatus(err, fallback)
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if status >= http.StatusInternalServerError {
		api.logger.Error(fallback, zap.String("request.id", requestID), zap.Error(err))
	} else {
		api.logger.Info(fallback, zap.String("request.id", requestID), zap.String("reason", message))
	}
	api.writeError(w, r, status, message)
}

// writeSuccess sends a success envelope. total is set only for lists.
func (api *APIHandler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, total *int, data interface{}) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	resp := GenericResponse(requestID, status, message, total, data)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", requestID), zap.Error(err))
	}
}
