package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/retroboard/internal/auth"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
)

// DefaultBoardsLimit is the default number of boards to list.
const DefaultBoardsLimit = 50

// publishTimeout bounds event delivery after a mutation has committed.
const publishTimeout = 2 * time.Second

var errBodyTooLarge = errors.New("request body too large")

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

// writeJSONStatus writes a JSON response with the given status code.
func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, ErrorResponse{Error: msg})
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBodyTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, grouping.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, grouping.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, grouping.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, grouping.ErrBackend), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the status of err. Server-side failures are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", GetRequestID(r.Context())).Msg("Request failed")
		msg = http.StatusText(status)
	}
	writeJSONStatus(w, status, ErrorResponse{Error: msg, RequestID: GetRequestID(r.Context())})
}

// decodeJSON reads the request body into v. An empty body is accepted when optional is set.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: invalid JSON body: %v", grouping.ErrInvalidArgument, err)
}

// currentUser returns the authenticated user of r.
func currentUser(r *http.Request) *auth.User {
	if user, ok := auth.FromContext(r.Context()); ok {
		return user
	}
	return &auth.User{ID: auth.AnonymousID, Name: auth.AnonymousID}
}

// publish notifies board watchers of a committed change. Failures are logged only:
// the change itself has already succeeded.
func (s *Service) publish(ctx context.Context, eventType, retrospectiveID, cardID, groupID string, data interface{}) {
	ev, err := events.New(eventType, retrospectiveID, data)
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}
	ev.CardID = cardID
	ev.GroupID = groupID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("type", eventType).
			Str("retrospective_id", retrospectiveID).
			Msg("Failed to publish event")
	}
}

// handleHealth handles health check requests.
// Returns 200 immediately, even during initialization. Use /api/ready for readiness.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}

	resp := map[string]interface{}{
		"status":      status,
		"version":     s.version,
		"uptime_secs": int64(time.Since(s.startTime).Seconds()),
		"sse_clients": s.sseBroadcaster.ClientCount(),
	}
	if s.ready.Load() {
		resp["database"] = s.store.HealthCheck(r.Context())
	}
	writeJSON(w, resp)
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version": s.version,
	})
}

// handleReady handles readiness check requests.
// Returns 200 only when fully initialized, 503 otherwise.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			writeErrorStatus(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeErrorStatus(w, http.StatusServiceUnavailable, "service initializing")
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// requireReady is middleware that returns 503 if service isn't ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				writeErrorStatus(w, http.StatusInternalServerError, "service initialization failed: "+err.Error())
				return
			}
			writeErrorStatus(w, http.StatusServiceUnavailable, "service initializing")
			return
		}
		next.ServeHTTP(w, r)
	})
}
