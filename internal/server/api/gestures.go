// Package api provides the HTTP API handlers for the mudra recognition server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// GestureHandler serves the reference gestures of the session library.
type GestureHandler struct {
	session *app.Session
}

// NewGestureHandler creates a new GestureHandler for the session.
func NewGestureHandler(s *app.Session) *GestureHandler {
	return &GestureHandler{session: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/gestures or /api/gestures/{name}
	name := strings.TrimPrefix(r.URL.Path, "/api/gestures")
	name = strings.TrimPrefix(name, "/")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if name == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, name)
}

// Request and response types

type gestureResponse struct {
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name"`
	Frames    int              `json:"frames"`
	Samples   int              `json:"samples"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Sequence  gesture.Sequence `json:"sequence,omitempty"`
}

type listGesturesResponse struct {
	Dimension int               `json:"dimension"`
	Gestures  []gestureResponse `json:"gestures"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// describe builds the response for one library entry, adding the stored
// metadata when the session has a store.
func (h *GestureHandler) describe(e gesture.Entry) gestureResponse {
	resp := gestureResponse{Name: e.Name, Frames: len(e.Sequence)}

	st := h.session.Store()
	if st == nil {
		return resp
	}
	g, err := st.Gestures().GetByName(e.Name)
	if err != nil {
		return resp
	}
	resp.ID = g.ID
	resp.Samples = g.Samples
	resp.UpdatedAt = g.UpdatedAt.Format(timeFormat)
	return resp
}

// list handles GET /api/gestures and returns every gesture in library order.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	lib := h.session.Library()
	entries := lib.Entries()

	response := listGesturesResponse{
		Dimension: lib.Dimension(),
		Gestures:  make([]gestureResponse, 0, len(entries)),
	}
	for _, e := range entries {
		response.Gestures = append(response.Gestures, h.describe(e))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/gestures/{name} and returns the gesture with its frames.
func (h *GestureHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	seq, ok := h.session.Library().Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Gesture not found")
		return
	}

	resp := h.describe(gesture.Entry{Name: name, Sequence: seq})
	resp.Sequence = seq
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gesture.ErrEmptyName),
		errors.Is(err, gesture.ErrInvalidName),
		errors.Is(err, gesture.ErrInvalidSample),
		errors.Is(err, gesture.ErrEmptySequence),
		errors.Is(err, gesture.ErrDimensionMismatch),
		errors.Is(err, gesture.ErrNonFiniteFrame),
		errors.Is(err, gesture.ErrParse):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
