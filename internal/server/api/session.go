package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
)

// SessionHandler exposes the capture workflow.
type SessionHandler struct {
	session *app.Session
}

// NewSessionHandler creates a new SessionHandler for the session.
func NewSessionHandler(s *app.Session) *SessionHandler {
	return &SessionHandler{session: s}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/session and /api/session/{capture,commit,read}
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/api/session")
	op = strings.TrimPrefix(op, "/")

	if op == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.session.Status())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch op {
	case "capture":
		h.capture(w, r)
	case "commit":
		h.commit(w, r)
	case "read":
		h.session.Read()
		writeJSON(w, http.StatusOK, h.session.Status())
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type captureRequest struct {
	Name string `json:"name"`
	// Countdown defaults to true; false starts capturing immediately.
	Countdown *bool `json:"countdown"`
}

// capture handles POST /api/session/capture.
func (h *SessionHandler) capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var err error
	if req.Countdown == nil || *req.Countdown {
		err = h.session.StartCountdown(req.Name)
	} else {
		err = h.session.StartCapture(req.Name)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, h.session.Status())
}

// commit handles POST /api/session/commit.
func (h *SessionHandler) commit(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Commit(); err != nil {
		status := statusFor(err)
		if errors.Is(err, capture.ErrNotCapturing) || errors.Is(err, capture.ErrEmptyBuffer) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.session.Status())
}

// FramesHandler feeds frames pushed by a sensor client into the session.
type FramesHandler struct {
	session *app.Session
}

// NewFramesHandler creates a new FramesHandler for the session.
func NewFramesHandler(s *app.Session) *FramesHandler {
	return &FramesHandler{session: s}
}

type framesRequest struct {
	Frame  gesture.Frame   `json:"frame,omitempty"`
	Frames []gesture.Frame `json:"frames,omitempty"`
}

type frameResult struct {
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type framesResponse struct {
	Results []frameResult `json:"results"`
	Status  app.Status    `json:"status"`
}

// ServeHTTP handles POST /api/frames. Each frame yields one result; rejected
// frames report their error without failing the request.
func (h *FramesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req framesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	frames := req.Frames
	if req.Frame != nil {
		frames = append([]gesture.Frame{req.Frame}, frames...)
	}
	if len(frames) == 0 {
		writeError(w, http.StatusBadRequest, "At least one frame is required")
		return
	}

	response := framesResponse{Results: make([]frameResult, 0, len(frames))}
	for _, f := range frames {
		res, err := h.session.FeedContext(r.Context(), f)
		if err != nil {
			response.Results = append(response.Results, frameResult{Error: err.Error()})
			continue
		}
		response.Results = append(response.Results, frameResult{Name: res.Name, Distance: res.Distance})
	}
	response.Status = h.session.Status()

	writeJSON(w, http.StatusOK, response)
}
