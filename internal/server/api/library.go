package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
)

// maxLibrarySize bounds an imported gesture file.
const maxLibrarySize = 16 << 20

// LibraryHandler exports and imports the whole library in the gesture text
// format.
type LibraryHandler struct {
	session *app.Session
}

// NewLibraryHandler creates a new LibraryHandler for the session.
func NewLibraryHandler(s *app.Session) *LibraryHandler {
	return &LibraryHandler{session: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *LibraryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.export(w, r)
	case http.MethodPut:
		h.replace(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// export handles GET /api/library.
func (h *LibraryHandler) export(w http.ResponseWriter, r *http.Request) {
	data, err := h.session.Library().MarshalText()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export library")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+gesture.DefaultFileName(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// replace handles PUT /api/library. A malformed file, or a failed store
// write, leaves both the library and the store unchanged.
func (h *LibraryHandler) replace(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLibrarySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Gesture file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if err := h.session.Import(r.Context(), data); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logging.FromContext(r.Context()).Errorw("failed to import library", "error", err)
			writeError(w, status, "Failed to store library")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"gestures": h.session.Library().Names()})
}
