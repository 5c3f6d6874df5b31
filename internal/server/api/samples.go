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

// SamplesHandler trains gestures from recorded samples.
type SamplesHandler struct {
	session *app.Session
}

// NewSamplesHandler creates a new SamplesHandler for the session.
func NewSamplesHandler(s *app.Session) *SamplesHandler {
	return &SamplesHandler{session: s}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/gestures/{name}/samples
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/gestures/")
	name, ok := strings.CutSuffix(path, "/samples")
	if !ok || name == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, r, name)
	case http.MethodPost:
		h.create(w, r, name)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request types

// Each sample decodes as a gesture.Sample.
type createSamplesRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

// Response types

type sampleResponse struct {
	ID          int64            `json:"id"`
	GestureID   string           `json:"gesture_id"`
	SampleIndex int              `json:"sample_index"`
	Frames      gesture.Sequence `json:"frames"`
	CreatedAt   string           `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

type trainResponse struct {
	Name     string           `json:"name"`
	Samples  int              `json:"samples"`
	Sequence gesture.Sequence `json:"sequence"`
}

// list handles GET /api/gestures/{name}/samples
func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request, name string) {
	st := h.session.Store()
	if st == nil {
		writeError(w, http.StatusNotFound, "Samples are not stored")
		return
	}

	g, err := st.Gestures().GetByName(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	samples, err := st.Samples().GetByGestureID(g.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:          s.ID,
			GestureID:   s.GestureID,
			SampleIndex: s.SampleIndex,
			Frames:      s.Sequence,
			CreatedAt:   s.CreatedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/gestures/{name}/samples. The samples are averaged
// into the reference sequence stored under name.
func (h *SamplesHandler) create(w http.ResponseWriter, r *http.Request, name string) {
	var req createSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	seqs, err := gesture.NewTrainer(h.session.Library().Dimension()).Decode(req.Samples)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	seq, err := h.session.Train(name, seqs)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, trainResponse{Name: name, Samples: len(seqs), Sequence: seq})
}
