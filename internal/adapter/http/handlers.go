package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/session"
	"github.com/gorilla/mux"
	geojson "github.com/paulmach/go.geojson"
)

// weekMark is one labelled stop on the week slider.
type weekMark struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Year  string `json:"year"`
	Week  string `json:"week"`
	Text  string `json:"text"`
}

type weeksResponse struct {
	Min   int        `json:"min"`
	Max   int        `json:"max"`
	Marks []weekMark `json:"marks"`
}

type categoriesResponse struct {
	Default string            `json:"default"`
	Options []domain.Category `json:"options"`
}

type sceneResponse struct {
	domain.Scene
	Features *geojson.FeatureCollection `json:"features"`
}

type viewResponse struct {
	session.View
	Features *geojson.FeatureCollection `json:"features"`
}

func newViewResponse(v session.View) viewResponse {
	return viewResponse{View: v, Features: v.Scene.FeatureCollection()}
}

func weekMarks(weeks []domain.Week) []weekMark {
	marks := make([]weekMark, len(weeks))
	for i, w := range weeks {
		marks[i] = weekMark{
			Index: w.Index,
			Label: w.Label,
			Year:  w.Year(),
			Week:  w.Number(),
			Text:  fmt.Sprintf("%s / Week %s", w.Year(), w.Number()),
		}
	}
	return marks
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{
		Default: domain.AllProtests,
		Options: domain.Categories(),
	})
}

func (s *Server) handleWeeks(w http.ResponseWriter, _ *http.Request) {
	table := s.manager.Table()
	writeJSON(w, http.StatusOK, weeksResponse{
		Min:   1,
		Max:   table.Steps(),
		Marks: weekMarks(table.Weeks()),
	})
}

// handleScene filters and renders without a session. time defaults to 1 and
// category to all protests.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	timeIndex := 1
	if raw := q.Get("time"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid time %q: must be an integer", raw))
			return
		}
		timeIndex = n
	}
	category := q.Get("category")
	if category == "" {
		category = domain.AllProtests
	}

	scene, err := s.manager.Scene(timeIndex, category)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse{Scene: scene, Features: scene.FeatureCollection()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	view, err := sess.View(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, newViewResponse(view))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	view, err := sess.View(r.Context())
	s.writeView(w, view, err)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(mux.Vars(r)["id"]); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	view, err := sess.Press(r.Context())
	s.writeView(w, view, err)
}

type scrubRequest struct {
	TimeIndex *int `json:"time_index"`
}

func (s *Server) handleScrub(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req scrubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TimeIndex == nil {
		writeError(w, http.StatusBadRequest, `body must be {"time_index": <int>}`)
		return
	}
	view, err := sess.Scrub(r.Context(), *req.TimeIndex)
	s.writeView(w, view, err)
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `body must be {"category": <string>}`)
		return
	}
	view, err := sess.SelectCategory(r.Context(), req.Category)
	s.writeView(w, view, err)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeView(w http.ResponseWriter, view session.View, err error) {
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(view))
}

// writeSessionError maps domain and session errors to status codes.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, session.ErrTimeIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
	case errors.Is(err, session.ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
