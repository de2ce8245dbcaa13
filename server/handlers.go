package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

// Every mutation responds with this shape. Validation failures are a
// normal outcome for the frontend, so they come back as isSuccess=false
// with a 200, not an error status.
type resultResponse struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message,omitempty"`
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

func (s Server) pingHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

func (s Server) statusHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, name, err := s.repo.Term(r.Context())
		if err != nil && !errors.Is(err, seatsnatch.ErrNotFound) {
			s.log.Error().Err(err).Msg("failed to read term")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"term":     map[string]string{"code": code, "name": name},
			"counters": s.metrics.Snapshot(),
		})
	}
}

// subscribeHandler puts the caller on a section's waitlist. Refreshes the
// section first so the admission rules see current counts.
func (s Server) subscribeHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}
		classid := p.ByName("classid")

		s.monitor.Pull(r.Context(), classid)

		if err := s.waitlist.Subscribe(r.Context(), netid, classid); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

func (s Server) unsubscribeHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		if err := s.waitlist.Unsubscribe(r.Context(), netid, p.ByName("classid")); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

// matchesHandler returns trade candidates as [netid, section, email]
// triples, the shape the dashboard renders directly.
func (s Server) matchesHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		matches, err := s.matcher.FindMatches(r.Context(), netid, p.ByName("courseid"))
		if err != nil {
			if seatsnatch.IsValidation(err) || errors.Is(err, seatsnatch.ErrNotFound) {
				s.writeJSON(w, http.StatusOK, dataResponse{Data: [][]string{}})
				return
			}
			s.log.Error().Err(err).Str("netid", netid).Msg("failed to find matches")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		rows := make([][]string, 0, len(matches))
		for _, match := range matches {
			rows = append(rows, []string{match.NetID, match.SectionName, match.Email})
		}
		s.writeJSON(w, http.StatusOK, dataResponse{Data: rows})
	}
}

func (s Server) contactHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		var body struct {
			Match string `json:"match"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Match == "" {
			http.Error(w, "request body must name a match", http.StatusBadRequest)
			return
		}

		if err := s.matcher.Contact(r.Context(), netid, body.Match, p.ByName("courseid")); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

// pullHandler refreshes one section on demand. Side effects only; a
// stale upstream is the monitor's problem, not the caller's.
func (s Server) pullHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.monitor.Pull(r.Context(), p.ByName("classid"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// pullCourseHandler refreshes every stale section of a course, the hook
// called when someone views a course page.
func (s Server) pullCourseHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.monitor.PullCourse(r.Context(), p.ByName("courseid"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s Server) setCurrentHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		err := s.waitlist.SetCurrentSection(r.Context(), netid, p.ByName("courseid"), p.ByName("classid"))
		if err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

func (s Server) clearCurrentHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		if err := s.waitlist.ClearCurrentSection(r.Context(), netid, p.ByName("courseid")); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

func (s Server) userContactHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		var body struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "failed to decode request body", http.StatusBadRequest)
			return
		}

		if err := s.repo.UpdateUserContact(r.Context(), netid, body.Email, body.Phone); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

func (s Server) autoResubHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "failed to decode request body", http.StatusBadRequest)
			return
		}

		if err := s.repo.SetAutoResub(r.Context(), netid, body.Enabled); err != nil {
			s.writeResult(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

func (s Server) activityHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		netid, ok := s.identity(w, r)
		if !ok {
			return
		}

		kind := seatsnatch.LogKind(p.ByName("kind"))
		if kind != seatsnatch.WaitlistLog && kind != seatsnatch.TradeLog {
			http.Error(w, "unknown activity log", http.StatusBadRequest)
			return
		}

		entries, err := s.repo.Activity(r.Context(), netid, kind)
		if err != nil {
			s.log.Error().Err(err).Str("netid", netid).Msg("failed to read activity")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []string{}
		}
		s.writeJSON(w, http.StatusOK, dataResponse{Data: entries})
	}
}

// triggerHandler sweeps every waited section. Meant for a cron job, so it
// reports a plain success boolean rather than per-section detail.
func (s Server) triggerHandler() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := s.monitor.Sweep(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("sweep failed")
			s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: false, Message: "sweep failed"})
			return
		}
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: true})
	}
}

// identity resolves the caller and creates their user record on first
// sight. A false return means the response has already been written.
func (s Server) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	netid, err := s.auth.Identify(r.Context(), r.Header.Get("X-Remote-User"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}

	if err := s.repo.CreateUser(r.Context(), netid); err != nil {
		s.log.Error().Err(err).Str("netid", netid).Msg("failed to ensure user record")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return "", false
	}
	return netid, true
}

// writeResult maps an engine error onto the wire. Business-rule failures
// and missing records are normal outcomes; anything else is a 500.
func (s Server) writeResult(w http.ResponseWriter, err error) {
	if seatsnatch.IsValidation(err) || errors.Is(err, seatsnatch.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, resultResponse{IsSuccess: false, Message: err.Error()})
		return
	}

	s.log.Error().Err(err).Msg("request failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
