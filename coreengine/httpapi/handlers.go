package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/forecast"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// SessionView is the body returned for a single session.
type SessionView struct {
	Session  kernel.SessionInfo   `json:"session"`
	Snapshot negotiation.Snapshot `json:"snapshot"`
}

// RoundView is the body returned by POST /rounds.
type RoundView struct {
	Session kernel.SessionInfo       `json:"session"`
	Result  *negotiation.RoundResult `json:"result"`
}

// SummaryView is the body returned by GET /summary.
type SummaryView struct {
	SessionID  string `json:"session_id"`
	Summary    string `json:"summary"`
	Confidence int    `json:"confidence"`
}

// RankingsView is the body returned by GET /rankings.
type RankingsView struct {
	SessionID string                      `json:"session_id"`
	Rankings  []negotiation.VendorRanking `json:"rankings"`
}

// ForecastView is the body returned by GET /forecast.
type ForecastView struct {
	SessionID   string  `json:"session_id"`
	CurrentRisk float64 `json:"current_risk"`
	forecast.Forecast
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.kernel.GetSystemStatus()
	status["status"] = "ok"
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var scn scenario.Scenario
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scenario body: "+err.Error())
		return
	}

	sess, err := s.kernel.CreateSession(&scn, s.oracle)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, sessionView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var filter *kernel.SessionState
	if raw := r.URL.Query().Get("state"); raw != "" {
		state := kernel.SessionState(raw)
		filter = &state
	}
	infos := s.kernel.ListSessions(filter)
	if infos == nil {
		infos = []kernel.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.kernel.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.kernel.DeleteSession(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluateRound(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.kernel.EvaluateRound(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.kernel.GetSession(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RoundView{Session: sess.Info(), Result: result})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.kernel.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	engine := sess.Engine()
	writeJSON(w, http.StatusOK, SummaryView{
		SessionID:  sess.ID(),
		Summary:    engine.ExecutiveSummary(),
		Confidence: engine.ConfidenceScore(),
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.kernel.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rankings, err := sess.Engine().VendorRankings()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RankingsView{SessionID: sess.ID(), Rankings: rankings})
}

// handleForecast projects from the current proposal risk once a round has
// run, else from the default base risk.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	sess, err := s.kernel.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	months := forecast.DefaultMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 24 {
			writeError(w, http.StatusBadRequest, "months must be an integer in [1,24]")
			return
		}
		months = n
	}

	engine := sess.Engine()
	var risk float64
	if engine.Round() > 0 {
		risk = engine.Proposal().Risk
	}
	writeJSON(w, http.StatusOK, ForecastView{
		SessionID:   sess.ID(),
		CurrentRisk: risk,
		Forecast:    forecast.Project(engine.Scenario().Constraints, risk, months),
	})
}

func sessionView(sess *kernel.Session) SessionView {
	return SessionView{Session: sess.Info(), Snapshot: sess.Engine().Snapshot()}
}

// =============================================================================
// Documents
// =============================================================================

func (s *Server) handleParseDocument(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read document: "+err.Error())
		return
	}

	doc := s.parser.Parse(r.Context(), name, string(content))
	writeJSON(w, http.StatusCreated, doc)
}
