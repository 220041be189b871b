package adapthttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"weighttracker/internal/domain"
)

// weightInput is one measurement as submitted by a client. Unit defaults to
// pounds; kilograms are converted before validation.
type weightInput struct {
	Date   string   `json:"date"`
	Weight float64  `json:"weight"`
	Goal   *float64 `json:"goal,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

func (in weightInput) measurement(userID int64) (domain.Measurement, error) {
	weight, err := domain.ToPounds(in.Weight, in.Unit)
	if err != nil {
		return domain.Measurement{}, err
	}
	m := domain.Measurement{UserID: userID, Date: in.Date, Weight: weight}
	if in.Goal != nil {
		goal, err := domain.ToPounds(*in.Goal, in.Unit)
		if err != nil {
			return domain.Measurement{}, err
		}
		m.Goal = &goal
	}
	return m, nil
}

// entryView is a measurement with its goal progress, when it has a goal.
type entryView struct {
	domain.Measurement
	Progress *domain.Progress `json:"progress,omitempty"`
}

func entryViews(ms []domain.Measurement) []entryView {
	out := make([]entryView, len(ms))
	for i, m := range ms {
		out[i] = entryView{Measurement: m}
		if m.Goal != nil {
			p := domain.GoalProgress(m.Weight, *m.Goal)
			out[i].Progress = &p
		}
	}
	return out
}

func (s *Server) handleWeightsList(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	view, err := s.tracker.WeightsForUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":       entryViews(view.Entries),
		"movingAverage": view.MovingAverage,
		"window":        view.Window,
	})
}

func (s *Server) handleWeightAdd(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var body weightInput
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := body.measurement(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	id, err := s.tracker.InsertWeight(r.Context(), m)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleWeightBatch(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var body struct {
		Entries []weightInput `json:"entries"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batch := make([]domain.Measurement, 0, len(body.Entries))
	for _, in := range body.Entries {
		m, err := in.measurement(user.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		batch = append(batch, m)
	}

	if err := s.tracker.InsertWeights(r.Context(), user.ID, batch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"count": len(batch)})
}

func (s *Server) handleWeightByDate(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	m, ok, err := s.tracker.FindByDate(r.Context(), user.ID, chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no measurement on that date"))
		return
	}
	writeJSON(w, http.StatusOK, entryViews([]domain.Measurement{m})[0])
}

func (s *Server) handleWeightDelete(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return
	}

	deleted, err := s.tracker.RemoveWeight(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("measurement not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": true})
}

func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	deleted, err := s.tracker.DeleteUserAndWeights(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}
