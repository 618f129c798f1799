package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/anchor/internal/intake"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/storage"
)

type intakeResponse struct {
	Questions   question.Bank  `json:"questions"`
	Answers     map[string]any `json:"answers"`
	ResumeIndex int            `json:"resume_index"`
}

func handleListIntake(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		bank, ok := loadBank(w, r, deps)
		if !ok {
			return
		}
		answers, err := deps.Intake.Answers(u.ID, bank)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		if bank == nil {
			bank = question.Bank{}
		}
		writeJSON(w, http.StatusOK, intakeResponse{
			Questions:   bank,
			Answers:     answers,
			ResumeIndex: intake.FirstUnanswered(bank, answers),
		})
	}
}

type saveIntakeRequest struct {
	Value any `json:"value"`
}

func handleSaveIntake(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req saveIntakeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		bank, ok := loadBank(w, r, deps)
		if !ok {
			return
		}

		id := chi.URLParam(r, "questionID")
		q, found := findQuestion(bank, id)
		if !found {
			httpError(w, http.StatusNotFound, "not_found_error", "question %q not found", id)
			return
		}

		err := deps.Intake.Save(u.ID, q, req.Value)
		if errors.Is(err, intake.ErrInvalidAnswer) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSkipIntake(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "questionID")
		err := deps.Intake.Skip(u.ID, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no answer to question %q", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// loadBank returns the current bank. An unavailable bank is reported as
// empty rather than as an error.
func loadBank(w http.ResponseWriter, r *http.Request, deps Deps) (question.Bank, bool) {
	bank, err := deps.Loader.Bank(r.Context())
	if err != nil && !errors.Is(err, question.ErrLoad) {
		httpError(w, http.StatusInternalServerError, "api_error", "loading questions: %v", err)
		return nil, false
	}
	return bank, true
}

func findQuestion(bank question.Bank, id string) (question.Record, bool) {
	if id == "" {
		return question.Record{}, false
	}
	for _, q := range bank {
		if q.ID == id {
			return q, true
		}
	}
	return question.Record{}, false
}
