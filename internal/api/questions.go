package api

import (
	"log/slog"
	"net/http"

	"github.com/kalambet/anchor/internal/question"
)

func handleListQuestions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Store.ListQuestions()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing questions: %v", err)
			return
		}
		if records == nil {
			records = []question.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleReplaceQuestions swaps the whole bank. Sessions open against the old
// bank are dropped so the next turn starts against the new one.
func handleReplaceQuestions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []question.Record
		if !decodeBody(w, r, &records) {
			return
		}
		seen := make(map[string]bool, len(records))
		for i, rec := range records {
			if rec.ID == "" {
				continue
			}
			if seen[rec.ID] {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "duplicate question id %q at position %d", rec.ID, i)
				return
			}
			seen[rec.ID] = true
		}

		if err := deps.Store.ReplaceQuestions(records); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving questions: %v", err)
			return
		}
		deps.Loader.Invalidate()
		deps.Sessions.DropAll()

		slog.Info("question bank replaced", "count", len(records))
		writeJSON(w, http.StatusOK, map[string]int{"count": len(records)})
	}
}
