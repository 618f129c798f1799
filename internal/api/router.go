package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/anchor/internal/identity"
	"github.com/kalambet/anchor/internal/intake"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/session"
	"github.com/kalambet/anchor/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP and MCP surfaces need.
type Deps struct {
	Store    *storage.Store
	Issuer   *identity.Issuer
	Sessions *session.Registry
	Loader   *question.CachedLoader
	Intake   *intake.Service
}

// NewHandler returns the anchor REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser(deps.Issuer))

		r.Post("/chat/messages", handleSendMessage(deps))
		r.Get("/chat/messages", handleTranscript(deps))
		r.Delete("/chat/session", handleResetSession(deps))
		r.Get("/priority-areas", handlePriorityAreas(deps))

		r.Get("/intake", handleListIntake(deps))
		r.Put("/intake/{questionID}", handleSaveIntake(deps))
		r.Delete("/intake/{questionID}", handleSkipIntake(deps))

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/questions", handleListQuestions(deps))
			r.Put("/questions", handleReplaceQuestions(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func currentUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	u, err := identity.UserFromContext(r.Context())
	if err != nil {
		httpError(w, http.StatusUnauthorized, "authentication_error", "no authenticated user")
		return identity.User{}, false
	}
	return u, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
