package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/anchor/internal/chat"
	"github.com/kalambet/anchor/internal/scoring"
	"github.com/kalambet/anchor/internal/session"
	"github.com/kalambet/anchor/internal/storage"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req sendMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		reply, err := deps.Sessions.Send(r.Context(), u.ID, req.Content)
		if err != nil {
			slog.Error("opening chat session failed", "user_id", u.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not open chat session")
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

type transcriptResponse struct {
	Messages []chat.Turn     `json:"messages"`
	Status   session.Status `json:"status"`
}

func handleTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		turns, err := deps.Sessions.Transcript(r.Context(), u.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "could not open chat session")
			return
		}
		st, err := deps.Sessions.Status(r.Context(), u.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "could not open chat session")
			return
		}
		if turns == nil {
			turns = []chat.Turn{}
		}
		writeJSON(w, http.StatusOK, transcriptResponse{Messages: turns, Status: st})
	}
}

func handleResetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		if err := deps.Sessions.Reset(r.Context(), u.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resetting session: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type priorityAreasResponse struct {
	Areas     []scoring.PriorityArea `json:"priority_areas"`
	Chart     []scoring.Point        `json:"chart"`
	CreatedAt time.Time              `json:"created_at"`
}

func handlePriorityAreas(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		snap, err := deps.Store.LatestSnapshot(u.ID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no priority areas yet")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading priority areas: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, priorityAreasResponse{
			Areas:     snap.Areas,
			Chart:     scoring.Layout(snap.Areas, scoring.DefaultGeometry),
			CreatedAt: snap.CreatedAt,
		})
	}
}
