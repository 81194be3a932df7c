package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medius/internal/chat"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

type draftRequest struct {
	Draft string `json:"draft"`
}

// loadErrorResponse carries the last cached view of the deal next to the
// failure so the UI can offer retry while showing stale data.
type loadErrorResponse struct {
	Error  string         `json:"error"`
	Cached *chat.Snapshot `json:"cached,omitempty"`
}

// SessionCtx resolves the mounted session of {dealID}.
func SessionCtx(sessions *chat.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessions.Get(chi.URLParam(r, "dealID"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "deal session not mounted"})
				return
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(r *http.Request) *chat.Session {
	s, _ := r.Context().Value(sessionContextKey).(*chat.Session)
	return s
}

// @Summary      Mount a deal session
// @Description  Load the deal and its history and open the realtime channel
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      200  {object}  chat.Snapshot
// @Failure      404  {object}  loadErrorResponse
// @Failure      502  {object}  loadErrorResponse
// @Router       /deals/{dealID}/session [post]
func handleMountSession(sessions *chat.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Open(r.Context(), chi.URLParam(r, "dealID"))
		if err != nil {
			var loadErr *chat.LoadError
			if errors.As(err, &loadErr) {
				writeJSON(w, statusFor(loadErr.Err), loadErrorResponse{Error: loadErr.Message(), Cached: loadErr.Cached})
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

// @Summary      Unmount a deal session
// @Tags         sessions
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /deals/{dealID}/session [delete]
func handleUnmountSession(sessions *chat.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessions.Close(chi.URLParam(r, "dealID")) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "deal session not mounted"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Reconnect the realtime channel
// @Tags         sessions
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      202
// @Failure      404  {object}  map[string]string
// @Router       /deals/{dealID}/session/reconnect [post]
func handleReconnect(sessions *chat.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessions.Reconnect(chi.URLParam(r, "dealID")) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "deal session not mounted"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// @Summary      Session snapshot
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      200  {object}  chat.Snapshot
// @Failure      404  {object}  map[string]string
// @Router       /deals/{dealID}/session [get]
func handleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).Snapshot())
	}
}

// handleSendMessage queues the message on the realtime channel. The thread
// holds a pending entry until the server echoes it back.
// @Summary      Send a chat message
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Param        input body sendMessageRequest true "Message"
// @Success      202  {object}  chat.Snapshot
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /deals/{dealID}/messages [post]
func handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		s := sessionFrom(r)
		if err := s.SendText(r.Context(), req.Message); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.Snapshot())
	}
}

// @Summary      Save the composer draft
// @Tags         sessions
// @Accept       json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Param        input body draftRequest true "Draft"
// @Success      204
// @Router       /deals/{dealID}/draft [put]
func handleSetDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req draftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := sessionFrom(r).SetDraft(r.Context(), req.Draft); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Resolve a secure attachment link
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Param        key query string true "File key"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Router       /deals/{dealID}/files/link [get]
func handleFileLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
			return
		}
		link, err := sessionFrom(r).OpenAttachment(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": link})
	}
}

// @Summary      Release escrowed funds
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      200  {object}  map[string]domain.Deal
// @Failure      409  {object}  map[string]string
// @Router       /deals/{dealID}/release [post]
func handleRelease() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.ReleaseFunds(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deal": s.Deal()})
	}
}

// @Summary      Request or confirm cancellation
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      200  {object}  map[string]domain.Deal
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /deals/{dealID}/cancel [post]
func handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := s.RequestCancel(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deal": s.Deal()})
	}
}

// @Summary      Dismiss the error banner
// @Tags         sessions
// @Security     BearerAuth
// @Param        dealID path string true "Deal ID"
// @Success      204
// @Router       /deals/{dealID}/banner/dismiss [post]
func handleDismissBanner() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionFrom(r).Dismiss()
		w.WriteHeader(http.StatusNoContent)
	}
}
