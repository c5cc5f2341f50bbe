package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// TurnHandler resolves a single turn. *Engine satisfies it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in Turn) (Response, error)
}

// HistoryReader lists stored transcript messages.
type HistoryReader interface {
	History(ctx context.Context, conversationID string, roles []string, limit int) ([]MessageRecord, error)
}

// Handler wires HTTP requests to the dialogue engine.
type Handler struct {
	engine  TurnHandler
	history HistoryReader
	logger  *logging.Logger
}

// NewHandler creates a chat handler. history may be nil, in which case the
// history endpoint answers 404.
func NewHandler(engine TurnHandler, history HistoryReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, history: history, logger: logger}
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req Turn
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.SelectedSlotID == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	resp, err := h.engine.HandleTurn(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process turn", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/chat/{conversationID}/history?role=&limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "history is not enabled", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "conversationID")
	if id == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	roles := r.URL.Query()["role"]

	msgs, err := h.history.History(r.Context(), id, roles, limit)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "conversation_id", id)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []MessageRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": msgs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
