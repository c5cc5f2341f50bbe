package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/conversation"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

const (
	historyLimit = 50
	turnTimeout  = 45 * time.Second
)

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type           string `json:"type"` // "message", "ping"
	Text           string `json:"text"`
	PatientPhone   string `json:"patient_phone,omitempty"`
	PatientEmail   string `json:"patient_email,omitempty"`
	PatientName    string `json:"patient_name,omitempty"`
	SelectedSlotID string `json:"selected_slot_id,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type           string                    `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text           string                    `json:"text,omitempty"`
	Role           string                    `json:"role,omitempty"`
	ConversationID string                    `json:"conversation_id,omitempty"`
	Timestamp      string                    `json:"timestamp,omitempty"`
	Intent         string                    `json:"intent,omitempty"`
	Providers      []providers.Provider      `json:"providers,omitempty"`
	Slots          []conversation.SlotOption `json:"slots,omitempty"`
	UrgentCaseID   string                    `json:"urgent_case_id,omitempty"`
	Messages       []HistoryMessage          `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Handler serves the chat widget over a websocket. Each connection is one
// conversation; reconnecting with ?conversation= resumes it.
type Handler struct {
	engine  conversation.TurnHandler
	history conversation.HistoryReader
	logger  *logging.Logger

	mu       sync.Mutex
	sessions map[string]int
}

// NewHandler creates a web chat handler. history may be nil.
func NewHandler(engine conversation.TurnHandler, history conversation.HistoryReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:   engine,
		history:  history,
		logger:   logger,
		sessions: make(map[string]int),
	}
}

// generateConversationID creates a random conversation identifier.
func generateConversationID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

// ServeHTTP upgrades to WebSocket and relays turns to the engine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

// ActiveSessions reports how many conversations have an open socket.
func (h *Handler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) track(convID string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[convID] += delta
	if h.sessions[convID] <= 0 {
		delete(h.sessions, convID)
	}
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	convID := strings.TrimSpace(r.URL.Query().Get("conversation"))
	if convID == "" {
		convID = generateConversationID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})
	h.sendHistory(ctx, conn, convID)

	h.track(convID, 1)
	defer h.track(convID, -1)
	h.logger.Info("webchat: connection opened", "conversation_id", convID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "conversation_id", convID, "error", err)
			return
		}

		switch {
		case msg.Type == "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		case msg.Type != "message":
			continue
		case strings.TrimSpace(msg.Text) == "" && msg.SelectedSlotID == "":
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})
		if err := websocket.JSON.Send(conn, h.reply(ctx, convID, msg)); err != nil {
			h.logger.Warn("webchat: failed to send reply", "conversation_id", convID, "error", err)
			return
		}
	}
}

// reply runs one turn and renders the engine response for the widget.
func (h *Handler) reply(ctx context.Context, convID string, msg InboundMessage) OutboundMessage {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	resp, err := h.engine.HandleTurn(ctx, conversation.Turn{
		ConversationID: convID,
		Message:        msg.Text,
		PatientPhone:   msg.PatientPhone,
		PatientEmail:   msg.PatientEmail,
		PatientName:    msg.PatientName,
		SelectedSlotID: msg.SelectedSlotID,
	})
	if err != nil {
		h.logger.Error("webchat: turn failed", "conversation_id", convID, "error", err)
		return OutboundMessage{Type: "error", Text: "Sorry, something went wrong. Please try again."}
	}
	return OutboundMessage{
		Type:           "message",
		Role:           "assistant",
		Text:           resp.Reply,
		ConversationID: resp.ConversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Intent:         string(resp.Intent),
		Providers:      resp.SuggestedProviders,
		Slots:          resp.SuggestedSlots,
		UrgentCaseID:   resp.UrgentCaseID,
	}
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, convID string) {
	if h.history == nil {
		return
	}
	msgs, err := h.history.History(ctx, convID, nil, historyLimit)
	if err != nil {
		h.logger.Warn("webchat: failed to load history", "conversation_id", convID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
}
