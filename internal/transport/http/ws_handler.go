package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telegram-quiz-bot/internal/domain"
)

// Subscriber exposes leaderboard streams from the quiz core.
type Subscriber interface {
	Subscribe(chatID int64) (<-chan domain.Leaderboard, func(), error)
}

// WSHandler streams live leaderboard updates for a chat over a websocket.
// The feed is read-only: answers arrive via Telegram, spectators only watch.
type WSHandler struct {
	quiz     Subscriber
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz Subscriber, log *zap.Logger) *WSHandler {
	return &WSHandler{
		quiz: quiz,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams leaderboard snapshots until the
// client disconnects or unsubscribes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid chatId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel, err := h.quiz.Subscribe(chatID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: lb}); err != nil {
				h.log.Warn("ws write failed", zap.Int64("chat", chatID), zap.Error(err))
				return
			}
		case <-closed:
			return
		}
	}
}
