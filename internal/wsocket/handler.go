package wsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"vidscribe_go_backend/internal/broker"
	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"

	"github.com/gorilla/websocket"
)

// Handler pushes credit balance updates to connected clients. Updates
// arrive two ways: broker events published whenever the ledger moves
// money, and a periodic snapshot from the database so a missed event
// never leaves the client stale forever.
type Handler struct {
	ledger           services.Ledger
	upgrader         websocket.Upgrader
	snapshotInterval time.Duration
}

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// connWriter serializes writes to one connection. The push goroutine and
// the read loop both reply on the same connection, and gorilla/websocket
// allows only one concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func NewHandler(ledger services.Ledger, upgrader websocket.Upgrader, snapshotInterval time.Duration) *Handler {
	return &Handler{
		ledger:           ledger,
		upgrader:         upgrader,
		snapshotInterval: snapshotInterval,
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user interface{}, messageBroker *broker.Broker) {
	userModel, ok := user.(*models.User)
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}
	defer conn.Close()
	out := &connWriter{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ticker := time.NewTicker(h.snapshotInterval)
	defer ticker.Stop()

	userID := userModel.ID.String()
	creditUpdateChan := messageBroker.Subscribe("credit_update_" + userID)
	defer messageBroker.Unsubscribe("credit_update_"+userID, creditUpdateChan)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-creditUpdateChan:
				if err := out.writeJSON(Message{
					Type:    "credit_update",
					Content: msg.(string),
				}); err != nil {
					log.Printf("Error sending credit update: %v", err)
					return
				}
			case <-ticker.C:
				if err := h.sendBalance(ctx, out, userModel); err != nil {
					log.Printf("Error sending balance snapshot: %v", err)
					return
				}
			}
		}
	}()

	// Send an initial snapshot so the client does not wait a full
	// ticker interval for its first balance.
	if err := h.sendBalance(ctx, out, userModel); err != nil {
		log.Printf("Error sending initial balance: %v", err)
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		switch msg.Type {
		case "get_balance":
			if err := h.sendBalance(ctx, out, userModel); err != nil {
				log.Printf("Error sending requested balance: %v", err)
				return
			}
		case "ping":
			out.writeJSON(Message{Type: "pong"})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
		}
	}
}

func (h *Handler) sendBalance(ctx context.Context, out *connWriter, user *models.User) error {
	balance, err := h.ledger.Balance(ctx, user.ID)
	if err != nil {
		return out.writeJSON(Message{Type: "error", Content: "Failed to get credit balance"})
	}
	return out.writeJSON(Message{
		Type:    "credit_update",
		Content: fmt.Sprintf("%.2f", balance),
	})
}
