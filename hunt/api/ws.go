// hunt/api/ws.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/cryptichunt/go-services/hunt/hub"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Clients only ever send small
	// control messages.
	maxMessageSize = 512
)

// MessageTypeGetLeaderboard is the only client-to-server message: an explicit
// snapshot request.
const MessageTypeGetLeaderboard = "GET_LEADERBOARD"

// SubscriptionHub is the part of the broadcast hub the socket handler needs.
type SubscriptionHub interface {
	Subscribe(ctx context.Context) (*hub.Subscriber, error)
	Unsubscribe(id string)
	RequestSnapshot(ctx context.Context, subscriberID string) error
}

// clientMessage is the wire shape of client-to-server control messages.
type clientMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS policy is handled at the HTTP middleware layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleLeaderboardSocket upgrades the connection and bridges it to the
// broadcast hub: the write pump drains the subscriber's send channel, the
// read pump consumes control messages and pong frames.
// GET /hunt/leaderboard/live
func (hah *HuntAPIHandlers) HandleLeaderboardSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("Error upgrading leaderboard socket: %v", err)
		return
	}

	sub, err := hah.Hub.Subscribe(r.Context())
	if err != nil {
		log.Printf("Error subscribing leaderboard socket: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go hah.writePump(conn, sub)
	go hah.readPump(conn, sub)
}

// writePump pumps messages from the hub to the websocket connection. It owns
// all writes on the connection, including pings. It exits when the hub closes
// the subscriber's channel or a write fails.
func (hah *HuntAPIHandlers) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped this subscriber.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control messages from the websocket connection and keeps
// the read deadline fed from pongs. It unsubscribes on exit, which closes the
// send channel and in turn stops the write pump.
func (hah *HuntAPIHandlers) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		hah.Hub.Unsubscribe(sub.ID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARNING: Leaderboard socket %s closed unexpectedly: %v", sub.ID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("WARNING: Leaderboard socket %s sent malformed message, ignoring.", sub.ID)
			continue
		}

		switch msg.Type {
		case MessageTypeGetLeaderboard:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := hah.Hub.RequestSnapshot(ctx, sub.ID); err != nil {
				log.Printf("Error serving snapshot request for socket %s: %v", sub.ID, err)
			}
			cancel()
		default:
			log.Printf("WARNING: Leaderboard socket %s sent unknown message type %q, ignoring.", sub.ID, msg.Type)
		}
	}
}
