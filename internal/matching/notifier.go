package matching

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Configure origin checking in production
		return true
	},
}

// Hub is the best-effort push surface for match events. Delivery is not a
// transactional guarantee: a slow or absent client just misses the push and
// sees the match on the next suggestions load.
type Hub struct {
	clients    map[int64]*Client
	broadcast  chan PushMessage
	register   chan *Client
	unregister chan *Client
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan PushMessage
	userID int64
}

type PushMessage struct {
	Type   string      `json:"type"`
	UserID int64       `json:"user_id"`
	Data   interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		broadcast:  make(chan PushMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client.userID] = client
			log.Printf("matching: user %d connected for match pushes", client.userID)

		case client := <-h.unregister:
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
				log.Printf("matching: user %d disconnected", client.userID)
			}

		case message := <-h.broadcast:
			if client, ok := h.clients[message.UserID]; ok {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client.userID)
				}
			}
		}
	}
}

// NotifyHotMatch pushes a freshly discovered hot match to the user, if
// connected. Non-blocking: an idle hub drops the event.
func (h *Hub) NotifyHotMatch(userID int64, match MatchResult) {
	message := PushMessage{
		Type:   "hot_match",
		UserID: userID,
		Data:   match,
	}
	select {
	case h.broadcast <- message:
	default:
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Set by the auth middleware
	userID := r.Context().Value("userID").(int64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan PushMessage, 256),
		userID: userID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
