package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/scribehook/api/internal/model"
)

const (
	sendBuffer   = 16
	pingInterval = 30 * time.Second
)

// Client is one subscriber waiting on a request id
type Client struct {
	RequestID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// BroadcastMessage is a payload addressed to every subscriber of a request
type BroadcastMessage struct {
	RequestID string
	Message   []byte
}

// Hub fans out terminal job notifications to websocket subscribers.
// All subscriber bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	reply      chan directMessage
	count      chan countRequest
	done       chan struct{}
	log        zerolog.Logger
}

// directMessage targets a single client
type directMessage struct {
	client *Client
	data   []byte
}

type countRequest struct {
	requestID string
	resp      chan int
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		reply:      make(chan directMessage, 16),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run processes hub events until ctx is cancelled, then closes every
// subscriber's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case client := <-h.register:
			if h.clients[client.RequestID] == nil {
				h.clients[client.RequestID] = make(map[*Client]bool)
			}
			h.clients[client.RequestID][client] = true
			h.log.Debug().Str("request_id", client.RequestID).Msg("subscriber registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug().Str("request_id", client.RequestID).Msg("subscriber unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.RequestID] {
				h.deliver(client, msg.Message)
			}

		case msg := <-h.reply:
			if h.clients[msg.client.RequestID][msg.client] {
				h.deliver(msg.client, msg.data)
			}

		case req := <-h.count:
			req.resp <- len(h.clients[req.requestID])
		}
	}
}

// deliver drops subscribers whose buffer is full.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.RequestID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.RequestID)
	}
}

// Register, Unregister and Subscribers return immediately once Run has
// stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns how many clients wait on requestID.
func (h *Hub) Subscribers(requestID string) int {
	resp := make(chan int, 1)
	select {
	case h.count <- countRequest{requestID: requestID, resp: resp}:
		return <-resp
	case <-h.done:
		return 0
	}
}

func (h *Hub) sendDirect(client *Client, data []byte) {
	select {
	case h.reply <- directMessage{client: client, data: data}:
	case <-h.done:
	}
}

// NotifyStatus pushes the job's terminal snapshot to its subscribers.
// Non-terminal jobs are ignored.
func (h *Hub) NotifyStatus(job *model.Job) {
	data, ok := h.encodeStatus(job)
	if !ok {
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{RequestID: job.ID, Message: data}:
	default:
		h.log.Warn().Str("request_id", job.ID).Msg("broadcast queue full, notification dropped")
	}
}

func (h *Hub) encodeStatus(job *model.Job) ([]byte, bool) {
	var msgType string
	switch job.Status {
	case model.JobStatusCompleted:
		msgType = model.WSMessageTypeComplete
	case model.JobStatusFailed:
		msgType = model.WSMessageTypeFailed
	default:
		return nil, false
	}

	data, err := json.Marshal(model.WSStatusMessage{
		Type:      msgType,
		RequestID: job.ID,
		Status:    model.NewStatusResponse(job),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal status message")
		return nil, false
	}
	return data, true
}

// HandleConnection serves one subscriber of requestID. lookup is called
// after the client is registered so a completion that lands in between is
// still delivered; if the job is already terminal its snapshot is sent
// right away.
func (h *Hub) HandleConnection(c *websocket.Conn, requestID string, lookup func() (*model.Job, error)) {
	client := &Client{
		RequestID: requestID,
		Conn:      c,
		Send:      make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	if job, err := lookup(); err == nil {
		if data, ok := h.encodeStatus(job); ok {
			h.sendDirect(client, data)
		}
	}

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("request_id", requestID).Msg("websocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.sendDirect(client, pong)
		}
	}
}
