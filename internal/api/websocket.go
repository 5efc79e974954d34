package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"rankscan/internal/eventbus"

	"github.com/gorilla/websocket"
)

// jobsHub fans backfill progress events out to websocket clients.
type jobsHub struct {
	bus        *eventbus.Bus
	clients    map[*jobsClient]bool
	broadcast  chan []byte
	register   chan *jobsClient
	unregister chan *jobsClient
	mutex      sync.Mutex
	started    sync.Once
}

type jobsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newJobsHub(bus *eventbus.Bus) *jobsHub {
	return &jobsHub{
		bus:        bus,
		clients:    make(map[*jobsClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *jobsClient),
		unregister: make(chan *jobsClient),
	}
}

// start subscribes the hub to the event bus and begins the fan-out
// loop. Safe to call more than once.
func (h *jobsHub) start() {
	h.started.Do(func() {
		if h.bus != nil {
			events := make(chan eventbus.Event, 64)
			h.bus.Subscribe(eventbus.TypeJobProgress, events)
			h.bus.Subscribe(eventbus.TypeJobFinished, events)
			go func() {
				for evt := range events {
					msg := wsJobMessage{
						Type:      evt.Type,
						JobID:     evt.JobID,
						Timestamp: evt.Timestamp,
						Payload:   evt.Data,
					}
					data, err := json.Marshal(msg)
					if err != nil {
						continue
					}
					h.broadcast <- data
				}
			}()
		}
		go h.run()
	})
}

func (h *jobsHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

type wsJobMessage struct {
	Type      string      `json:"type"`
	JobID     string      `json:"job_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleJobsWebSocket streams job progress events to the client until
// it disconnects.
func (s *Server) handleJobsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := &jobsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	go func() {
		defer func() {
			s.hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
