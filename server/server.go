package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	cfgPkg "github.com/hmle/talkdocs/pkg/config"
	"github.com/hmle/talkdocs/pkg/system"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is one frame of the WebSocket protocol, both directions.
type Message struct {
	Type    string          `json:"type"`
	Owner   string          `json:"owner,omitempty"`
	Content string          `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type uploadPayload struct {
	Name    string `json:"name"`
	Content string `json:"content"` // base64 raw bytes
}

type WSServer struct {
	sys *system.System
}

func NewWSServer(sys *system.System) *WSServer {
	return &WSServer{sys: sys}
}

// conn serializes writes; gorilla/websocket allows one writer at a time.
// It also carries the per-connection chat history.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn

	histMu  sync.Mutex
	history map[string][]models.ChatMessage
}

func (c *conn) ownerHistory(owner string) []models.ChatMessage {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	return append([]models.ChatMessage(nil), c.history[owner]...)
}

func (c *conn) setOwnerHistory(owner string, messages []models.ChatMessage) {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	c.history[owner] = messages
}

func (c *conn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	// Cancelled when the read loop sees the client go away, which stops
	// any in-flight stream promptly.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws, history: make(map[string][]models.ChatMessage)}

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			return
		}
		go s.handleMessage(ctx, c, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, msg Message) {
	if msg.Owner == "" {
		c.send(Message{Type: "error", Content: "owner is required"})
		return
	}

	switch msg.Type {
	case "chat":
		s.handleChat(ctx, c, msg)
	case "upload":
		s.handleUpload(ctx, c, msg)
	case "list":
		s.handleList(ctx, c, msg)
	case "delete":
		s.handleDelete(ctx, c, msg)
	default:
		c.send(Message{Type: "error", Content: "unknown message type: " + msg.Type})
	}
}

func (s *WSServer) handleChat(ctx context.Context, c *conn, msg Message) {
	messages := append(c.ownerHistory(msg.Owner), models.ChatMessage{
		Role:    models.RoleUser,
		Content: msg.Content,
	})

	stream, err := s.sys.StreamChat(ctx, msg.Owner, messages)
	if err != nil {
		c.send(Message{Type: "error", Content: statusFor(err)})
		return
	}

	var reply []byte
	for fragment := range stream {
		reply = append(reply, fragment...)
		c.send(Message{Type: "stream", Content: fragment})
	}
	c.send(Message{Type: "done"})

	c.setOwnerHistory(msg.Owner, append(messages, models.ChatMessage{
		Role:    models.RoleAssistant,
		Content: string(reply),
	}))
}

func (s *WSServer) handleUpload(ctx context.Context, c *conn, msg Message) {
	var payload uploadPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Name == "" {
		c.send(Message{Type: "error", Content: "upload requires a name and base64 content"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(payload.Content)
	if err != nil {
		c.send(Message{Type: "error", Content: "upload content is not valid base64"})
		return
	}

	doc, err := s.sys.Ingest(ctx, msg.Owner, payload.Name, raw)
	if err != nil {
		c.send(Message{Type: "error", Content: statusFor(err)})
		return
	}

	data, _ := json.Marshal(doc)
	c.send(Message{Type: "uploaded", Content: doc.ID, Data: data})
}

func (s *WSServer) handleList(ctx context.Context, c *conn, msg Message) {
	docs, err := s.sys.Documents(ctx, msg.Owner)
	if err != nil {
		c.send(Message{Type: "error", Content: statusFor(err)})
		return
	}
	data, _ := json.Marshal(docs)
	c.send(Message{Type: "documents", Data: data})
}

func (s *WSServer) handleDelete(ctx context.Context, c *conn, msg Message) {
	if err := s.sys.RemoveDocument(ctx, msg.Content); err != nil {
		c.send(Message{Type: "error", Content: statusFor(err)})
		return
	}
	c.send(Message{Type: "deleted", Content: msg.Content})
}

// statusFor maps core errors to client-facing text without leaking
// internals for non-client failures.
func statusFor(err error) string {
	switch {
	case errors.Is(err, types.ErrValidation):
		return err.Error()
	case errors.Is(err, types.ErrUpstream):
		return "the language model service is unavailable, try again later"
	case errors.Is(err, types.ErrConsistency):
		return "internal index inconsistency, the request was aborted"
	default:
		return "internal error"
	}
}

func Run() {
	godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	sys, err := system.FromConfig(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer sys.Close()

	if err := sys.Restore(context.Background()); err != nil {
		log.Fatalf("failed to restore index registry: %v", err)
	}

	server := NewWSServer(sys)

	http.HandleFunc("/ws", server.handleWebSocket)
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting WebSocket server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
