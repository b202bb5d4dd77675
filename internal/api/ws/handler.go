// Package ws streams committed match index changes to WebSocket clients.
//
// Each connection receives a "system" frame on connect, then one
// "index_event" frame per committed write, optionally filtered by the rfp
// and op query parameters. Clients may send {"type":"ping"} and receive
// {"type":"pong"}. Events for a client that stops reading are dropped once
// its subscription buffer is full.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// Subscriber hands out event subscriptions
type Subscriber interface {
	Subscribe() (<-chan types.IndexEvent, func())
}

// ConnectionRecorder tracks live connections
type ConnectionRecorder interface {
	IncWSConnections()
	DecWSConnections()
}

// Message is a frame exchanged with clients
type Message struct {
	Type    string            `json:"type"`
	Message string            `json:"message,omitempty"`
	Event   *types.IndexEvent `json:"event,omitempty"`
	Time    int64             `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler manages WebSocket connections
type Handler struct {
	events Subscriber
	rec    ConnectionRecorder
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler. rec and logger may be nil.
func NewHandler(events Subscriber, rec ConnectionRecorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{events: events, rec: rec, logger: logger}
}

// HandleConnection upgrades the request and streams events until either
// side goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	filter := newFilter(c.Query("rfp"), c.Query("op"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.rec != nil {
		h.rec.IncWSConnections()
		defer h.rec.DecWSConnections()
	}

	events, cancel := h.events.Subscribe()
	defer cancel()

	s := &stream{conn: conn}
	if err := s.send(Message{Type: "system", Message: "subscribed to index events"}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readLoop(s, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				s.close("registry shutting down")
				return
			}
			if !filter.match(event) {
				continue
			}
			if err := s.send(Message{Type: "index_event", Event: &event}); err != nil {
				h.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(s *stream, done chan<- struct{}) {
	defer close(done)

	s.conn.SetReadLimit(maxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			err := s.send(Message{Type: "pong"})
			if err != nil {
				return
			}
		default:
			if err := s.send(Message{Type: "error", Message: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// stream serializes writes; gorilla connections allow one concurrent writer.
type stream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *stream) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.Time = time.Now().Unix()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *stream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *stream) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
		time.Now().Add(writeWait))
}

type filter struct {
	rfp string
	op  types.IndexOp
}

func newFilter(rfp, op string) filter {
	return filter{rfp: rfp, op: types.IndexOp(op)}
}

func (f filter) match(e types.IndexEvent) bool {
	if f.op != "" && e.Op != f.op {
		return false
	}
	if f.rfp != "" && e.RFP != f.rfp {
		return false
	}
	return true
}
