package httpserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Stream message types.
const (
	MessageEntries  = "entries"
	MessageMetadata = "metadata"
	MessageCleared  = "cleared"
)

// StreamMessage is one frame on /api/stream.
type StreamMessage struct {
	Type     string          `json:"type"`
	Entries  []model.Entry   `json:"entries,omitempty"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(*http.Request) bool { return true },
}

// streamClient is an engine observer bound to one websocket connection.
// Entry batches are narrowed by the active filter at delivery time.
type streamClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan StreamMessage
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

func (c *streamClient) push(msg StreamMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *streamClient) OnEntries(batch []model.Entry) {
	matched := c.server.backend.Filter().Apply(batch)
	if len(matched) == 0 {
		return
	}
	c.push(StreamMessage{Type: MessageEntries, Entries: matched})
}

func (c *streamClient) OnMetadataChanged(meta model.Metadata) {
	c.push(StreamMessage{Type: MessageMetadata, Metadata: &meta})
}

func (c *streamClient) OnCleared() {
	c.push(StreamMessage{Type: MessageCleared})
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &streamClient{
		server: s,
		conn:   conn,
		send:   make(chan StreamMessage, sendBuffer),
		done:   make(chan struct{}),
		log:    s.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.streams[client] = struct{}{}
	s.mu.Unlock()
	metrics.WebSocketClients.Inc()

	// The first frame is the current metadata; everything after it is live.
	sub := s.backend.SubscribeWithMetadata(client)

	go client.writePump()
	client.readPump()

	s.backend.Unsubscribe(sub)
	client.close()
	s.mu.Lock()
	delete(s.streams, client)
	s.mu.Unlock()
	metrics.WebSocketClients.Dec()
	client.log.Debug().Msg("stream closed")
}

// readPump discards client frames; it exists to service control frames
// and notice when the peer goes away.
func (c *streamClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to encode stream message")
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}
