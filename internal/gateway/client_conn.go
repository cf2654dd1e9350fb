package gateway

import (
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/config"
)

// ClientConn is the frame-level view of a socket the Client reads and writes
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// frameConn is the method set shared by gorilla and hertz-contrib websocket
// connections. Message type values are the same in both packages.
type frameConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

const (
	textMessage  = 1
	closeMessage = 8
	pingMessage  = 9
)

type connTimings struct {
	maxMsgSize    int64
	pongWait      time.Duration
	pingPeriod    time.Duration
	writeWait     time.Duration
	writeChanSize int
}

func timingsFrom(cfg config.WebSocketConfig) connTimings {
	return connTimings{
		maxMsgSize:    cfg.MaxMessageSize,
		pongWait:      cfg.PongWait,
		pingPeriod:    cfg.PingPeriod,
		writeWait:     cfg.WriteWait,
		writeChanSize: cfg.WriteChannelSize,
	}
}

// queuedConn buffers outgoing frames for a single writer goroutine, which
// also pings. A full buffer marks a slow consumer; Close flushes what is queued.
type queuedConn struct {
	conn    frameConn
	timings connTimings

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
}

func newQueuedConn(conn frameConn, t connTimings) *queuedConn {
	c := &queuedConn{
		conn:    conn,
		timings: t,
		queue:   make(chan []byte, t.writeChanSize),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(t.maxMsgSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})
	go c.writeLoop()
	return c
}

func (c *queuedConn) writeLoop() {
	ticker := time.NewTicker(c.timings.pingPeriod)
	defer func() {
		ticker.Stop()
		// a hijacked hertz conn may already be released
		if r := recover(); r != nil {
			log.Debug("socket writer stopped: %v", r)
		}
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			for frame := range c.queue {
				if c.send(textMessage, frame) != nil {
					return
				}
			}
			_ = c.send(closeMessage, []byte{})
			return
		case frame, ok := <-c.queue:
			if !ok {
				_ = c.send(closeMessage, []byte{})
				return
			}
			if err := c.send(textMessage, frame); err != nil {
				log.Debug("socket write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.send(pingMessage, nil); err != nil {
				log.Debug("socket ping failed: %v", err)
				return
			}
		}
	}
}

func (c *queuedConn) send(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timings.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *queuedConn) ReadMessage() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timings.pongWait)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteMessage queues data without blocking
func (c *queuedConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.queue <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

func (c *queuedConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}
