package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/storyroom/storyroom/internal/stats"
)

// remoteName is the fixed logical name of the single outbound connection
// to the AI process.
const remoteName = "python"

const (
	dialTimeout = 10 * time.Second
	writeWait   = 10 * time.Second
)

var ErrNotConnected = errors.New("bridge is not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler is invoked for every valid inbound turn payload. It runs on the
// bridge's read goroutine, concurrently with any in-flight Send.
type Handler func(TurnPayload)

// Bridge owns the single outbound websocket connection to the external AI
// process. Connect replaces the handle and Send reads it from multiple
// goroutines, so both go through the mutex.
type Bridge struct {
	log     *log.Logger
	url     string
	dialer  *websocket.Dialer
	handler Handler
	stats   stats.StatsProvider

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
}

func NewBridge(url string, sp stats.StatsProvider, logger *log.Logger) *Bridge {
	sp.RegisterMetric("BridgeMessagesSent")
	sp.RegisterMetric("BridgeMessagesReceived")
	sp.RegisterMetric("BridgeMessagesDropped")

	return &Bridge{
		log:    logger,
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		stats:  sp,
	}
}

// SetHandler registers the inbound turn handler. Must be called before
// Connect.
func (b *Bridge) SetHandler(h Handler) {
	b.handler = h
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect dials the AI process and starts the read loop. It is called once
// at startup; there is no automatic retry. A failed dial leaves the bridge
// disconnected until the next explicit Connect.
func (b *Bridge) Connect() error {
	b.mu.Lock()
	b.state = StateConnecting
	b.mu.Unlock()

	conn, _, err := b.dialer.Dial(b.url, nil)
	if err != nil {
		b.mu.Lock()
		b.state = StateDisconnected
		b.mu.Unlock()
		return fmt.Errorf("dial %s at %s: %w", remoteName, b.url, err)
	}

	b.mu.Lock()
	if b.conn != nil {
		// replace any prior handle
		b.conn.Close()
	}
	b.conn = conn
	b.state = StateConnected
	b.mu.Unlock()

	b.log.Printf("connected to %s at %s", remoteName, b.url)

	go b.readLoop(conn)

	return nil
}

// Send transmits the payload if the bridge is connected. There is no
// queueing of undelivered sends.
func (b *Bridge) Send(p TurnPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateConnected || b.conn == nil {
		b.stats.Incr("BridgeMessagesDropped")
		return ErrNotConnected
	}

	b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.stats.Incr("BridgeMessagesDropped")
		b.conn.Close()
		b.conn = nil
		b.state = StateDisconnected
		return fmt.Errorf("write to %s: %w", remoteName, err)
	}

	b.stats.Incr("BridgeMessagesSent")
	return nil
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			b.state = StateDisconnected
		}
		b.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.log.Printf("connection to %s closed: %v", remoteName, err)
			return
		}

		b.stats.Incr("BridgeMessagesReceived")

		p, err := ParseTurnPayload(raw)
		if err != nil {
			b.log.Println("dropping inbound frame:", err)
			continue
		}

		if b.handler != nil {
			b.handler(p)
		}
	}
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		b.state = StateDisconnected
		return err
	}

	return nil
}
