package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AuthError wraps a dial failure caused by credential rejection. Unlike a
// transient network error, it is not retried: it escalates to the operator
// immediately.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "stream: authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Dialer opens a new websocket connection for one (re)connect attempt.
type Dialer func(ctx context.Context) (*websocket.Conn, error)

// Connection manages one logical streaming subscription across however
// many physical reconnects its lifetime requires: exponential backoff on
// dial failure, a tracked ping/pong heartbeat, and automatic
// resubscription after every successful reconnect.
type Connection struct {
	dial        Dialer
	backoff     BackoffPolicy
	heartbeat   HeartbeatPolicy
	onMessage   func(messageType int, data []byte)
	resubscribe func(conn *websocket.Conn) error
	onAlert     func(reason string)

	mu        sync.Mutex
	connected bool
}

// New builds a Connection. resubscribe and onAlert may be nil.
func New(dial Dialer, onMessage func(messageType int, data []byte), resubscribe func(conn *websocket.Conn) error, onAlert func(reason string)) *Connection {
	return &Connection{
		dial:        dial,
		backoff:     DefaultBackoffPolicy(),
		heartbeat:   DefaultHeartbeatPolicy(),
		onMessage:   onMessage,
		resubscribe: resubscribe,
		onAlert:     onAlert,
	}
}

// WithBackoff overrides the reconnect backoff policy.
func (c *Connection) WithBackoff(p BackoffPolicy) *Connection {
	c.backoff = p
	return c
}

// WithHeartbeat overrides the ping/pong heartbeat policy.
func (c *Connection) WithHeartbeat(p HeartbeatPolicy) *Connection {
	c.heartbeat = p
	return c
}

// Connected reports whether a physical connection is currently established.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run drives the connect/heartbeat/read/reconnect lifecycle until ctx is
// cancelled or the backoff policy's attempt budget is exhausted. On an
// authentication failure it alerts and returns without retrying further.
func (c *Connection) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				c.alert("authentication failed during reconnect: " + authErr.Error())
				return authErr
			}

			attempt++
			if c.backoff.Exhausted(attempt) {
				c.alert("reconnect attempts exhausted")
				return errors.New("stream: reconnect attempts exhausted")
			}
			delay := c.backoff.NextDelay(attempt)
			log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("🔌 stream connect failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.setConnected(true)
		log.Info().Msg("🔌 stream connected")

		if c.resubscribe != nil {
			if err := c.resubscribe(conn); err != nil {
				log.Error().Err(err).Msg("❌ failed to restore subscriptions after reconnect")
			}
		}

		c.serve(ctx, conn)
		c.setConnected(false)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// serve runs the heartbeat and read loops for one physical connection
// until it fails or ctx is cancelled.
func (c *Connection) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	tracker := newMissTracker(c.heartbeat)
	conn.SetPongHandler(func(string) error {
		tracker.recordPong()
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeatLoop(connCtx, conn, tracker, cancel)
	}()

	c.readLoop(connCtx, conn)
	cancel()
	wg.Wait()
}

func (c *Connection) heartbeatLoop(ctx context.Context, conn *websocket.Conn, tracker *missTracker, onDead func()) {
	ticker := time.NewTicker(c.heartbeat.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracker.armPing()
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Msg("⚠️ failed to write ping")
			}
			select {
			case <-time.After(c.heartbeat.PongTimeout):
				if tracker.checkTimeout() {
					log.Warn().Int("misses", c.heartbeat.MaxConsecutiveMisses).Msg("💔 heartbeat missed too many pongs, forcing reconnect")
					onDead()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("🔌 stream read error, will reconnect")
			return
		}
		if c.onMessage != nil {
			c.onMessage(messageType, data)
		}
	}
}

func (c *Connection) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Connection) alert(reason string) {
	log.Error().Str("reason", reason).Msg("🚨 stream connection alert")
	if c.onAlert != nil {
		c.onAlert(reason)
	}
}
