package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/metrics"
	"github.com/1satmarket/marketapi/pkg/retry"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second

	// MessageUpdated is the server message type for canonical record writes.
	MessageUpdated = "market.updated"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Type   string `json:"type"`   // asset type, or "*" for all
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // market.updated, subscribed, unsubscribed, info or error
	Payload interface{} `json:"payload"`
}

// clientSubscriptions tracks which families a client follows.
type clientSubscriptions struct {
	mu       sync.RWMutex
	families map[string]bool
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{families: make(map[string]bool)}
}

func (cs *clientSubscriptions) subscribe(family string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.families[family] = true
}

func (cs *clientSubscriptions) unsubscribe(family string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.families, family)
}

// isSubscribed reports whether family is followed. "*" matches every family.
func (cs *clientSubscriptions) isSubscribed(family string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.families["*"] || cs.families[family]
}

// subscriptionTarget normalizes the family named by a client message.
func subscriptionTarget(t string) (string, error) {
	if t == "*" {
		return t, nil
	}
	f, err := market.ParseFamily(t)
	if err != nil {
		return "", err
	}
	return string(f), nil
}

// HandleWebSocket upgrades the connection and streams record updates.
//
// Protocol:
// Client sends: {"action": "subscribe", "type": "bsv20"}
// Client sends: {"action": "subscribe", "type": "*"}
// Client sends: {"action": "unsubscribe", "type": "bsv20"}
//
// Server sends:
// - {"type": "market.updated", "payload": {"type": "bsv20", "id": "ordi", ...}}
// - {"type": "subscribed", "payload": {"type": "bsv20"}}
// - {"type": "unsubscribed", "payload": {"type": "bsv20"}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.Redis == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	metrics.WebsocketClients.Inc()
	defer metrics.WebsocketClients.Dec()
	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	guarded := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in websocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	guarded("redis", func() { c.subscribeToRedis(ctx, send, subs) })
	guarded("ping", func() { c.sendPings(ctx, conn) })
	guarded("writer", func() { c.writeMessages(ctx, conn, send) })

	// Blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis follows the update pattern, resubscribing with backoff
// when the subscription drops.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	backoff := retry.Resubscribe.Backoff()
	for {
		started := time.Now()
		err := c.attemptRedisSubscription(ctx, send, subs)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > retry.Resubscribe.Max {
			backoff.Reset()
		}
		delay := backoff.Fail()
		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", backoff.Failures()),
			zap.Duration("backoff", delay))

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "update feed lost, reconnecting",
				"retryIn":     delay.Seconds(),
				"attempt":     backoff.Failures(),
				"recoverable": true,
			},
		}) {
			return
		}
		if !retry.Sleep(ctx, delay) {
			return
		}
	}
}

func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) error {
	pubsub := c.App.Redis.PSubscribe(ctx, market.UpdatedPattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	if !trySend(ctx, send, ServerMessage{Type: "info", Payload: map[string]string{"message": "update feed connected"}}) {
		return ctx.Err()
	}

	return c.processRedisMessages(ctx, pubsub, send, subs)
}

// processRedisMessages forwards updates the client is subscribed to. It
// returns nil when the channel closes.
func (c *Controller) processRedisMessages(ctx context.Context, pubsub *redis.PubSub, send chan<- ServerMessage, subs *clientSubscriptions) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			family := market.FamilyFromChannel(msg.Channel)
			if family == "" || !subs.isSubscribed(family) {
				continue
			}
			var update market.Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				c.App.Logger.Warn("Failed to parse update",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}
			if !trySend(ctx, send, ServerMessage{Type: MessageUpdated, Payload: update}) {
				return ctx.Err()
			}
		}
	}
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendPings keeps the connection alive; pongs reset the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages is the only writer of data frames on conn.
func (c *Controller) writeMessages(ctx context.Context, conn *websocket.Conn, send <-chan ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}

// readClientMessages handles subscription requests until the connection closes.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return
		}

		var reply ServerMessage
		switch msg.Action {
		case "subscribe", "unsubscribe":
			target, err := subscriptionTarget(msg.Type)
			if err != nil {
				reply = ServerMessage{Type: "error", Payload: map[string]string{"message": err.Error()}}
				break
			}
			if msg.Action == "subscribe" {
				subs.subscribe(target)
				reply = ServerMessage{Type: "subscribed", Payload: map[string]string{"type": target}}
			} else {
				subs.unsubscribe(target)
				reply = ServerMessage{Type: "unsubscribed", Payload: map[string]string{"type": target}}
			}
			c.App.Logger.Debug("Client subscription changed", zap.String("action", msg.Action), zap.String("type", target))
		default:
			reply = ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
		}
		if !trySend(ctx, send, reply) {
			return
		}
	}
}
