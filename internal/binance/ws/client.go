package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	DefaultURL = "wss://fstream.binance.com/ws"

	// Binance drops stream connections after 24h.
	defaultMaxSession = 23 * time.Hour
	maxReconnectDelay = time.Minute
	readLimit         = 1 << 20
)

var (
	errNotConnected   = errors.New("ws not connected")
	errSessionExpired = errors.New("ws session expired")
)

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// control is the reply Binance sends for SUBSCRIBE requests.
type control struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// Client is a reconnecting Binance futures stream client. Streams added with
// Subscribe are re-sent after every reconnect, and sessions are rotated before
// the server-side 24h cutoff.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxSession     time.Duration
	log            *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	streams []string
	nextID  int64
}

func New(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		maxSession:     defaultMaxSession,
		log:            log,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	return nil
}

// Subscribe registers streams and sends a SUBSCRIBE on the live connection.
func (c *Client) Subscribe(ctx context.Context, streams ...string) error {
	if len(streams) == 0 {
		return nil
	}
	c.mu.Lock()
	c.streams = append(c.streams, streams...)
	conn := c.conn
	req := c.subscription(streams)
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return send(ctx, conn, req)
}

func (c *Client) subscription(streams []string) subscribeRequest {
	c.nextID++
	return subscribeRequest{Method: "SUBSCRIBE", Params: append([]string(nil), streams...), ID: c.nextID}
}

// Run reads stream payloads into handler until ctx is done. Subscription
// replies are consumed here and never reach handler.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	delay := c.reconnectDelay
	for {
		received, err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.resetConn()
		if errors.Is(err, errSessionExpired) {
			c.log.Info("ws session rotated", zap.Duration("max_session", c.maxSession))
			continue
		}
		c.logSessionEnd(err)
		if received > 0 {
			delay = c.reconnectDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one connection until it fails or reaches maxSession. It
// returns the number of payloads delivered.
func (c *Client) session(ctx context.Context, handler func(json.RawMessage)) (int, error) {
	if err := c.dialAndResubscribe(ctx); err != nil {
		return 0, err
	}
	sessionCtx := ctx
	if c.maxSession > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, c.maxSession)
		defer cancel()
	}
	pingCtx, stopPing := context.WithCancel(sessionCtx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.keepalive(pingCtx)
	}()
	received, err := c.read(sessionCtx, handler)
	stopPing()
	<-pingDone
	if sessionCtx.Err() != nil && ctx.Err() == nil {
		return received, errSessionExpired
	}
	return received, err
}

func (c *Client) dialAndResubscribe(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	if len(c.streams) == 0 {
		c.mu.Unlock()
		return nil
	}
	req := c.subscription(c.streams)
	c.mu.Unlock()
	return send(ctx, conn, req)
}

func (c *Client) read(ctx context.Context, handler func(json.RawMessage)) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, errNotConnected
	}
	received := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return received, err
		}
		if c.consumeControl(data) {
			continue
		}
		received++
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) consumeControl(data []byte) bool {
	var msg control
	if err := json.Unmarshal(data, &msg); err != nil || msg.ID == nil {
		return false
	}
	if msg.Error != nil {
		c.log.Warn("ws subscribe rejected", zap.Int64("id", *msg.ID), zap.Int("code", msg.Error.Code), zap.String("msg", msg.Error.Msg))
	}
	return true
}

// keepalive sends control pings; read consumes the pongs.
func (c *Client) keepalive(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Debug("ws ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (c *Client) logSessionEnd(err error) {
	var closeErr websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		c.log.Warn("ws closed by server", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
	case err != nil:
		c.log.Warn("ws session ended", zap.Error(err))
	}
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reconnect")
		c.conn = nil
	}
}

func send(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
