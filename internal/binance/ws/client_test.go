package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestClientResubscribesAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var connections atomic.Int32
	subs := make(chan subscribeRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		n := connections.Add(1)
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err == nil {
			subs <- req
		}
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "rotate")
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"result":null,"id":2}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"e":"markPriceUpdate","s":"BNBUSDT","p":"600.1"}`))
		<-ctx.Done()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(wsURL, 10*time.Millisecond, time.Second, zap.NewNop())
	client.streams = []string{"bnbusdt@markPrice@1s"}

	got := make(chan json.RawMessage, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(msg json.RawMessage) {
			select {
			case got <- msg:
			default:
			}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case req := <-subs:
			if req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != "bnbusdt@markPrice@1s" {
				t.Fatalf("unexpected subscribe request %+v", req)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for subscribe %d", i+1)
		}
	}
	select {
	case msg := <-got:
		// the subscribe reply must not reach the handler
		if !strings.Contains(string(msg), "markPriceUpdate") {
			t.Fatalf("unexpected message %s", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for stream message")
	}
	if connections.Load() < 2 {
		t.Fatalf("expected a reconnect, got %d connections", connections.Load())
	}
}

func TestClientRotatesLongSessions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := New("ws"+strings.TrimPrefix(server.URL, "http"), time.Hour, 0, zap.NewNop())
	client.maxSession = 30 * time.Millisecond

	runCtx, runCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- client.Run(runCtx, nil) }()

	for connections.Load() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("expected rotation without reconnect delay, got %d connections", connections.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	runCancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConsumeControlFrames(t *testing.T) {
	client := New("", 0, 0, nil)
	cases := map[string]bool{
		`{"result":null,"id":1}`:                              true,
		`{"error":{"code":2,"msg":"Invalid request"},"id":3}`: true,
		`{"e":"markPriceUpdate","s":"BNBUSDT"}`:               false,
		`not json`:                                            false,
	}
	for raw, want := range cases {
		if got := client.consumeControl([]byte(raw)); got != want {
			t.Fatalf("%s: expected %v, got %v", raw, want, got)
		}
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	client := New("ws://127.0.0.1:1", time.Millisecond, 0, nil)
	if err := client.Subscribe(context.Background(), "bnbusdt@markPrice@1s"); err == nil {
		t.Fatalf("expected not connected error")
	}
}
