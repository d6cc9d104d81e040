package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/engine"
)

// botServer fakes the bot API: getMe succeeds, sendMessage records the form.
type botServer struct {
	*httptest.Server
	mu       sync.Mutex
	messages []map[string]string
	failSend bool
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"engine","username":"engine_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if !assert.NoError(t, r.ParseForm()) {
				return
			}
			s.mu.Lock()
			fail := s.failSend
			s.messages = append(s.messages, map[string]string{
				"chat_id": r.PostForm.Get("chat_id"),
				"text":    r.PostForm.Get("text"),
			})
			s.mu.Unlock()
			if fail {
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) sent() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.messages...)
}

func newTestTelegram(t *testing.T, srv *botServer) *Telegram {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	tg, err := NewTelegram(TelegramOptions{
		Token:       "123:abc",
		ChatID:      42,
		APIEndpoint: srv.URL + "/bot%s/%s",
		Client:      srv.Client(),
		Logger:      logger,
	})
	require.NoError(t, err)
	return tg
}

func TestNewTelegram_RequiresChat(t *testing.T) {
	_, err := NewTelegram(TelegramOptions{Token: "123:abc"})
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestTelegram_Send(t *testing.T) {
	srv := newBotServer(t)
	tg := newTestTelegram(t, srv)

	require.NoError(t, tg.Send("hello"))

	sent := srv.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0]["chat_id"])
	assert.Equal(t, "hello", sent[0]["text"])
}

func TestTelegram_SendError(t *testing.T) {
	srv := newBotServer(t)
	tg := newTestTelegram(t, srv)
	srv.mu.Lock()
	srv.failSend = true
	srv.mu.Unlock()

	err := tg.Send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegram_RunForwardsAlerts(t *testing.T) {
	srv := newBotServer(t)
	tg := newTestTelegram(t, srv)

	events := make(chan engine.Event, 4)
	events <- engine.Event{Type: engine.EventPositionOpened, Symbol: "BONK"}
	events <- engine.Event{Type: engine.EventPositionClosed, Symbol: "BONK", RealizedPnL: 1.5}
	events <- engine.Event{Type: engine.EventEmergencyExit, Message: "emergency exit of 2 positions"}
	close(events)

	done := make(chan struct{})
	go func() {
		tg.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	sent := srv.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0]["text"], "Closed BONK")
	assert.Contains(t, sent[1]["text"], "Emergency exit")
}

func TestFormat(t *testing.T) {
	failed := &domain.ExecutionRequest{
		Direction: domain.DirectionSell,
		Symbol:    "WIF",
		Amount:    12.5,
		Router:    "jupiter",
		Error:     "no quote",
		TxRef:     "sig1",
	}
	reduced := &domain.ExecutionRequest{ExitPercent: 50, Reason: "24h momentum -20%"}

	tests := []struct {
		name  string
		ev    engine.Event
		want  []string
		alert bool
	}{
		{"failed", engine.Event{Type: engine.EventExecutionFailed, Execution: failed},
			[]string{"Execution failed", "sell WIF 12.5", "via jupiter", "no quote", "tx sig1"}, true},
		{"closed", engine.Event{Type: engine.EventPositionClosed, Symbol: "BONK", RealizedPnL: -2.4},
			[]string{"Closed BONK", "-2.4000"}, true},
		{"reduced", engine.Event{Type: engine.EventPositionReduced, Symbol: "BONK", RealizedPnL: 0.5, Execution: reduced},
			[]string{"Reduced BONK", "+0.5000", "(50%)", "momentum"}, true},
		{"emergency", engine.Event{Type: engine.EventEmergencyExit, Message: "2 positions"},
			[]string{"Emergency exit: 2 positions"}, true},
		{"stopped", engine.Event{Type: engine.EventEngineStopped}, []string{"Engine stopped"}, true},
		{"opened", engine.Event{Type: engine.EventPositionOpened}, nil, false},
		{"confirmed", engine.Event{Type: engine.EventExecutionConfirmed}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, alert := Format(tt.ev)
			assert.Equal(t, tt.alert, alert)
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
		})
	}
}
