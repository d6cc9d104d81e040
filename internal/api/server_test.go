package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/engine"
	"solana-alpha-engine/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type runKey struct{}

type fakeController struct {
	mu         sync.Mutex
	running    bool
	startCtx   context.Context
	positions  []*domain.Position
	executions []domain.ExecutionRequest
	execLimit  int
	exits      []engine.ExitResult
	exitCalls  int
	events     chan engine.Event
	cancelled  bool
}

func newFakeController() *fakeController {
	return &fakeController{events: make(chan engine.Event, 8)}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return engine.ErrAlreadyRunning
	}
	f.running = true
	f.startCtx = ctx
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return engine.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeController) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := engine.Status{Running: f.running, Health: engine.HealthStopped, Balance: 250}
	if f.running {
		st.Health = engine.HealthHealthy
		st.StartedAt = t0.Add(-90 * time.Second)
	}
	return st
}

func (f *fakeController) Positions() []*domain.Position {
	return f.positions
}

func (f *fakeController) Executions(limit int) []domain.ExecutionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execLimit = limit
	return f.executions
}

func (f *fakeController) ForceExitAll(ctx context.Context) []engine.ExitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitCalls++
	return f.exits
}

func (f *fakeController) Subscribe(buffer int) (<-chan engine.Event, func()) {
	return f.events, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}
}

type harness struct {
	ctrl    *fakeController
	trades  *memory.TradeRecordStore
	samples *memory.PriceSampleStore
	srv     *Server
	runCtx  context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	h := &harness{
		ctrl:    newFakeController(),
		trades:  memory.NewTradeRecordStore(),
		samples: memory.NewPriceSampleStore(),
		runCtx:  context.WithValue(context.Background(), runKey{}, "run"),
	}
	h.srv = New(Options{
		Engine:     h.ctrl,
		Trades:     h.trades,
		Samples:    h.samples,
		RunContext: h.runCtx,
		Logger:     logger,
		Now:        func() time.Time { return t0 },
	})
	return h
}

func (h *harness) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, engine.HealthStopped, resp.Health)
	assert.False(t, resp.Running)
}

func TestStatus_Uptime(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Start(context.Background()))

	rec := h.do(t, http.MethodGet, "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatusResponse](t, rec)
	assert.True(t, resp.Running)
	assert.Equal(t, engine.HealthHealthy, resp.Health)
	assert.Equal(t, 250.0, resp.Balance)
	assert.Equal(t, "1m30s", resp.Uptime)
}

func TestPositions_EmptyIsArray(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/positions")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPositions(t *testing.T) {
	h := newHarness(t)
	h.ctrl.positions = []*domain.Position{{ID: "p1", Symbol: "BONK", Quantity: 16, Status: domain.PositionActive}}

	rec := h.do(t, http.MethodGet, "/positions")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]domain.Position](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "BONK", got[0].Symbol)
	assert.Equal(t, 16.0, got[0].Quantity)
}

func TestExecutions_Limit(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   int
		limit  int
	}{
		{"default", "/executions", http.StatusOK, DefaultExecutionLimit},
		{"explicit", "/executions?limit=5", http.StatusOK, 5},
		{"capped", "/executions?limit=5000", http.StatusOK, maxLimit},
		{"zero", "/executions?limit=0", http.StatusBadRequest, 0},
		{"garbage", "/executions?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ctrl.executions = []domain.ExecutionRequest{{ID: "e1", Symbol: "WIF"}}

			rec := h.do(t, http.MethodGet, tt.target)

			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.Contains(t, decode[errorResponse](t, rec).Error, "limit")
				return
			}
			assert.Equal(t, tt.limit, h.ctrl.execLimit)
			got := decode[[]domain.ExecutionRequest](t, rec)
			require.Len(t, got, 1)
			assert.Equal(t, "e1", got[0].ID)
		})
	}
}

func TestTrades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, tr := range []*domain.TradeRecord{
		{TradeID: "t1", Symbol: "BONK", Direction: domain.DirectionBuy, ExecutedAt: 1000},
		{TradeID: "t2", Symbol: "BONK", Direction: domain.DirectionSell, ExecutedAt: 2000},
		{TradeID: "t3", Symbol: "WIF", Direction: domain.DirectionBuy, ExecutedAt: 3000},
	} {
		require.NoError(t, h.trades.Insert(ctx, tr))
	}

	tests := []struct {
		path string
		code int
		want []string
	}{
		{"/trades?limit=2", http.StatusOK, []string{"t3", "t2"}},
		{"/trades?symbol=BONK", http.StatusOK, []string{"t2", "t1"}},
		{"/trades?symbol=BONK&since=1500", http.StatusOK, []string{"t2"}},
		{"/trades?symbol=JUP", http.StatusOK, []string{}},
		{"/trades?since=-1", http.StatusBadRequest, nil},
		{"/trades?limit=x", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tt.path)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			got := decode[[]domain.TradeRecord](t, rec)
			ids := make([]string, 0, len(got))
			for _, tr := range got {
				ids = append(ids, tr.TradeID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTrades_NotConfigured(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	srv := New(Options{Engine: newFakeController(), Logger: logger})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trades", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/samples?asset=m", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSamples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.samples.InsertBulk(ctx, []*domain.PriceSample{
		{AssetID: "mintA", TimestampMs: 1000, Price: 1},
		{AssetID: "mintA", TimestampMs: 2000, Price: 2},
		{AssetID: "mintA", TimestampMs: 3000, Price: 3},
		{AssetID: "mintB", TimestampMs: 2000, Price: 9},
	}))

	rec := h.do(t, http.MethodGet, "/samples?asset=mintA&from=1500&to=3000")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]domain.PriceSample](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2000), got[0].TimestampMs)
	assert.Equal(t, int64(3000), got[1].TimestampMs)
}

func TestSamples_BadRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing asset", "/samples", "asset"},
		{"bad from", "/samples?asset=m&from=x", "from"},
		{"negative to", "/samples?asset=m&to=-1", "to"},
		{"inverted", "/samples?asset=m&from=10&to=5", "before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, http.MethodGet, tt.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[errorResponse](t, rec).Error, tt.want)
		})
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[engine.Status](t, rec).Running)
	assert.Equal(t, h.runCtx, h.ctrl.startCtx, "engine must outlive the request")

	rec = h.do(t, http.MethodPost, "/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "already running")

	rec = h.do(t, http.MethodPost, "/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[engine.Status](t, rec).Running)

	rec = h.do(t, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusMethodNotAllowed, h.do(t, http.MethodGet, "/start").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(t, http.MethodPost, "/status").Code)
	assert.Equal(t, 0, h.ctrl.exitCalls)
}

func TestEmergencyExit(t *testing.T) {
	h := newHarness(t)
	h.ctrl.exits = []engine.ExitResult{
		{Symbol: "BONK", ExecutionID: "e1"},
		{Symbol: "WIF", Error: "execution in flight"},
	}

	rec := h.do(t, http.MethodPost, "/emergency-exit")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.ctrl.exitCalls)
	resp := decode[EmergencyExitResponse](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "e1", resp.Results[0].ExecutionID)
	assert.Equal(t, "execution in flight", resp.Results[1].Error)
}

func TestMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEvents_WebSocket(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.srv.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	h.ctrl.events <- engine.Event{Type: engine.EventPositionOpened, Symbol: "BONK", At: t0}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev engine.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, engine.EventPositionOpened, ev.Type)
	assert.Equal(t, "BONK", ev.Symbol)
	assert.True(t, t0.Equal(ev.At))

	// Closing the subscription ends the stream with a normal close frame.
	close(h.ctrl.events)
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.cancelled
	}, 2*time.Second, 10*time.Millisecond)
}
