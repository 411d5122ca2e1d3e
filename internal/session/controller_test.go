package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra/livedesk/internal/api"
	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/internal/stream"
)

const eventually = 2 * time.Second
const pollEvery = 5 * time.Millisecond

// fakeAPI records every call and returns canned answers.
type fakeAPI struct {
	mu sync.Mutex

	startResp *api.CommandResponse
	startErr  error
	stopResp  *api.CommandResponse
	stopErr   error
	stats     domain.Stats
	trades    []domain.TradeRecord
	signal    domain.SignalDetails
	signalErr error
	open      []domain.TradeRecord
	health    *api.HealthStatus
	healthErr error

	startKinds     []domain.EngineKind
	stopCalls      int
	statsCalls     int
	tradesCalls    int
	tradeLimits    []int
	signalCalls    int
	positionsCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		startResp: &api.CommandResponse{Status: "success"},
		stopResp:  &api.CommandResponse{Status: "success"},
		signal:    domain.SignalDetails{Status: "active", Action: "BUY"},
		health:    &api.HealthStatus{Status: "healthy"},
	}
}

func (f *fakeAPI) StartTrading(ctx context.Context, kind domain.EngineKind, instruments []string) (*api.CommandResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startKinds = append(f.startKinds, kind)
	if f.startErr != nil {
		return nil, f.startErr
	}
	resp := *f.startResp
	return &resp, nil
}

func (f *fakeAPI) StopTrading(ctx context.Context) (*api.CommandResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	resp := *f.stopResp
	return &resp, nil
}

func (f *fakeAPI) Stats(ctx context.Context) (*domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	st := f.stats
	return &st, nil
}

func (f *fakeAPI) Trades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradesCalls++
	f.tradeLimits = append(f.tradeLimits, limit)
	return f.trades, nil
}

func (f *fakeAPI) SignalDetails(ctx context.Context) (*domain.SignalDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signalCalls++
	if f.signalErr != nil {
		return nil, f.signalErr
	}
	sig := f.signal
	return &sig, nil
}

func (f *fakeAPI) Positions(ctx context.Context) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionsCalls++
	return f.open, nil
}

func (f *fakeAPI) Health(ctx context.Context) (*api.HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	h := *f.health
	return &h, nil
}

func (f *fakeAPI) counts() (starts, stops, stats, trades, signals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startKinds), f.stopCalls, f.statsCalls, f.tradesCalls, f.signalCalls
}

// fakeHandle is a stream handle the tests drive by hand.
type fakeHandle struct {
	events chan stream.Event
	done   chan error
	closed atomic.Int32
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		events: make(chan stream.Event, 16),
		done:   make(chan error, 1),
	}
}

func (h *fakeHandle) Events() <-chan stream.Event { return h.events }
func (h *fakeHandle) Done() <-chan error          { return h.done }
func (h *fakeHandle) Close()                      { h.closed.Add(1) }

func (h *fakeHandle) push(kind, payload string) {
	h.events <- stream.Event{Type: kind, Data: json.RawMessage(payload)}
}

// fail mimics a transport death: terminal error first, then channel close.
func (h *fakeHandle) fail(err error) {
	h.done <- err
	close(h.events)
}

type fakeDialer struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error
}

func (d *fakeDialer) dial(ctx context.Context, url string) (StreamHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	h := newFakeHandle()
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

func (d *fakeDialer) handle(i int) *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles[i]
}

type notice struct {
	level   Level
	message string
}

// fakeView records everything the controller renders.
type fakeView struct {
	mu               sync.Mutex
	states           []State
	online           []bool
	markets          []domain.MarketData
	signals          []domain.SignalDetails
	positions        []domain.Position
	positionsCleared int
	histories        int
	stats            int
	notices          []notice
}

func (v *fakeView) SessionChanged(state State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, state)
}

func (v *fakeView) StreamOnline(online bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.online = append(v.online, online)
}

func (v *fakeView) LiveMetrics(md domain.MarketData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markets = append(v.markets, md)
}

func (v *fakeView) SignalUpdate(sig domain.SignalDetails) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signals = append(v.signals, sig)
}

func (v *fakeView) PositionCard(p domain.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = append(v.positions, p)
}

func (v *fakeView) PositionClosed() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positionsCleared++
}

func (v *fakeView) TradeHistory(trades []domain.TradeRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.histories++
}

func (v *fakeView) StatsSummary(st domain.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats++
}

func (v *fakeView) Notify(level Level, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, notice{level: level, message: message})
}

func (v *fakeView) noticeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.notices)
}

func (v *fakeView) lastNotice() (notice, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.notices) == 0 {
		return notice{}, false
	}
	return v.notices[len(v.notices)-1], true
}

func (v *fakeView) lastOnline() (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.online) == 0 {
		return false, false
	}
	return v.online[len(v.online)-1], true
}

func (v *fakeView) marketCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.markets)
}

func (v *fakeView) signalCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.signals)
}

func (v *fakeView) positionCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.positions)
}

func (v *fakeView) clearedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionsCleared
}

// quietConfig keeps all timers far away so tests only see what they drive.
func quietConfig() Config {
	return Config{
		StreamURL:      "http://engine/stream",
		StatsInterval:  time.Hour,
		SignalInterval: time.Hour,
		ReconnectDelay: time.Hour,
		TradeLimit:     25,
	}
}

func startController(t *testing.T, engineAPI EngineAPI, d *fakeDialer, view Renderer, cfg Config) *Controller {
	t.Helper()
	c := NewController(engineAPI, d.dial, view, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		c.Close()
	})
	return c
}

func TestStartFuturesBringsUpPipeline(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, []string{"NIFTY25AUGFUT"})

	assert.Eventually(t, func() bool {
		return c.State() == StateFutures && dialer.count() == 1
	}, eventually, pollEvery)

	assert.Eventually(t, func() bool {
		online, ok := view.lastOnline()
		return ok && online
	}, eventually, pollEvery)

	// Start triggers one immediate refresh of every poll surface.
	assert.Eventually(t, func() bool {
		_, _, stats, trades, signals := engineAPI.counts()
		return stats >= 1 && trades >= 1 && signals >= 1
	}, eventually, pollEvery)

	n, ok := view.lastNotice()
	require.True(t, ok)
	assert.Equal(t, LevelSuccess, n.level)
	assert.Contains(t, n.message, "Futures")
}

func TestStartOptionsSetsOptionsState(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineOptions, nil)

	assert.Eventually(t, func() bool {
		return c.State() == StateOptions
	}, eventually, pollEvery)
}

func TestStartRejectedLeavesStateUntouched(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.startResp = &api.CommandResponse{Status: "error", Message: "engine already running"}
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)

	assert.Eventually(t, func() bool {
		return view.noticeCount() == 1
	}, eventually, pollEvery)

	n, _ := view.lastNotice()
	assert.Equal(t, LevelError, n.level)
	assert.Contains(t, n.message, "engine already running")
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, dialer.count())

	// Exactly one notification per failed operation.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, view.noticeCount())
}

func TestStartTransportErrorNotifiesOnce(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.startErr = errors.New("connection refused")
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineOptions, nil)

	assert.Eventually(t, func() bool {
		return view.noticeCount() == 1
	}, eventually, pollEvery)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, dialer.count())
}

func TestUnknownEngineKindRejectedLocally(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineKind("banana"), nil)

	assert.Eventually(t, func() bool {
		return view.noticeCount() == 1
	}, eventually, pollEvery)
	starts, _, _, _, _ := engineAPI.counts()
	assert.Equal(t, 0, starts)
	assert.Equal(t, StateStopped, c.State())
}

func TestStopTearsDownSession(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	c.StopEngine()

	assert.Eventually(t, func() bool {
		return c.State() == StateStopped
	}, eventually, pollEvery)
	assert.Eventually(t, func() bool {
		return dialer.handle(0).closed.Load() >= 1
	}, eventually, pollEvery)

	online, ok := view.lastOnline()
	require.True(t, ok)
	assert.False(t, online)

	n, _ := view.lastNotice()
	assert.Equal(t, LevelInfo, n.level)
	assert.Contains(t, n.message, "stopped")
}

func TestStopRejectedKeepsSessionRunning(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.stopResp = &api.CommandResponse{Status: "error", Message: "no active engine"}
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)
	before := view.noticeCount()

	c.StopEngine()

	assert.Eventually(t, func() bool {
		return view.noticeCount() == before+1
	}, eventually, pollEvery)
	assert.Equal(t, StateFutures, c.State())
	assert.EqualValues(t, 0, dialer.handle(0).closed.Load())
}

func TestStreamFailureReconnectsAfterDelay(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.ReconnectDelay = 30 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	dialer.handle(0).fail(errors.New("server went away"))

	assert.Eventually(t, func() bool { return dialer.count() == 2 }, eventually, pollEvery)
	assert.Equal(t, StateFutures, c.State())

	online, ok := view.lastOnline()
	require.True(t, ok)
	assert.True(t, online)
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.ReconnectDelay = 60 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	dialer.handle(0).fail(errors.New("server went away"))
	assert.Eventually(t, func() bool {
		online, ok := view.lastOnline()
		return ok && !online
	}, eventually, pollEvery)

	c.StopEngine()
	assert.Eventually(t, func() bool { return c.State() == StateStopped }, eventually, pollEvery)

	// Well past the reconnect delay: no new dial may happen.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, dialer.count())
}

func TestRestartReplacesStreamHandle(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	c.StartEngine(domain.EngineOptions, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 2 }, eventually, pollEvery)

	assert.Eventually(t, func() bool {
		return dialer.handle(0).closed.Load() >= 1
	}, eventually, pollEvery)
	assert.EqualValues(t, 0, dialer.handle(1).closed.Load())
	assert.Equal(t, StateOptions, c.State())
}

func TestDispatchMarketData(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	dialer.handle(0).push("market_data", `{"ltp": 24315.5, "pressure": 0.42, "engine_type": "futures"}`)

	assert.Eventually(t, func() bool { return view.marketCount() == 1 }, eventually, pollEvery)
	view.mu.Lock()
	md := view.markets[0]
	view.mu.Unlock()
	assert.True(t, md.LTP.Equal(decimal.NewFromFloat(24315.5)))
	assert.InDelta(t, 0.42, md.Pressure, 1e-9)
}

func TestDispatchTradeNotifiesAndRefreshes(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)
	_, _, statsBefore, _, _ := engineAPI.counts()

	dialer.handle(0).push("trade", `{"action": "BUY", "symbol": "NIFTY25AUGFUT", "entry": 24310, "quantity": 75}`)

	assert.Eventually(t, func() bool {
		n, ok := view.lastNotice()
		return ok && n.level == LevelSuccess && containsAll(n.message, "NIFTY25AUGFUT", "x75")
	}, eventually, pollEvery)

	// The trade event forces an extra stats+history refresh.
	assert.Eventually(t, func() bool {
		_, _, stats, _, _ := engineAPI.counts()
		return stats > statsBefore
	}, eventually, pollEvery)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		found := false
		for i := 0; i+len(p) <= len(s); i++ {
			if s[i:i+len(p)] == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestDispatchPositionUpdate(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineOptions, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

	dialer.handle(0).push("position_update",
		`{"trade_id": 7, "symbol": "NIFTY25AUG24300CE", "type": "LONG", "option_type": "CE", "entry": 132.5, "stop_loss": 120, "target": 160, "quantity": 75}`)

	assert.Eventually(t, func() bool { return view.positionCount() == 1 }, eventually, pollEvery)
	view.mu.Lock()
	p := view.positions[0]
	view.mu.Unlock()
	assert.Equal(t, domain.DirectionCall, p.Direction())
	assert.Equal(t, int64(7), p.TradeID)
}

func TestDispatchExitLevels(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		level   Level
	}{
		{"profit", `{"reason": "TARGET", "pnl": 1825.0, "pnl_percent": 4.1}`, LevelInfo},
		{"breakeven", `{"reason": "MANUAL", "pnl": 0, "pnl_percent": 0}`, LevelInfo},
		{"loss", `{"reason": "STOP_LOSS", "pnl": -930.5, "pnl_percent": -2.2}`, LevelWarn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engineAPI := newFakeAPI()
			dialer := &fakeDialer{}
			view := &fakeView{}
			c := startController(t, engineAPI, dialer, view, quietConfig())

			c.StartEngine(domain.EngineFutures, nil)
			assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)

			dialer.handle(0).push("exit", tc.payload)

			assert.Eventually(t, func() bool {
				n, ok := view.lastNotice()
				return ok && n.level == tc.level && containsAll(n.message, "Position closed")
			}, eventually, pollEvery)
			assert.Equal(t, 1, view.clearedCount())
		})
	}
}

func TestDispatchIgnoresHeartbeatAndUnknown(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool { return dialer.count() == 1 }, eventually, pollEvery)
	before := view.noticeCount()

	dialer.handle(0).push("heartbeat", `{"ts": 1724400000}`)
	dialer.handle(0).push("mystery_kind", `{"x": 1}`)
	// Malformed payload for a known kind: dropped, never rendered.
	dialer.handle(0).push("market_data", `{"ltp": {"nested": true}}`)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, view.noticeCount())
	assert.Equal(t, 0, view.marketCount())
}

func TestStatsPollRunsOnCadence(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.StatsInterval = 20 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)

	assert.Eventually(t, func() bool {
		_, _, stats, trades, _ := engineAPI.counts()
		return stats >= 3 && trades >= 3
	}, eventually, pollEvery)

	engineAPI.mu.Lock()
	limits := engineAPI.tradeLimits
	engineAPI.mu.Unlock()
	require.NotEmpty(t, limits)
	assert.Equal(t, 25, limits[0])
}

func TestSignalPollFiltersNoEngine(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.signal = domain.SignalDetails{Status: "no_engine", Message: "No engine running"}
	dialer := &fakeDialer{}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.SignalInterval = 15 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)

	assert.Eventually(t, func() bool {
		_, _, _, _, signals := engineAPI.counts()
		return signals >= 3
	}, eventually, pollEvery)
	assert.Equal(t, 0, view.signalCount())

	engineAPI.mu.Lock()
	engineAPI.signal = domain.SignalDetails{Status: "active", Action: "SELL", Score: -0.4}
	engineAPI.mu.Unlock()

	assert.Eventually(t, func() bool { return view.signalCount() >= 1 }, eventually, pollEvery)
	view.mu.Lock()
	sig := view.signals[0]
	view.mu.Unlock()
	assert.Equal(t, "SELL", sig.Action)
}

func TestPollTimersSilentWhileStopped(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.StatsInterval = 15 * time.Millisecond
	cfg.SignalInterval = 15 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)
	assert.Eventually(t, func() bool {
		_, _, stats, _, _ := engineAPI.counts()
		return stats >= 2
	}, eventually, pollEvery)

	c.StopEngine()
	assert.Eventually(t, func() bool { return c.State() == StateStopped }, eventually, pollEvery)

	_, _, statsAfterStop, tradesAfterStop, signalsAfterStop := engineAPI.counts()
	time.Sleep(100 * time.Millisecond)
	_, _, stats2, trades2, signals2 := engineAPI.counts()
	// In-flight fetches may land right after stop; nothing new may start.
	assert.LessOrEqual(t, stats2, statsAfterStop+1)
	assert.LessOrEqual(t, trades2, tradesAfterStop+1)
	assert.LessOrEqual(t, signals2, signalsAfterStop+1)
}

func TestAttachAdoptsRunningEngine(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.health = &api.HealthStatus{
		Status:            "healthy",
		ActiveEngine:      "options",
		HasActivePosition: true,
	}
	sl := decimal.NewFromInt(120)
	engineAPI.open = []domain.TradeRecord{{
		ID:         12,
		Symbol:     "NIFTY25AUG24300CE",
		TradeType:  domain.DirectionCall,
		EntryPrice: decimal.NewFromFloat(132.5),
		StopLoss:   &sl,
		Quantity:   75,
		Status:     "OPEN",
	}}
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	// No local start: the health probe alone brings the session up.
	assert.Eventually(t, func() bool {
		return c.State() == StateOptions && dialer.count() == 1
	}, eventually, pollEvery)

	assert.Eventually(t, func() bool { return view.positionCount() == 1 }, eventually, pollEvery)
	view.mu.Lock()
	p := view.positions[0]
	view.mu.Unlock()
	assert.Equal(t, int64(12), p.TradeID)
	assert.Equal(t, domain.DirectionCall, p.Direction())
	assert.True(t, p.StopLoss.Equal(sl))

	assert.Eventually(t, func() bool {
		n, ok := view.lastNotice()
		return ok && n.level == LevelInfo && containsAll(n.message, "already running")
	}, eventually, pollEvery)
}

func TestAttachSkipsIdleEngine(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, dialer.count())
	assert.Equal(t, 0, view.noticeCount())
}

func TestHealthProbeFailureNotifies(t *testing.T) {
	engineAPI := newFakeAPI()
	engineAPI.healthErr = errors.New("connection refused")
	dialer := &fakeDialer{}
	view := &fakeView{}
	c := startController(t, engineAPI, dialer, view, quietConfig())

	assert.Eventually(t, func() bool {
		n, ok := view.lastNotice()
		return ok && n.level == LevelWarn && containsAll(n.message, "unreachable")
	}, eventually, pollEvery)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, dialer.count())
}

func TestDialFailureKeepsRetrying(t *testing.T) {
	engineAPI := newFakeAPI()
	dialer := &fakeDialer{err: errors.New("refused")}
	view := &fakeView{}
	cfg := quietConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	c := startController(t, engineAPI, dialer, view, cfg)

	c.StartEngine(domain.EngineFutures, nil)

	// Dial fails, timer fires, dial fails again. After the dialer heals,
	// the next attempt connects.
	assert.Eventually(t, func() bool {
		online, ok := view.lastOnline()
		return ok && !online
	}, eventually, pollEvery)

	time.Sleep(60 * time.Millisecond)
	dialer.mu.Lock()
	dialer.err = nil
	dialer.mu.Unlock()

	assert.Eventually(t, func() bool {
		online, ok := view.lastOnline()
		return ok && online
	}, eventually, pollEvery)
	assert.Equal(t, 1, dialer.count())
	assert.Equal(t, StateFutures, c.State())
}
