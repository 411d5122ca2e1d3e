package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/internal/stream"
)

// run is the single inbound-event loop. Stream events, stream errors,
// timer ticks and operations all funnel through the one select, so the
// controller's state needs no locking.
func (c *Controller) run(ctx context.Context) {
	defer close(c.doneC)

	for {
		// Nil channels disable their select cases, so only the sources
		// that currently exist can fire.
		var evC <-chan stream.Event
		var streamDoneC <-chan error
		if c.handle != nil {
			evC = c.handle.Events()
			streamDoneC = c.handle.Done()
		}
		var statsC, signalC, reconnectC <-chan time.Time
		if c.statsTicker != nil {
			statsC = c.statsTicker.C
		}
		if c.signalTicker != nil {
			signalC = c.signalTicker.C
		}
		if c.reconnect != nil {
			reconnectC = c.reconnect.C
		}

		select {
		case <-ctx.Done():
			c.teardown()
			return

		case fn := <-c.cmdC:
			fn()

		case ev, ok := <-evC:
			if !ok {
				// The handle died; pick up the terminal error if the
				// done case did not win the race.
				var err error
				select {
				case err = <-streamDoneC:
				default:
				}
				c.onStreamDown(err)
				continue
			}
			c.dispatch(ev)

		case err := <-streamDoneC:
			c.onStreamDown(err)

		case <-statsC:
			if c.State() != StateStopped {
				c.refreshC.Emit()
			}

		case <-signalC:
			if c.State() != StateStopped {
				c.refreshSignal()
			}

		case <-c.refreshC.C():
			c.refreshStatsTrades()

		case <-reconnectC:
			c.onReconnectElapsed()
		}
	}
}

// doStart issues the start command and, on success, brings the whole
// live-update pipeline up. On failure nothing changes locally.
func (c *Controller) doStart(kind domain.EngineKind, instruments []string) {
	if !kind.Valid() {
		c.view.Notify(LevelError, fmt.Sprintf("Unknown engine kind %q", kind))
		return
	}

	resp, err := c.api.StartTrading(c.runCtx, kind, instruments)
	if err != nil {
		c.log.Errorf("start %s command failed: %v", kind, err)
		c.view.Notify(LevelError, fmt.Sprintf("Failed to start %s trading: %v", kind, err))
		return
	}
	if !resp.Success() {
		msg := resp.Message
		if msg == "" {
			msg = "engine rejected the command"
		}
		c.log.Warnf("start %s rejected: %s", kind, msg)
		c.view.Notify(LevelError, fmt.Sprintf("Failed to start %s trading: %s", kind, msg))
		return
	}

	if kind == domain.EngineOptions {
		c.setState(StateOptions)
	} else {
		c.setState(StateFutures)
	}
	c.log.Infof("%s trading started, instruments=%v", kind, instruments)

	c.openStream()

	// One immediate refresh of stats, history and signal details, then
	// the recurring timers take over.
	c.refreshC.Emit()
	c.refreshSignal()
	c.armTimers()

	c.view.Notify(LevelSuccess, fmt.Sprintf("%s trading started", titleKind(kind)))
}

// probeHealth runs once at startup, off-loop. It surfaces an unreachable
// server immediately and, when the server reports an engine that is
// already running, attaches the console to it.
func (c *Controller) probeHealth(ctx context.Context) {
	h, err := c.api.Health(ctx)
	if err != nil {
		c.log.Warnf("health probe failed: %v", err)
		c.view.Notify(LevelWarn, fmt.Sprintf("Engine server unreachable: %v", err))
		return
	}
	kind := domain.EngineKind(h.ActiveEngine)
	if !kind.Valid() {
		return
	}
	c.enqueue(func() { c.doAttach(kind, h.HasActivePosition) })
}

// doAttach adopts an engine that is already running on the server, wiring
// up the same pipeline a local start would. A session the user started in
// the meantime wins.
func (c *Controller) doAttach(kind domain.EngineKind, hasPosition bool) {
	if c.State() != StateStopped {
		return
	}
	if kind == domain.EngineOptions {
		c.setState(StateOptions)
	} else {
		c.setState(StateFutures)
	}
	c.log.Infof("attached to running %s engine", kind)

	c.openStream()
	c.refreshC.Emit()
	c.refreshSignal()
	if hasPosition {
		c.seedPosition()
	}
	c.armTimers()

	c.view.Notify(LevelInfo, fmt.Sprintf("%s engine already running, attached", titleKind(kind)))
}

// seedPosition fetches the open-position list once so the position card is
// filled before the first position_update arrives.
func (c *Controller) seedPosition() {
	ctx := c.runCtx
	go func() {
		open, err := c.api.Positions(ctx)
		if err != nil {
			c.log.Warnf("positions fetch failed: %v", err)
			return
		}
		if len(open) == 0 {
			return
		}
		c.view.PositionCard(open[0].AsPosition())
	}()
}

// doStop issues the stop command. Once the remote call reports success,
// local cleanup is unconditional: state, stream handle, both poll timers
// and any pending reconnect are all released before anything else runs.
func (c *Controller) doStop() {
	resp, err := c.api.StopTrading(c.runCtx)
	if err != nil {
		c.log.Errorf("stop command failed: %v", err)
		c.view.Notify(LevelError, fmt.Sprintf("Failed to stop trading: %v", err))
		return
	}
	if !resp.Success() {
		msg := resp.Message
		if msg == "" {
			msg = "engine rejected the command"
		}
		c.view.Notify(LevelError, fmt.Sprintf("Failed to stop trading: %s", msg))
		return
	}

	c.setState(StateStopped)
	c.closeStream()
	c.stopTimers()
	c.cancelReconnect()
	c.log.Info("trading stopped")
	c.view.Notify(LevelInfo, "Trading stopped")
}

// openStream dials a fresh handle, defensively closing any previous one
// first so at most one connection ever exists.
func (c *Controller) openStream() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}

	h, err := c.dial(c.runCtx, c.cfg.StreamURL)
	if err != nil {
		c.log.Warnf("stream dial failed: %v, retrying in %s", err, c.cfg.ReconnectDelay)
		c.view.StreamOnline(false)
		c.scheduleReconnect()
		return
	}
	c.handle = h
	c.view.StreamOnline(true)
}

func (c *Controller) closeStream() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.view.StreamOnline(false)
}

// onStreamDown handles a dead handle: while a session is active it starts
// the fixed-delay reconnect cycle; when stopped there is nothing to do.
func (c *Controller) onStreamDown(err error) {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.view.StreamOnline(false)

	if c.State() == StateStopped {
		return
	}
	if err != nil {
		c.log.Warnf("stream down: %v, reconnecting in %s", err, c.cfg.ReconnectDelay)
	} else {
		c.log.Warnf("stream down, reconnecting in %s", c.cfg.ReconnectDelay)
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer, replacing any pending one
// so only a single attempt can ever be outstanding.
func (c *Controller) scheduleReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.reconnect = time.NewTimer(c.cfg.ReconnectDelay)
}

func (c *Controller) cancelReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// onReconnectElapsed reopens the stream if the session is still live. The
// state guard stays even though doStop cancels the timer outright.
func (c *Controller) onReconnectElapsed() {
	c.reconnect = nil
	if c.State() == StateStopped {
		return
	}
	c.openStream()
}

// armTimers starts both poll timers, cancelling any prior instance of the
// same kind first.
func (c *Controller) armTimers() {
	c.stopTimers()
	c.statsTicker = time.NewTicker(c.cfg.StatsInterval)
	c.signalTicker = time.NewTicker(c.cfg.SignalInterval)
}

func (c *Controller) stopTimers() {
	if c.statsTicker != nil {
		c.statsTicker.Stop()
		c.statsTicker = nil
	}
	if c.signalTicker != nil {
		c.signalTicker.Stop()
		c.signalTicker = nil
	}
}

// teardown releases local resources when the loop exits. The remote
// engine is deliberately left alone; Close is not StopEngine.
func (c *Controller) teardown() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.stopTimers()
	c.cancelReconnect()
}

// dispatch routes one inbound event to exactly one downstream handler.
// Unknown kinds (including heartbeats) are ignored, not errors. A payload
// that fails to decode is logged and dropped without touching any state.
func (c *Controller) dispatch(ev stream.Event) {
	switch ev.Type {
	case "market_data":
		var md domain.MarketData
		if err := json.Unmarshal(ev.Data, &md); err != nil {
			c.log.Warnf("bad market_data payload: %v", err)
			return
		}
		c.view.LiveMetrics(md)

	case "trade":
		var ta domain.TradeAlert
		if err := json.Unmarshal(ev.Data, &ta); err != nil {
			c.log.Warnf("bad trade payload: %v", err)
			return
		}
		c.view.Notify(LevelSuccess, fmt.Sprintf("Trade executed: %s %s x%d @ %s",
			ta.Action, ta.Symbol, ta.Quantity, ta.Entry.StringFixed(2)))
		c.refreshC.Emit()

	case "position_update":
		var p domain.Position
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Warnf("bad position_update payload: %v", err)
			return
		}
		c.view.PositionCard(p)

	case "exit":
		var ex domain.ExitAlert
		if err := json.Unmarshal(ev.Data, &ex); err != nil {
			c.log.Warnf("bad exit payload: %v", err)
			return
		}
		level := LevelInfo
		if !ex.Profitable() {
			level = LevelWarn
		}
		c.view.PositionClosed()
		c.view.Notify(level, fmt.Sprintf("Position closed: %s | P&L %s (%.2f%%)",
			ex.Reason, ex.Pnl.StringFixed(2), ex.PnlPercent))
		c.refreshC.Emit()
	}
}

// refreshStatsTrades fetches stats and trade history off-loop. Failures
// are logged and skipped; the next tick retries with no backoff.
func (c *Controller) refreshStatsTrades() {
	if c.State() == StateStopped {
		return
	}
	ctx := c.runCtx
	go func() {
		if st, err := c.api.Stats(ctx); err != nil {
			c.log.Warnf("stats fetch failed: %v", err)
		} else {
			c.view.StatsSummary(*st)
		}
		if trades, err := c.api.Trades(ctx, c.cfg.TradeLimit); err != nil {
			c.log.Warnf("trades fetch failed: %v", err)
		} else {
			c.view.TradeHistory(trades)
		}
	}()
}

// refreshSignal fetches the signal breakdown off-loop.
func (c *Controller) refreshSignal() {
	if c.State() == StateStopped {
		return
	}
	ctx := c.runCtx
	go func() {
		sig, err := c.api.SignalDetails(ctx)
		if err != nil {
			c.log.Warnf("signal fetch failed: %v", err)
			return
		}
		if sig.NoEngine() {
			return
		}
		c.view.SignalUpdate(*sig)
	}()
}

func titleKind(kind domain.EngineKind) string {
	switch kind {
	case domain.EngineOptions:
		return "Options"
	default:
		return "Futures"
	}
}
