// Package tui renders the live desk in the terminal with Bubble Tea.
//
// The Dashboard is the renderer side of the session controller: every
// update lands in a snapshot behind a mutex and is pushed to the UI over
// a latest-wins channel, so a slow terminal can never back-pressure the
// controller.
package tui

import (
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/internal/session"
)

var log = logrus.WithField("module", "tui")

// maxNotices bounds the notification feed shown on screen.
const maxNotices = 6

// maxTradeRows bounds the trade history table.
const maxTradeRows = 10

// Controls is the operation surface the keybindings drive.
type Controls interface {
	StartEngine(kind domain.EngineKind, instruments []string)
	StopEngine()
}

// Options tunes the dashboard.
type Options struct {
	Title              string
	FuturesInstruments []string
	OptionsInstruments []string
}

// Notice is one entry of the on-screen notification feed.
type Notice struct {
	At      time.Time
	Level   session.Level
	Message string
}

// Snapshot is everything the view needs for one frame.
type Snapshot struct {
	Title        string
	State        session.State
	StreamOnline bool

	HasMarket bool
	Market    domain.MarketData

	HasSignal bool
	Signal    domain.SignalDetails

	Position *domain.Position

	Trades []domain.TradeRecord
	Stats  domain.Stats

	Notices []Notice
}

// Dashboard implements session.Renderer on top of a Bubble Tea program.
type Dashboard struct {
	ctrl Controls
	opts Options

	mu       sync.RWMutex
	snapshot *Snapshot
	program  *tea.Program

	updateCh chan *Snapshot
	done     chan struct{}
}

// New creates the dashboard. Wire the controls with SetControls before Run;
// the controller needs the renderer first, so construction is two-phase.
func New(opts Options) *Dashboard {
	if opts.Title == "" {
		opts.Title = "Live Desk"
	}
	return &Dashboard{
		opts:     opts,
		snapshot: &Snapshot{Title: opts.Title},
		updateCh: make(chan *Snapshot, 1),
		done:     make(chan struct{}),
	}
}

// SetControls binds the operation surface driven by the keybindings.
func (d *Dashboard) SetControls(ctrl Controls) {
	d.mu.Lock()
	d.ctrl = ctrl
	d.mu.Unlock()
}

// Run blocks until the user quits or the program fails. It must run on
// the main goroutine; Bubble Tea owns the terminal while it is up.
func (d *Dashboard) Run() error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Warn("stdout is not a terminal, dashboard disabled")
		<-d.done
		return nil
	}

	d.mu.Lock()
	m := newModel(d.updateCh, d)
	d.program = tea.NewProgram(m, tea.WithAltScreen())
	d.mu.Unlock()

	_, err := d.program.Run()
	return err
}

// Stop quits the program. Safe to call whether or not Run is active.
func (d *Dashboard) Stop() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	d.mu.RLock()
	prog := d.program
	d.mu.RUnlock()
	if prog != nil {
		prog.Quit()
	}
}

// startFutures and the two siblings run on the Bubble Tea goroutine via
// keybindings; the controller queues them, so they return immediately.
func (d *Dashboard) startFutures() {
	d.mu.RLock()
	ctrl, instruments := d.ctrl, d.opts.FuturesInstruments
	d.mu.RUnlock()
	if ctrl != nil {
		ctrl.StartEngine(domain.EngineFutures, instruments)
	}
}

func (d *Dashboard) startOptions() {
	d.mu.RLock()
	ctrl, instruments := d.ctrl, d.opts.OptionsInstruments
	d.mu.RUnlock()
	if ctrl != nil {
		ctrl.StartEngine(domain.EngineOptions, instruments)
	}
}

func (d *Dashboard) stopTrading() {
	d.mu.RLock()
	ctrl := d.ctrl
	d.mu.RUnlock()
	if ctrl != nil {
		ctrl.StopEngine()
	}
}

// session.Renderer implementation. Each method mutates the snapshot under
// the lock and pushes a copy; they are called from the controller loop and
// its fetch goroutines concurrently.

func (d *Dashboard) SessionChanged(state session.State) {
	d.mutate(func(s *Snapshot) {
		s.State = state
		if state == session.StateStopped {
			s.Position = nil
			s.HasSignal = false
		}
	})
}

func (d *Dashboard) StreamOnline(online bool) {
	d.mutate(func(s *Snapshot) { s.StreamOnline = online })
}

func (d *Dashboard) LiveMetrics(md domain.MarketData) {
	d.mutate(func(s *Snapshot) {
		s.Market = md
		s.HasMarket = true
	})
}

func (d *Dashboard) SignalUpdate(sig domain.SignalDetails) {
	d.mutate(func(s *Snapshot) {
		s.Signal = sig
		s.HasSignal = true
	})
}

func (d *Dashboard) PositionCard(p domain.Position) {
	d.mutate(func(s *Snapshot) { s.Position = &p })
}

func (d *Dashboard) PositionClosed() {
	d.mutate(func(s *Snapshot) { s.Position = nil })
}

func (d *Dashboard) TradeHistory(trades []domain.TradeRecord) {
	d.mutate(func(s *Snapshot) { s.Trades = trades })
}

func (d *Dashboard) StatsSummary(st domain.Stats) {
	d.mutate(func(s *Snapshot) { s.Stats = st })
}

func (d *Dashboard) Notify(level session.Level, message string) {
	d.mutate(func(s *Snapshot) {
		s.Notices = append(s.Notices, Notice{At: time.Now(), Level: level, Message: message})
		if len(s.Notices) > maxNotices {
			s.Notices = s.Notices[len(s.Notices)-maxNotices:]
		}
	})
}

// GetSnapshot returns a copy of the current snapshot.
func (d *Dashboard) GetSnapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copySnapshot(d.snapshot)
}

func (d *Dashboard) mutate(fn func(*Snapshot)) {
	d.mu.Lock()
	fn(d.snapshot)
	snap := copySnapshot(d.snapshot)
	prog := d.program
	d.mu.Unlock()
	d.push(snap, prog)
}

// push drains any stale snapshot and queues the latest, then nudges the
// program so the frame lands even between ticks.
func (d *Dashboard) push(snap *Snapshot, prog *tea.Program) {
	for {
		select {
		case <-d.updateCh:
		default:
			goto drained
		}
	}
drained:
	select {
	case d.updateCh <- snap:
	default:
	}
	if prog != nil {
		prog.Send(updateMsg{snapshot: snap})
	}
}

func copySnapshot(in *Snapshot) *Snapshot {
	out := *in
	if in.Position != nil {
		p := *in.Position
		out.Position = &p
	}
	out.Trades = make([]domain.TradeRecord, len(in.Trades))
	copy(out.Trades, in.Trades)
	out.Notices = make([]Notice, len(in.Notices))
	copy(out.Notices, in.Notices)
	if in.Signal.OrderBook != nil {
		ob := *in.Signal.OrderBook
		out.Signal.OrderBook = &ob
	}
	if in.Signal.Greeks != nil {
		g := *in.Signal.Greeks
		out.Signal.Greeks = &g
	}
	return &out
}
