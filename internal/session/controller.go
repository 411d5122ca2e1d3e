package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/pkg/sigchan"
)

// Controller mediates the engine lifecycle and keeps the live-update
// pipeline (stream + polling) in sync with it.
//
// Operations are enqueued onto the loop and executed one at a time, in
// order; the loop never runs two commands concurrently. Poll fetches run
// in short-lived goroutines so a hung remote call stalls only that one
// logical operation, never the loop or the other timer.
type Controller struct {
	api  EngineAPI
	dial StreamDialer
	view Renderer
	cfg  Config
	log  *logrus.Entry

	// state is the published copy for State(); the authoritative value
	// lives on the loop.
	state atomic.Int32

	cmdC     chan func()
	refreshC *sigchan.Chan // coalesced stats+history refresh requests

	// Loop-owned; touched only from run().
	handle       StreamHandle
	statsTicker  *time.Ticker
	signalTicker *time.Ticker
	reconnect    *time.Timer
	runCtx       context.Context

	loopOnce   sync.Once
	loopCancel context.CancelFunc
	doneC      chan struct{}
}

// NewController wires the controller to its collaborators. Call Run
// before issuing operations.
func NewController(engineAPI EngineAPI, dial StreamDialer, view Renderer, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		api:      engineAPI,
		dial:     dial,
		view:     view,
		cfg:      cfg,
		log:      logrus.WithField("module", "session"),
		cmdC:     make(chan func(), 8),
		refreshC: sigchan.New(1),
		doneC:    make(chan struct{}),
	}
}

// Run starts the controller loop. Subsequent calls are no-ops.
func (c *Controller) Run(ctx context.Context) {
	c.loopOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		c.loopCancel = cancel
		c.runCtx = loopCtx
		go c.run(loopCtx)
		go c.probeHealth(loopCtx)
	})
}

// Close stops the loop and releases the stream handle and timers. It does
// not issue a remote stop command; use StopEngine for that.
func (c *Controller) Close() {
	if c.loopCancel == nil {
		return
	}
	c.loopCancel()
	<-c.doneC
}

// State returns the current engine activation state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// StartEngine requests a start of the given engine kind. The result is
// surfaced through the renderer as exactly one notification; on failure
// the session state is left untouched.
func (c *Controller) StartEngine(kind domain.EngineKind, instruments []string) {
	c.enqueue(func() { c.doStart(kind, instruments) })
}

// StopEngine requests a stop of the active engine.
func (c *Controller) StopEngine() {
	c.enqueue(c.doStop)
}

func (c *Controller) enqueue(fn func()) {
	select {
	case c.cmdC <- fn:
	case <-c.doneC:
		c.log.Warn("controller closed, operation dropped")
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.view.SessionChanged(s)
}
