// Package stream reads the engine server's server-sent-event stream.
//
// A Handle owns exactly one connection. It never reconnects by itself:
// when the transport fails, Done delivers the error once and the handle is
// finished. The session controller decides whether to dial a fresh one.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// eventBuffer absorbs short dispatch stalls; the controller consumes
	// sequentially so this stays near empty in practice.
	eventBuffer = 256

	// maxFrameBytes bounds a single SSE frame.
	maxFrameBytes = 1 << 20
)

// Event is one inbound push message: a kind tag plus the kind-specific
// payload, left opaque for the dispatcher to decode.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handle is one live stream connection.
type Handle struct {
	events chan Event
	done   chan error

	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64

	log *logrus.Entry
}

// Dial opens the stream at url and starts reading. The returned handle is
// live until Close is called or the transport fails.
func Dial(ctx context.Context, url string) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "stream request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No client timeout: the connection is long-lived by design.
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "stream connect")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, errors.Errorf("stream connect: unexpected status %d", resp.StatusCode)
	}

	h := &Handle{
		events: make(chan Event, eventBuffer),
		done:   make(chan error, 1),
		cancel: cancel,
		log:    logrus.WithField("module", "stream"),
	}

	go h.readLoop(ctx, resp.Body)

	h.log.Infof("stream connected: %s", url)
	return h, nil
}

// Events is the inbound event channel. It is closed when the handle dies.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Done delivers the terminal transport error, once, unless the handle was
// closed locally.
func (h *Handle) Done() <-chan error {
	return h.done
}

// Close tears the connection down. Safe to call from any state, any
// number of times.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.cancel()
	})
}

// Dropped returns how many malformed frames were discarded.
func (h *Handle) Dropped() int64 {
	return h.dropped.Load()
}

// readLoop scans SSE frames until the body errors out or the handle is
// closed. A frame is the data lines up to a blank line; comment lines
// (leading colon) are keepalive noise and skipped.
func (h *Handle) readLoop(ctx context.Context, body io.ReadCloser) {
	defer close(h.events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ":") {
			continue
		}
		if line == "" {
			if len(data) > 0 {
				h.emit(ctx, strings.Join(data, "\n"))
				data = data[:0]
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// Other SSE fields (event:, id:, retry:) are not used by the
		// engine server and are ignored.
	}

	if h.closed.Load() || ctx.Err() != nil {
		h.log.Debug("stream closed locally")
		return
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("stream ended by server")
	}
	h.log.Warnf("stream transport error: %v", err)
	h.done <- err
}

// emit parses one frame and queues it. A parse failure is logged and the
// frame dropped; it neither closes the stream nor reaches the dispatcher.
func (h *Handle) emit(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.dropped.Add(1)
		h.log.Warnf("dropping malformed stream frame: %v", err)
		return
	}

	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}
