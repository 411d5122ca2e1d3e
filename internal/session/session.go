// Package session owns the live-update session: the engine activation
// state, the one push-stream handle, and the two polling timers that
// backstop it. All of that state is confined to a single event loop; the
// renderer and the HTTP client are collaborators, never owners.
package session

import (
	"context"
	"time"

	"github.com/quantra/livedesk/internal/api"
	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/internal/stream"
)

// State is the engine activation state. Exactly one value at a time;
// transitions happen only through StartEngine/StopEngine, never inferred
// from stream content.
type State int32

const (
	StateStopped State = iota
	StateFutures
	StateOptions
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateFutures:
		return "futures"
	case StateOptions:
		return "options"
	default:
		return "unknown"
	}
}

// Level is the severity of a user notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Renderer is the display collaborator. The controller hands it parsed,
// typed view data; raw wire payloads never cross this boundary. All calls
// originate from the controller loop or its fetch goroutines, so
// implementations must be safe for concurrent use.
type Renderer interface {
	SessionChanged(state State)
	StreamOnline(online bool)
	LiveMetrics(md domain.MarketData)
	SignalUpdate(sig domain.SignalDetails)
	PositionCard(p domain.Position)
	PositionClosed()
	TradeHistory(trades []domain.TradeRecord)
	StatsSummary(st domain.Stats)
	Notify(level Level, message string)
}

// EngineAPI is the slice of the engine client the controller uses.
type EngineAPI interface {
	StartTrading(ctx context.Context, kind domain.EngineKind, instruments []string) (*api.CommandResponse, error)
	StopTrading(ctx context.Context) (*api.CommandResponse, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Trades(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	SignalDetails(ctx context.Context) (*domain.SignalDetails, error)
	Positions(ctx context.Context) ([]domain.TradeRecord, error)
	Health(ctx context.Context) (*api.HealthStatus, error)
}

// StreamHandle is one live push-stream connection as the controller sees
// it. The controller is its exclusive owner.
type StreamHandle interface {
	Events() <-chan stream.Event
	Done() <-chan error
	Close()
}

// StreamDialer opens a fresh stream connection.
type StreamDialer func(ctx context.Context, url string) (StreamHandle, error)

// Config tunes the controller cadences.
type Config struct {
	StreamURL      string
	StatsInterval  time.Duration // stats + trade history poll, default 5s
	SignalInterval time.Duration // signal detail poll, default 2s
	ReconnectDelay time.Duration // fixed stream reconnect delay, default 5s
	TradeLimit     int           // trade history fetch size, default 50
}

func (c *Config) applyDefaults() {
	if c.StatsInterval <= 0 {
		c.StatsInterval = 5 * time.Second
	}
	if c.SignalInterval <= 0 {
		c.SignalInterval = 2 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.TradeLimit <= 0 {
		c.TradeLimit = 50
	}
}
