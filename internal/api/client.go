// Package api is the HTTP client for the trading engine's control and
// query endpoints.
package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantra/livedesk/internal/domain"
)

const (
	pathStartFutures = "/api/start-trading"
	pathStartOptions = "/api/start-options-trading"
	pathStop         = "/api/stop-trading"
	pathStats        = "/api/stats"
	pathTrades       = "/api/trades"
	pathSignal       = "/api/signal-details"
	pathPositions    = "/api/positions"
	pathHealth       = "/api/health"
)

// CommandResponse is the engine's answer to a start or stop command.
type CommandResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Engine  string `json:"engine,omitempty"`
}

// Success reports whether the engine accepted the command.
func (r *CommandResponse) Success() bool {
	return r.Status == "success"
}

// HealthStatus is the engine's health summary.
type HealthStatus struct {
	Status            string `json:"status"`
	ActiveEngine      string `json:"active_engine"`
	HasActivePosition bool   `json:"has_active_position"`
}

// Client talks to the engine server. Commands (start/stop) are issued
// exactly once: a failed command surfaces to the caller instead of being
// retried here. Read-only queries retry on transient failures and honor
// Retry-After on 429.
type Client struct {
	cmd   *resty.Client
	query *resty.Client
	log   *logrus.Entry
}

// NewClient creates a client for the engine server at base (e.g.
// "http://localhost:5000").
func NewClient(base string) *Client {
	base = strings.TrimRight(base, "/")

	newBase := func() *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "livedesk/1.0")
	}

	query := newBase().
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{
		cmd:   newBase(),
		query: query,
		log:   logrus.WithField("module", "api"),
	}
}

// StartTrading asks the engine server to start the given engine kind with
// the given instrument keys. A non-nil error means the command never got a
// usable answer; otherwise inspect CommandResponse.Success.
func (c *Client) StartTrading(ctx context.Context, kind domain.EngineKind, instruments []string) (*CommandResponse, error) {
	path := pathStartFutures
	if kind == domain.EngineOptions {
		path = pathStartOptions
	}

	var ok, fail CommandResponse
	resp, err := c.cmd.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"instruments": instruments}).
		SetResult(&ok).
		SetError(&fail).
		Post(path)
	if err != nil {
		return nil, errors.Wrapf(err, "start %s command", kind)
	}
	if resp.IsError() {
		if fail.Status == "" {
			fail.Status = "error"
			fail.Message = resp.Status()
		}
		c.log.Warnf("start %s rejected: %s", kind, fail.Message)
		return &fail, nil
	}
	return &ok, nil
}

// StopTrading asks the engine server to stop the active engine.
func (c *Client) StopTrading(ctx context.Context) (*CommandResponse, error) {
	var ok, fail CommandResponse
	resp, err := c.cmd.R().
		SetContext(ctx).
		SetResult(&ok).
		SetError(&fail).
		Post(pathStop)
	if err != nil {
		return nil, errors.Wrap(err, "stop command")
	}
	if resp.IsError() {
		if fail.Status == "" {
			fail.Status = "error"
			fail.Message = resp.Status()
		}
		c.log.Warnf("stop rejected: %s", fail.Message)
		return &fail, nil
	}
	return &ok, nil
}

// Stats fetches the derived trading aggregates.
func (c *Client) Stats(ctx context.Context) (*domain.Stats, error) {
	var out domain.Stats
	if err := c.get(ctx, pathStats, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades fetches the trade history, most recent first.
func (c *Client) Trades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.TradeRecord
	params := map[string]string{"limit": strconv.Itoa(limit)}
	if err := c.get(ctx, pathTrades, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SignalDetails fetches the engine's current signal breakdown.
func (c *Client) SignalDetails(ctx context.Context) (*domain.SignalDetails, error) {
	var out domain.SignalDetails
	if err := c.get(ctx, pathSignal, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions fetches the open positions list.
func (c *Client) Positions(ctx context.Context) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	if err := c.get(ctx, pathPositions, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health fetches the engine server health summary.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.get(ctx, pathHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.query.R().SetContext(ctx).SetResult(out)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if resp.IsError() {
		return errors.Errorf("GET %s: %s", path, resp.Status())
	}
	return nil
}
