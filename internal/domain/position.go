package domain

import (
	"github.com/shopspring/decimal"
)

// Position is the engine's active position as pushed on position_update
// events. It is replaced wholesale on every update; the console never
// merges or patches it.
type Position struct {
	TradeID    int64           `json:"trade_id"`
	OrderID    string          `json:"order_id,omitempty"`
	Symbol     string          `json:"symbol"`
	TradeType  Direction       `json:"type"`
	OptionType Direction       `json:"option_type,omitempty"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	Target     decimal.Decimal `json:"target"`
	Quantity   int             `json:"quantity"`
	Confidence float64         `json:"confidence,omitempty"`
	Score      float64         `json:"score,omitempty"`
	Delta      float64         `json:"delta,omitempty"`
	EntryTime  float64         `json:"entry_time,omitempty"` // unix seconds
}

// Direction resolves the display direction: CE/PE for options positions,
// LONG/SHORT otherwise.
func (p *Position) Direction() Direction {
	if p.OptionType != "" {
		return p.OptionType
	}
	return p.TradeType
}

// TradeAlert is the payload of a trade push event: the decision that was
// just executed, used only for the notification line.
type TradeAlert struct {
	Action     string          `json:"action"`
	Symbol     string          `json:"symbol"`
	Entry      decimal.Decimal `json:"entry"`
	Quantity   int             `json:"quantity"`
	TradeID    int64           `json:"trade_id,omitempty"`
	EngineType EngineKind      `json:"engine_type,omitempty"`
}

// ExitAlert is the payload of an exit push event.
type ExitAlert struct {
	Reason     string          `json:"reason"`
	Pnl        decimal.Decimal `json:"pnl"`
	PnlPercent float64         `json:"pnl_percent"`
}

// Profitable reports whether the closed position made money.
func (e *ExitAlert) Profitable() bool {
	return !e.Pnl.IsNegative()
}
