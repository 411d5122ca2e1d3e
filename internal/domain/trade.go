package domain

import (
	"github.com/shopspring/decimal"
)

// TradeRecord is one row of the engine's trade history, most recent first.
// Records are fetched on demand and discarded on the next refresh; the
// console keeps no local store. Timestamps come over the wire as the
// server's formatted strings and are shown as-is.
type TradeRecord struct {
	ID         int64            `json:"id"`
	Symbol     string           `json:"symbol"`
	TradeType  Direction        `json:"trade_type"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	Target     *decimal.Decimal `json:"target,omitempty"`
	Quantity   int              `json:"quantity"`
	EntryTime  string           `json:"entry_time"`
	ExitTime   string           `json:"exit_time,omitempty"`
	Pnl        *decimal.Decimal `json:"pnl,omitempty"`
	PnlPercent *float64         `json:"pnl_percent,omitempty"`
	Status     string           `json:"status"`
	ExitReason string           `json:"exit_reason,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Score      float64          `json:"score,omitempty"`
}

// Open reports whether the trade is still an open position.
func (t *TradeRecord) Open() bool {
	return t.Status == "OPEN"
}

// AsPosition converts an open-position row into the card shape pushed on
// position_update events. Missing prices map to zero.
func (t *TradeRecord) AsPosition() Position {
	p := Position{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		TradeType:  t.TradeType,
		Entry:      t.EntryPrice,
		Quantity:   t.Quantity,
		Confidence: t.Confidence,
		Score:      t.Score,
	}
	if t.TradeType == DirectionCall || t.TradeType == DirectionPut {
		p.OptionType = t.TradeType
	}
	if t.StopLoss != nil {
		p.StopLoss = *t.StopLoss
	}
	if t.Target != nil {
		p.Target = *t.Target
	}
	return p
}

// Stats are the derived aggregates the engine computes over closed trades.
// They are polled, never pushed incrementally.
type Stats struct {
	TotalPnl    decimal.Decimal `json:"total_pnl"`
	WinRate     float64         `json:"win_rate"`
	TotalTrades int             `json:"total_trades"`
}
