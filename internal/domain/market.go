package domain

import (
	"github.com/shopspring/decimal"
)

// MarketData is a live tick pushed by the engine. Futures ticks carry VWAP;
// options ticks carry per-tick Greeks instead.
type MarketData struct {
	LTP        decimal.Decimal  `json:"ltp"`
	Pressure   float64          `json:"pressure"`
	Delta      float64          `json:"delta,omitempty"`
	Gamma      float64          `json:"gamma,omitempty"`
	IV         float64          `json:"iv,omitempty"`
	VWAP       *decimal.Decimal `json:"vwap,omitempty"`
	EngineType EngineKind       `json:"engine_type,omitempty"`
}

// OrderBookTiers is the externally computed bid/ask pressure at three
// depth tiers. Tier imbalances are in [-1, 1] and the weighted
// PressureScore in [-100, 100]; positive means bid pressure.
type OrderBookTiers struct {
	PressureScore float64 `json:"pressure_score"`
	Top5          float64 `json:"top5_imb"`
	Mid10         float64 `json:"mid10_imb"`
	Deep15        float64 `json:"deep15_imb"`
	SpreadPercent float64 `json:"spread_percent"`
}

// Greeks are the option sensitivities reported by the options engine.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	IV    float64 `json:"iv"`
}

// SignalDetails is the engine's current decision summary, polled for
// display. When no engine is active the server answers with
// Status == "no_engine" and everything else zeroed.
type SignalDetails struct {
	Status     string          `json:"status,omitempty"`
	Action     string          `json:"action"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
	Reasons    []string        `json:"reasons,omitempty"`
	OrderBook  *OrderBookTiers `json:"order_book,omitempty"`
	Greeks     *Greeks         `json:"greeks,omitempty"`
	EngineType EngineKind      `json:"engine_type,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// NoEngine reports whether the server had no active engine to summarize.
func (s *SignalDetails) NoEngine() bool {
	return s.Status == "no_engine"
}
