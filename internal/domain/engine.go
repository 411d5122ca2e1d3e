package domain

// EngineKind identifies which trading engine a command targets.
type EngineKind string

const (
	EngineFutures EngineKind = "futures"
	EngineOptions EngineKind = "options"
)

// Valid reports whether the kind is one the engine server knows.
func (k EngineKind) Valid() bool {
	return k == EngineFutures || k == EngineOptions
}

// Direction is the side of a position. Futures positions are LONG/SHORT;
// options positions are CE (call) / PE (put), always bought.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionCall  Direction = "CE"
	DirectionPut   Direction = "PE"
)

// Bullish reports whether the direction profits from a rising underlying.
func (d Direction) Bullish() bool {
	return d == DirectionLong || d == DirectionCall
}
