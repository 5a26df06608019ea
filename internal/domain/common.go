package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// ExecutionType selects which fee schedule applies to every fill of a run.
type ExecutionType string

const (
	ExecutionTaker ExecutionType = "taker"
	ExecutionMaker ExecutionType = "maker"
)

// IsValid reports whether the execution type is one of the known values.
func (e ExecutionType) IsValid() bool {
	return e == ExecutionTaker || e == ExecutionMaker
}

// ExitReason indicates why a simulated position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TakeProfit"
	ExitStopLoss   ExitReason = "StopLoss"
	ExitSellSignal ExitReason = "SellSignal"
	ExitEndOfData  ExitReason = "EndOfData"
)

// ExitReasons lists every reason in priority order, EndOfData last.
func ExitReasons() []ExitReason {
	return []ExitReason{ExitTakeProfit, ExitStopLoss, ExitSellSignal, ExitEndOfData}
}
