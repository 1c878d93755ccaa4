package domain

// BarSource supplies the aligned, gap-free bar history the engine runs over.
// Implementations are read-only and append-only; the engine never asks for
// a bar past the index it is currently processing.
type BarSource interface {
	// NumBars returns the number of aligned bars available per symbol.
	NumBars() int

	// Bar returns the bar for symbol at index i (0-based, oldest first).
	Bar(symbol string, i int) (Bar, error)
}

// OrderSink receives the trades a run emits. The backtester records them;
// the live evaluator forwards them to a broker collaborator.
type OrderSink interface {
	SubmitOrder(trade Trade) error
}
