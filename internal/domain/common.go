package domain

import "fmt"

// OrderSide represents the side of an order (BUY or SELL) as sent to the exchange.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide is the direction of a position held by the ledger.
type PositionSide int

const (
	Long PositionSide = iota + 1
	Short
)

// String returns the string representation of the PositionSide.
func (s PositionSide) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// EntryOrderSide returns the order side that opens a position in this direction.
func (s PositionSide) EntryOrderSide() OrderSide {
	switch s {
	case Long:
		return Buy
	case Short:
		return Sell
	default:
		panic(fmt.Sprintf("domain: invalid position side %d", int(s)))
	}
}

// ExitOrderSide returns the opposing order side that closes a position in this direction.
func (s PositionSide) ExitOrderSide() OrderSide {
	switch s {
	case Long:
		return Sell
	case Short:
		return Buy
	default:
		panic(fmt.Sprintf("domain: invalid position side %d", int(s)))
	}
}

// Valid reports whether s is one of the declared sides.
func (s PositionSide) Valid() bool {
	return s == Long || s == Short
}

// TradeStatus represents the lifecycle state of a Trade. OPEN -> CLOSED is terminal.
type TradeStatus int

const (
	StatusOpen TradeStatus = iota + 1
	StatusClosed
)

// String returns the string representation of the TradeStatus.
func (s TradeStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Trigger records what caused a ledger operation.
type Trigger string

const (
	TriggerBullishCross Trigger = "BULLISH_CROSS"
	TriggerBearishCross Trigger = "BEARISH_CROSS"
	TriggerManual       Trigger = "MANUAL"
	TriggerShutdown     Trigger = "TRADING_DISABLED"
)
