package domain

import "time"

// Trade is a position opened by the ledger. It is created OPEN by a successful open
// and mutated exactly once by the matching close.
type Trade struct {
	ID            string
	Symbol        string
	Side          PositionSide
	EntryPrice    float64
	EntryQuantity float64
	EntryTime     time.Time
	ExitPrice     *float64
	ExitQuantity  *float64
	ExitTime      *time.Time
	PNL           float64
	PNLPct        float64
	Status        TradeStatus
	Trigger       Trigger // What opened the trade
	ExitTrigger   Trigger // What closed the trade; empty while open
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// Notional returns the entry value of the trade.
func (t *Trade) Notional() float64 {
	return t.EntryPrice * t.EntryQuantity
}

// Clone returns a deep copy of the trade. The copy shares no exit fields with t.
func (t *Trade) Clone() Trade {
	c := *t
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		c.ExitPrice = &v
	}
	if t.ExitQuantity != nil {
		v := *t.ExitQuantity
		c.ExitQuantity = &v
	}
	if t.ExitTime != nil {
		v := *t.ExitTime
		c.ExitTime = &v
	}
	return c
}
