package entity

import (
	"errors"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

var ErrPositionNotFound = errors.New("position not found")

func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Opposite returns the side that flattens a position held on s.
func (s TradeSide) Opposite() TradeSide {
	if s == TradeSideBuy {
		return TradeSideSell
	}
	return TradeSideBuy
}

// TradeRequest is a single-shot order submission to the venue. Price may be
// nil, in which case the caller fills it from a fresh quote before submitting.
// PositionTicket is set only when the order flattens an existing position.
type TradeRequest struct {
	Symbol         string
	Side           TradeSide
	Volume         decimal.Decimal
	Price          *decimal.Decimal
	StopLoss       decimal.Decimal
	TakeProfit     decimal.Decimal
	Comment        string
	PositionTicket int64
}

// OrderAck is the venue's raw answer to an order submission. A transport or
// session error is returned separately; Retcode carries the venue's verdict.
type OrderAck struct {
	Retcode int32
	Ticket  int64
	Price   decimal.Decimal
	Comment string
}

// TradeResult is produced once per trade or close command and returned to the
// requesting client only, never broadcast.
type TradeResult struct {
	Success      bool
	Ticket       int64
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Symbol       string
	Side         TradeSide
	ErrorMessage string
	Retcode      int32
}

// Position is an open position as reported by the venue.
type Position struct {
	Ticket    int64
	Symbol    string
	Side      TradeSide
	Volume    decimal.Decimal
	OpenPrice decimal.Decimal
}
