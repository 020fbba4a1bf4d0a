package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/krobus00/mt5-gateway/internal/constant"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaperVenue simulates the venue in memory for local development and tests.
// Quotes follow a small random walk around seeded mid prices; orders always
// fill at the current quote and open tracked positions.
type PaperVenue struct {
	mu         sync.Mutex
	rng        *rand.Rand
	mids       map[string]float64
	positions  map[int64]*entity.Position
	nextTicket int64
	balance    decimal.Decimal
	connected  bool
}

func NewPaperVenue() *PaperVenue {
	return &PaperVenue{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		mids: map[string]float64{
			"EURUSD": 1.0850,
			"GBPUSD": 1.2700,
			"USDJPY": 147.20,
			"XAUUSD": 2380.0,
		},
		positions:  make(map[int64]*entity.Position),
		nextTicket: 100000,
		balance:    decimal.NewFromInt(10000),
	}
}

func (v *PaperVenue) Login(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.connected = true
	logrus.Info("paper venue session started")

	return nil
}

func (v *PaperVenue) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.connected
}

func (v *PaperVenue) Quote(ctx context.Context, symbol string) (*entity.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	mid, ok := v.mids[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	// random walk, ±2 basis points per tick
	mid *= 1 + (v.rng.Float64()-0.5)*0.0004
	v.mids[symbol] = mid

	spreadValue := mid * 0.0001
	return &entity.Quote{
		Symbol:    symbol,
		Bid:       mid - spreadValue/2,
		Ask:       mid + spreadValue/2,
		Spread:    10,
		Digits:    5,
		Point:     0.00001,
		VolumeMin: 0.01,
		VolumeMax: 100,
		Time:      time.Now().Unix(),
	}, nil
}

func (v *PaperVenue) PlaceOrder(ctx context.Context, req entity.TradeRequest) (*entity.OrderAck, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("unsupported trade side: %s", req.Side)
	}

	quote, err := v.Quote(ctx, req.Symbol)
	if err != nil {
		return &entity.OrderAck{Retcode: 10013, Comment: "Invalid request"}, nil
	}

	fill := quote.Ask
	if req.Side == entity.TradeSideSell {
		fill = quote.Bid
	}
	fillPrice := decimal.NewFromFloat(fill)

	v.mu.Lock()
	defer v.mu.Unlock()

	if req.PositionTicket != 0 {
		delete(v.positions, req.PositionTicket)
		return &entity.OrderAck{
			Retcode: constant.TradeRetcodeDone,
			Ticket:  req.PositionTicket,
			Price:   fillPrice,
			Comment: "Request executed",
		}, nil
	}

	v.nextTicket++
	ticket := v.nextTicket
	v.positions[ticket] = &entity.Position{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    req.Volume,
		OpenPrice: fillPrice,
	}

	return &entity.OrderAck{
		Retcode: constant.TradeRetcodeDone,
		Ticket:  ticket,
		Price:   fillPrice,
		Comment: "Request executed",
	}, nil
}

func (v *PaperVenue) Close(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.connected {
		v.connected = false
		logrus.Info("paper venue session released")
	}

	return nil
}

func (v *PaperVenue) Position(ctx context.Context, ticket int64) (*entity.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	position, ok := v.positions[ticket]
	if !ok {
		return nil, entity.ErrPositionNotFound
	}

	copied := *position
	return &copied, nil
}

func (v *PaperVenue) Account(ctx context.Context) (*entity.AccountSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance, _ := v.balance.Float64()
	return &entity.AccountSnapshot{
		Login:       0,
		Balance:     balance,
		Equity:      balance,
		FreeMargin:  balance,
		MarginLevel: 0,
		Currency:    "USD",
		Server:      "paper",
		Leverage:    100,
	}, nil
}
