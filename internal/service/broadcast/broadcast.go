package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/mt5-gateway/internal/constant"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/krobus00/mt5-gateway/internal/registry"
	"github.com/krobus00/mt5-gateway/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultInterval = 1 * time.Second

	placeholderVolume = 1000
	placeholderSize   = 1000
)

// Quoter is the slice of the venue session the broadcaster needs.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*entity.Quote, error)
}

// Broadcaster periodically fans live quotes out to every subscribed client.
// One symbol's quote failure never aborts the tick, and one client's send
// failure never blocks delivery to the rest. When a JetStream context is set,
// each record is also republished to the market_data stream.
type Broadcaster struct {
	registry *registry.Registry
	quotes   Quoter
	js       nats.JetStreamContext
	interval time.Duration
	done     chan struct{}

	// test hooks, defaulted in New
	ticks <-chan time.Time
	now   func() time.Time
}

func New(reg *registry.Registry, quotes Quoter, js nats.JetStreamContext, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Broadcaster{
		registry: reg,
		quotes:   quotes,
		js:       js,
		interval: interval,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Done is closed once Run has fully exited, so shutdown can wait for the last
// tick to finish before releasing the venue session.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.MarketDataStreamName,
		Subjects:  []string{constant.MarketDataStreamSubjectAll},
		Storage:   nats.MemoryStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    5 * time.Minute,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(constant.MarketDataStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.MarketDataStreamName)
		_, err = b.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.MarketDataStreamName)
	_, err = b.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

// Run drives the broadcast loop until ctx is cancelled. Cancellation is
// checked between ticks, never mid-send.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)

	logrus.WithField("interval", b.interval.String()).Info("starting price broadcast loop")

	ticks := b.ticks
	if ticks == nil {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logrus.Info("price broadcast loop stopped")
			return
		case <-ticks:
			b.tick(ctx)
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) {
	symbols := b.registry.ActiveSymbols()
	if len(symbols) == 0 {
		return
	}

	for _, symbol := range symbols {
		quote, err := b.quotes.Quote(ctx, symbol)
		if err != nil {
			logrus.WithField("symbol", symbol).Warnf("quote lookup failed: %v", err)
			continue
		}

		record := b.marketDataFromQuote(quote)

		for _, client := range b.registry.SubscribersOf(symbol) {
			if err := client.Send(record); err != nil {
				logrus.WithFields(logrus.Fields{
					"client_id": client.ID(),
					"symbol":    symbol,
				}).Warnf("dropping client after send failure: %v", err)
				b.registry.Deregister(client.ID())
			}
		}

		if b.js != nil {
			if err := util.PublishEvent(b.js, constant.GetMarketDataTickSubject(symbol), record); err != nil {
				logrus.WithField("symbol", symbol).Warnf("tick publish failed: %v", err)
			}
		}
	}
}

func (b *Broadcaster) marketDataFromQuote(quote *entity.Quote) entity.MarketData {
	return entity.MarketData{
		Type:      entity.MessageTypeMarketData,
		Symbol:    quote.Symbol,
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Open:      quote.Bid,
		High:      quote.Ask,
		Low:       quote.Bid,
		Close:     quote.Bid,
		Volume:    placeholderVolume,
		Bid:       quote.Bid,
		Ask:       quote.Ask,
		BidSize:   placeholderSize,
		AskSize:   placeholderSize,
	}
}
