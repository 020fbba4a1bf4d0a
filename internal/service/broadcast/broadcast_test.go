package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/krobus00/mt5-gateway/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuoter struct {
	mu     sync.Mutex
	quotes map[string]*entity.Quote
	errs   map[string]error
	calls  int
}

func (q *fakeQuoter) Quote(ctx context.Context, symbol string) (*entity.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.calls++
	if err, ok := q.errs[symbol]; ok {
		return nil, err
	}

	quote, ok := q.quotes[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return quote, nil
}

type fakeClient struct {
	id      string
	mu      sync.Mutex
	msgs    []any
	sendErr error
}

func (c *fakeClient) ID() string {
	return c.id
}

func (c *fakeClient) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeClient) Close() error {
	return nil
}

func (c *fakeClient) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]any, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func quoteFor(symbol string, bid, ask float64) *entity.Quote {
	return &entity.Quote{Symbol: symbol, Bid: bid, Ask: ask}
}

func TestTickDeliversOnlyToSubscribers(t *testing.T) {
	reg := registry.New()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	reg.Register(a)
	reg.Register(b)
	require.True(t, reg.Subscribe("a", "EURUSD"))
	require.True(t, reg.Subscribe("b", "GBPUSD"))

	quoter := &fakeQuoter{quotes: map[string]*entity.Quote{
		"EURUSD": quoteFor("EURUSD", 1.0850, 1.0852),
		"GBPUSD": quoteFor("GBPUSD", 1.2700, 1.2703),
	}}

	b2 := New(reg, quoter, nil, time.Second)
	b2.tick(context.Background())

	aMsgs := a.received()
	require.Len(t, aMsgs, 1)
	record, ok := aMsgs[0].(entity.MarketData)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", record.Symbol)

	bMsgs := b.received()
	require.Len(t, bMsgs, 1)
	record, ok = bMsgs[0].(entity.MarketData)
	require.True(t, ok)
	assert.Equal(t, "GBPUSD", record.Symbol)
}

func TestMarketDataShapeMirrorsDisplayContract(t *testing.T) {
	reg := registry.New()
	a := &fakeClient{id: "a"}
	reg.Register(a)
	require.True(t, reg.Subscribe("a", "EURUSD"))

	quoter := &fakeQuoter{quotes: map[string]*entity.Quote{
		"EURUSD": quoteFor("EURUSD", 1.0850, 1.0852),
	}}

	fixed := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	b := New(reg, quoter, nil, time.Second)
	b.now = func() time.Time { return fixed }

	b.tick(context.Background())

	msgs := a.received()
	require.Len(t, msgs, 1)
	record := msgs[0].(entity.MarketData)

	assert.Equal(t, entity.MessageTypeMarketData, record.Type)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), record.Timestamp)
	assert.Equal(t, 1.0850, record.Open)
	assert.Equal(t, 1.0852, record.High)
	assert.Equal(t, 1.0850, record.Low)
	assert.Equal(t, 1.0850, record.Close)
	assert.Equal(t, 1.0850, record.Bid)
	assert.Equal(t, 1.0852, record.Ask)
	assert.Equal(t, int64(1000), record.Volume)
	assert.Equal(t, int64(1000), record.BidSize)
	assert.Equal(t, int64(1000), record.AskSize)
	assert.Zero(t, record.Change24h)
	assert.Zero(t, record.ChangePercent24h)
}

func TestQuoteFailureDoesNotAbortTick(t *testing.T) {
	reg := registry.New()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	reg.Register(a)
	reg.Register(b)
	require.True(t, reg.Subscribe("a", "BROKEN"))
	require.True(t, reg.Subscribe("b", "GBPUSD"))

	quoter := &fakeQuoter{
		quotes: map[string]*entity.Quote{"GBPUSD": quoteFor("GBPUSD", 1.2700, 1.2703)},
		errs:   map[string]error{"BROKEN": errors.New("market closed")},
	}

	br := New(reg, quoter, nil, time.Second)
	br.tick(context.Background())

	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestSendFailureDeregistersClientOnly(t *testing.T) {
	reg := registry.New()
	broken := &fakeClient{id: "broken", sendErr: entity.ErrClientClosed}
	healthy := &fakeClient{id: "healthy"}
	reg.Register(broken)
	reg.Register(healthy)
	require.True(t, reg.Subscribe("broken", "EURUSD"))
	require.True(t, reg.Subscribe("healthy", "EURUSD"))

	quoter := &fakeQuoter{quotes: map[string]*entity.Quote{
		"EURUSD": quoteFor("EURUSD", 1.0850, 1.0852),
	}}

	b := New(reg, quoter, nil, time.Second)
	b.tick(context.Background())

	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, 1, reg.Len())

	subscribers := reg.SubscribersOf("EURUSD")
	require.Len(t, subscribers, 1)
	assert.Equal(t, "healthy", subscribers[0].ID())

	// next tick no longer touches the dropped client
	b.tick(context.Background())
	assert.Empty(t, broken.received())
}

func TestEmptyActiveSetSkipsVenue(t *testing.T) {
	reg := registry.New()
	quoter := &fakeQuoter{}

	b := New(reg, quoter, nil, time.Second)
	b.tick(context.Background())

	assert.Zero(t, quoter.calls)
}

func TestRunHonoursInjectedTicksAndCancellation(t *testing.T) {
	reg := registry.New()
	a := &fakeClient{id: "a"}
	reg.Register(a)
	require.True(t, reg.Subscribe("a", "EURUSD"))

	quoter := &fakeQuoter{quotes: map[string]*entity.Quote{
		"EURUSD": quoteFor("EURUSD", 1.0850, 1.0852),
	}}

	ticks := make(chan time.Time)
	b := New(reg, quoter, nil, time.Second)
	b.ticks = ticks

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	ticks <- time.Now()
	ticks <- time.Now()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast loop did not stop after cancellation")
	}

	// Done reports completion only after Run has fully returned
	select {
	case <-b.Done():
	default:
		t.Fatal("Done not closed after Run exited")
	}

	assert.Len(t, a.received(), 2)
}

func TestDoneStaysOpenWhileRunning(t *testing.T) {
	reg := registry.New()
	quoter := &fakeQuoter{}

	ticks := make(chan time.Time)
	b := New(reg, quoter, nil, time.Second)
	b.ticks = ticks

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	select {
	case <-b.Done():
		t.Fatal("Done closed while loop still running")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after cancellation")
	}
}
