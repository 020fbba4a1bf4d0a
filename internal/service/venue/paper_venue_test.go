package venue

import (
	"context"
	"testing"

	"github.com/krobus00/mt5-gateway/internal/constant"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperVenueOpenAndCloseLifecycle(t *testing.T) {
	venue := NewPaperVenue()
	ctx := context.Background()

	require.False(t, venue.Connected())
	require.NoError(t, venue.Login(ctx))
	require.True(t, venue.Connected())

	ack, err := venue.PlaceOrder(ctx, entity.TradeRequest{
		Symbol: "EURUSD",
		Side:   entity.TradeSideBuy,
		Volume: decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, constant.TradeRetcodeDone, ack.Retcode)
	assert.NotZero(t, ack.Ticket)

	position, err := venue.Position(ctx, ack.Ticket)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", position.Symbol)
	assert.Equal(t, entity.TradeSideBuy, position.Side)
	assert.True(t, position.Volume.Equal(decimal.NewFromFloat(0.1)))

	closeAck, err := venue.PlaceOrder(ctx, entity.TradeRequest{
		Symbol:         "EURUSD",
		Side:           entity.TradeSideSell,
		Volume:         position.Volume,
		PositionTicket: ack.Ticket,
	})
	require.NoError(t, err)
	assert.Equal(t, constant.TradeRetcodeDone, closeAck.Retcode)

	_, err = venue.Position(ctx, ack.Ticket)
	require.ErrorIs(t, err, entity.ErrPositionNotFound)

	require.NoError(t, venue.Close(ctx))
	assert.False(t, venue.Connected())
	require.NoError(t, venue.Close(ctx))
}

func TestPaperVenueQuoteWalksAroundSeed(t *testing.T) {
	venue := NewPaperVenue()

	quote, err := venue.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0850, quote.Bid, 0.01)
	assert.Greater(t, quote.Ask, quote.Bid)

	_, err = venue.Quote(context.Background(), "DOGEUSD")
	require.Error(t, err)
}

func TestPaperVenueRejectsUnknownSymbolOrder(t *testing.T) {
	venue := NewPaperVenue()

	ack, err := venue.PlaceOrder(context.Background(), entity.TradeRequest{
		Symbol: "DOGEUSD",
		Side:   entity.TradeSideBuy,
		Volume: decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	assert.NotEqual(t, constant.TradeRetcodeDone, ack.Retcode)
}
