package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/krobus00/mt5-gateway/internal/config"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T, handler http.HandlerFunc) (*MT5Venue, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	venue := NewMT5Venue(config.VenueConfig{
		BaseURL:  srv.URL,
		Login:    103936248,
		Password: "secret",
		Server:   "FBS-Demo",
	})
	return venue, srv
}

func writeBridgeResponse(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()

	err := json.NewEncoder(w).Encode(map[string]any{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
	require.NoError(t, err)
}

func TestLoginSuccessMarksConnected(t *testing.T) {
	var gotPayload map[string]any

	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeBridgeResponse(t, w, map[string]any{"connected": true})
	})

	require.False(t, venue.Connected())
	require.NoError(t, venue.Login(context.Background()))
	assert.True(t, venue.Connected())

	assert.Equal(t, float64(103936248), gotPayload["login"])
	assert.Equal(t, "secret", gotPayload["password"])
	assert.Equal(t, "FBS-Demo", gotPayload["server"])
}

func TestLoginRejectionLeavesDisconnected(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		err := json.NewEncoder(w).Encode(map[string]any{
			"code":    401,
			"message": "invalid credentials",
		})
		require.NoError(t, err)
	})

	err := venue.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.False(t, venue.Connected())
}

func TestQuoteParsesBridgePayload(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/symbols/EURUSD", r.URL.Path)
		writeBridgeResponse(t, w, map[string]any{
			"symbol":     "EURUSD",
			"bid":        1.0850,
			"ask":        1.0852,
			"spread":     2,
			"digits":     5,
			"point":      0.00001,
			"volume_min": 0.01,
			"volume_max": 100.0,
		})
	})

	quote, err := venue.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", quote.Symbol)
	assert.Equal(t, 1.0850, quote.Bid)
	assert.Equal(t, 1.0852, quote.Ask)
	assert.Equal(t, int32(2), quote.Spread)
	assert.Equal(t, int32(5), quote.Digits)
	assert.Equal(t, 0.01, quote.VolumeMin)
	assert.NotZero(t, quote.Time)
}

func TestQuoteRequiresSymbol(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("bridge must not be called")
	})

	_, err := venue.Quote(context.Background(), "  ")
	require.Error(t, err)
}

func TestPlaceOrderSendsDecimalPayload(t *testing.T) {
	var gotPayload map[string]any

	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		writeBridgeResponse(t, w, map[string]any{
			"retcode": 10009,
			"order":   555001,
			"price":   1.0852,
			"comment": "Request executed",
		})
	})

	price := decimal.NewFromFloat(1.0852)
	ack, err := venue.PlaceOrder(context.Background(), entity.TradeRequest{
		Symbol:         "EURUSD",
		Side:           entity.TradeSideBuy,
		Volume:         decimal.NewFromFloat(0.1),
		Price:          &price,
		Comment:        "mt5-gateway trade",
		PositionTicket: 777,
	})
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", gotPayload["symbol"])
	assert.Equal(t, "buy", gotPayload["side"])
	assert.Equal(t, "0.1", gotPayload["volume"])
	assert.Equal(t, "1.0852", gotPayload["price"])
	assert.Equal(t, float64(777), gotPayload["position"])

	assert.Equal(t, int32(10009), ack.Retcode)
	assert.Equal(t, int64(555001), ack.Ticket)
	assert.True(t, ack.Price.Equal(price))
	assert.Equal(t, "Request executed", ack.Comment)
}

func TestPlaceOrderValidatesRequest(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("bridge must not be called")
	})

	_, err := venue.PlaceOrder(context.Background(), entity.TradeRequest{
		Symbol: "EURUSD",
		Side:   entity.TradeSide("hold"),
		Volume: decimal.NewFromFloat(0.1),
	})
	require.Error(t, err)

	_, err = venue.PlaceOrder(context.Background(), entity.TradeRequest{
		Symbol: "EURUSD",
		Side:   entity.TradeSideBuy,
		Volume: decimal.Zero,
	})
	require.Error(t, err)
}

func TestQuoteNotFoundIsNotAPositionError(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := venue.Quote(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrPositionNotFound)
}

func TestCloseLogsOutOnce(t *testing.T) {
	var logoutCalls int

	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/logout" {
			logoutCalls++
		}
		writeBridgeResponse(t, w, map[string]any{})
	})

	require.NoError(t, venue.Login(context.Background()))
	require.True(t, venue.Connected())

	require.NoError(t, venue.Close(context.Background()))
	assert.False(t, venue.Connected())

	// repeated Close releases nothing further
	require.NoError(t, venue.Close(context.Background()))
	assert.Equal(t, 1, logoutCalls)
}

func TestCloseSurvivesCancelledRunContext(t *testing.T) {
	var logoutCalls int

	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/logout" {
			logoutCalls++
		}
		writeBridgeResponse(t, w, map[string]any{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, venue.Close(ctx))
	assert.Equal(t, 1, logoutCalls)
}

func TestPositionNotFound(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := venue.Position(context.Background(), 999)
	require.ErrorIs(t, err, entity.ErrPositionNotFound)
}

func TestPositionParsesBridgePayload(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/positions/777", r.URL.Path)
		writeBridgeResponse(t, w, map[string]any{
			"ticket":     777,
			"symbol":     "EURUSD",
			"side":       "buy",
			"volume":     0.5,
			"price_open": 1.0840,
		})
	})

	position, err := venue.Position(context.Background(), 777)
	require.NoError(t, err)

	assert.Equal(t, int64(777), position.Ticket)
	assert.Equal(t, "EURUSD", position.Symbol)
	assert.Equal(t, entity.TradeSideBuy, position.Side)
	assert.True(t, position.Volume.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, position.OpenPrice.Equal(decimal.NewFromFloat(1.0840)))
}

func TestAccountParsesSnapshot(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/account", r.URL.Path)
		writeBridgeResponse(t, w, map[string]any{
			"login":        103936248,
			"balance":      10000.0,
			"equity":       10012.5,
			"margin":       120.0,
			"free_margin":  9892.5,
			"margin_level": 8343.75,
			"currency":     "USD",
			"server":       "FBS-Demo",
			"leverage":     100,
		})
	})

	account, err := venue.Account(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(103936248), account.Login)
	assert.Equal(t, 10000.0, account.Balance)
	assert.Equal(t, 10012.5, account.Equity)
	assert.Equal(t, "USD", account.Currency)
	assert.Equal(t, int64(100), account.Leverage)
}

func TestBridgeErrorCodeSurfacesMessage(t *testing.T) {
	venue, _ := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		err := json.NewEncoder(w).Encode(map[string]any{
			"code":    3,
			"message": "terminal not ready",
		})
		require.NoError(t, err)
	})

	_, err := venue.Account(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal not ready")
}
