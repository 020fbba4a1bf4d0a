package venue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/mt5-gateway/internal/config"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultVenueTimeout  = 15 * time.Second
	defaultLogoutTimeout = 5 * time.Second
)

// errNotFound marks an HTTP 404 from the bridge; callers decide what a
// missing resource means for their endpoint.
var errNotFound = errors.New("not found")

// MT5Venue talks to an MT5 terminal bridge over its REST API. The terminal
// session behind the bridge is not safe for concurrent calls, so every method
// holds a single-owner lock for the duration of the request.
type MT5Venue struct {
	baseURL    string
	login      int64
	password   string
	server     string
	httpClient *http.Client

	mu        sync.Mutex
	closeOnce sync.Once

	connectedMu sync.RWMutex
	connected   bool
}

type mt5APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewMT5Venue(cfg config.VenueConfig) *MT5Venue {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultVenueTimeout
	}

	return &MT5Venue{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		login:      cfg.Login,
		password:   cfg.Password,
		server:     cfg.Server,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (v *MT5Venue) Login(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload := map[string]any{
		"login":    v.login,
		"password": v.password,
		"server":   v.server,
	}

	_, err := v.doRequest(ctx, http.MethodPost, "/api/v1/login", payload)
	if err != nil {
		return fmt.Errorf("mt5 login failed: %w", err)
	}

	v.setConnected(true)

	logrus.WithFields(logrus.Fields{
		"login":  v.login,
		"server": v.server,
	}).Info("mt5 session established")

	return nil
}

func (v *MT5Venue) Connected() bool {
	v.connectedMu.RLock()
	defer v.connectedMu.RUnlock()

	return v.connected
}

func (v *MT5Venue) Quote(ctx context.Context, symbol string) (*entity.Quote, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.doRequest(ctx, http.MethodGet, "/api/v1/symbols/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, fmt.Errorf("mt5 quote %s: %w", symbol, err)
	}

	var payload struct {
		Symbol    string  `json:"symbol"`
		Bid       float64 `json:"bid"`
		Ask       float64 `json:"ask"`
		Spread    int32   `json:"spread"`
		Digits    int32   `json:"digits"`
		Point     float64 `json:"point"`
		VolumeMin float64 `json:"volume_min"`
		VolumeMax float64 `json:"volume_max"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("mt5 quote parse failed: %w", err)
	}

	return &entity.Quote{
		Symbol:    symbol,
		Bid:       payload.Bid,
		Ask:       payload.Ask,
		Spread:    payload.Spread,
		Digits:    payload.Digits,
		Point:     payload.Point,
		VolumeMin: payload.VolumeMin,
		VolumeMax: payload.VolumeMax,
		Time:      time.Now().Unix(),
	}, nil
}

func (v *MT5Venue) PlaceOrder(ctx context.Context, req entity.TradeRequest) (*entity.OrderAck, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("unsupported trade side: %s", req.Side)
	}
	if !req.Volume.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("trade volume must be positive: %s", req.Volume.String())
	}

	payload := map[string]any{
		"symbol":  req.Symbol,
		"side":    string(req.Side),
		"volume":  req.Volume.String(),
		"sl":      req.StopLoss.String(),
		"tp":      req.TakeProfit.String(),
		"comment": req.Comment,
	}
	if req.Price != nil {
		payload["price"] = req.Price.String()
	}
	if req.PositionTicket != 0 {
		payload["position"] = req.PositionTicket
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.doRequest(ctx, http.MethodPost, "/api/v1/orders", payload)
	if err != nil {
		return nil, fmt.Errorf("mt5 order send: %w", err)
	}

	var resp struct {
		Retcode int32   `json:"retcode"`
		Order   int64   `json:"order"`
		Price   float64 `json:"price"`
		Comment string  `json:"comment"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("mt5 order parse failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"symbol":  req.Symbol,
		"side":    req.Side,
		"volume":  req.Volume.String(),
		"retcode": resp.Retcode,
		"ticket":  resp.Order,
	}).Info("order submitted")

	return &entity.OrderAck{
		Retcode: resp.Retcode,
		Ticket:  resp.Order,
		Price:   decimal.NewFromFloat(resp.Price),
		Comment: resp.Comment,
	}, nil
}

func (v *MT5Venue) Position(ctx context.Context, ticket int64) (*entity.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.doRequest(ctx, http.MethodGet, "/api/v1/positions/"+strconv.FormatInt(ticket, 10), nil)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, entity.ErrPositionNotFound
		}
		return nil, fmt.Errorf("mt5 position %d: %w", ticket, err)
	}

	var payload struct {
		Ticket    int64   `json:"ticket"`
		Symbol    string  `json:"symbol"`
		Side      string  `json:"side"`
		Volume    float64 `json:"volume"`
		PriceOpen float64 `json:"price_open"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("mt5 position parse failed: %w", err)
	}

	return &entity.Position{
		Ticket:    payload.Ticket,
		Symbol:    payload.Symbol,
		Side:      entity.TradeSide(payload.Side),
		Volume:    decimal.NewFromFloat(payload.Volume),
		OpenPrice: decimal.NewFromFloat(payload.PriceOpen),
	}, nil
}

func (v *MT5Venue) Account(ctx context.Context) (*entity.AccountSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.doRequest(ctx, http.MethodGet, "/api/v1/account", nil)
	if err != nil {
		return nil, fmt.Errorf("mt5 account info: %w", err)
	}

	var snapshot entity.AccountSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("mt5 account parse failed: %w", err)
	}

	return &snapshot, nil
}

// Close logs the terminal session out and releases the HTTP client. Only the
// first call performs the logout; the caller's cancelled run context does not
// abort it, the logout gets its own deadline.
func (v *MT5Venue) Close(ctx context.Context) error {
	var closeErr error
	v.closeOnce.Do(func() {
		v.mu.Lock()
		defer v.mu.Unlock()

		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultLogoutTimeout)
		defer cancel()

		if _, err := v.doRequest(logoutCtx, http.MethodPost, "/api/v1/logout", nil); err != nil {
			closeErr = fmt.Errorf("mt5 logout failed: %w", err)
		}

		v.setConnected(false)
		v.httpClient.CloseIdleConnections()

		logrus.WithField("login", v.login).Info("mt5 session released")
	})

	return closeErr
}

func (v *MT5Venue) doRequest(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}

	var apiResp mt5APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("mt5 bridge parse failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	if resp.StatusCode >= http.StatusBadRequest || apiResp.Code != 0 {
		errMsg := apiResp.Message
		if errMsg == "" {
			errMsg = "unknown error"
		}

		return nil, fmt.Errorf("mt5 bridge rejected: status=%d code=%d message=%s", resp.StatusCode, apiResp.Code, errMsg)
	}

	return apiResp.Data, nil
}

func (v *MT5Venue) setConnected(connected bool) {
	v.connectedMu.Lock()
	v.connected = connected
	v.connectedMu.Unlock()
}
