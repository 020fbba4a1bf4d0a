package gateway

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/krobus00/mt5-gateway/internal/constant"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/krobus00/mt5-gateway/internal/registry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	connectedGreeting   = "Connected to MT5 gateway"
	defaultTradeComment = "mt5-gateway trade"
	defaultCloseComment = "mt5-gateway close"
)

// Orders default to the venue minimum lot when the client omits the volume
// or sends a non-positive one.
var defaultMinLot = decimal.NewFromFloat(0.01)

// Service owns the per-connection lifecycle and routes inbound client
// commands: subscribe, unsubscribe, trade, close and account_info. Responses
// go to the originating client only; malformed or unknown frames are logged
// and dropped without a reply.
type Service struct {
	registry *registry.Registry
	venue    entity.VenueSession
}

func NewService(reg *registry.Registry, venue entity.VenueSession) *Service {
	return &Service{
		registry: reg,
		venue:    venue,
	}
}

// HandleConnect registers the client and sends the connection confirmation
// with the current upstream status and, when live, an account snapshot.
func (s *Service) HandleConnect(ctx context.Context, c entity.Client) {
	s.registry.Register(c)

	connected := s.venue.Connected()

	var account any = struct{}{}
	if connected {
		snapshot, err := s.venue.Account(ctx)
		if err != nil {
			logrus.Warnf("account snapshot for connect message failed: %v", err)
		} else {
			account = snapshot
		}
	}

	msg := entity.ConnectedMessage{
		Type: entity.MessageTypeConnected,
		Data: entity.ConnectedData{
			Message:      connectedGreeting,
			MT5Connected: connected,
			Account:      account,
		},
	}

	if err := c.Send(msg); err != nil {
		logrus.WithField("client_id", c.ID()).Warnf("connect message send failed: %v", err)
		s.registry.Deregister(c.ID())
		return
	}

	logrus.WithField("client_id", c.ID()).Info("client connected")
}

// HandleDisconnect removes the client and all of its subscriptions.
func (s *Service) HandleDisconnect(c entity.Client) {
	s.registry.Deregister(c.ID())
	logrus.WithField("client_id", c.ID()).Info("client disconnected")
}

// HandleMessage parses one inbound frame and dispatches it. Commands from a
// single client arrive here in order; the caller must not interleave calls
// for the same client.
func (s *Service) HandleMessage(ctx context.Context, c entity.Client, raw []byte) {
	var cmd entity.ClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		logrus.WithField("client_id", c.ID()).Warnf("invalid message dropped: %v", err)
		return
	}

	switch cmd.Action {
	case entity.ActionSubscribe:
		s.handleSubscribe(ctx, c, cmd)
	case entity.ActionUnsubscribe:
		s.handleUnsubscribe(c, cmd)
	case entity.ActionTrade:
		s.handleTrade(ctx, c, cmd)
	case entity.ActionClose:
		s.handleClose(ctx, c, cmd)
	case entity.ActionAccountInfo:
		s.handleAccountInfo(ctx, c)
	default:
		logrus.WithFields(logrus.Fields{
			"client_id": c.ID(),
			"action":    cmd.Action,
		}).Warn("unknown action dropped")
	}
}

func (s *Service) handleSubscribe(ctx context.Context, c entity.Client, cmd entity.ClientCommand) {
	if cmd.Symbol == "" {
		logrus.WithField("client_id", c.ID()).Warn("subscribe without symbol dropped")
		return
	}

	if !s.registry.Subscribe(c.ID(), cmd.Symbol) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"client_id": c.ID(),
		"symbol":    cmd.Symbol,
	}).Info("client subscribed")

	// immediate best-effort quote push, skipped silently when unavailable
	quote, err := s.venue.Quote(ctx, cmd.Symbol)
	if err != nil {
		logrus.WithField("symbol", cmd.Symbol).Warnf("initial quote unavailable: %v", err)
		return
	}

	s.send(c, entity.PriceMessage{
		Type: entity.MessageTypePrice,
		Data: *quote,
	})
}

func (s *Service) handleUnsubscribe(c entity.Client, cmd entity.ClientCommand) {
	if cmd.Symbol == "" {
		logrus.WithField("client_id", c.ID()).Warn("unsubscribe without symbol dropped")
		return
	}

	s.registry.Unsubscribe(c.ID(), cmd.Symbol)

	logrus.WithFields(logrus.Fields{
		"client_id": c.ID(),
		"symbol":    cmd.Symbol,
	}).Info("client unsubscribed")
}

func (s *Service) handleTrade(ctx context.Context, c entity.Client, cmd entity.ClientCommand) {
	side := entity.TradeSide(cmd.Type)
	if cmd.Symbol == "" || !side.Valid() {
		logrus.WithFields(logrus.Fields{
			"client_id": c.ID(),
			"symbol":    cmd.Symbol,
			"type":      cmd.Type,
		}).Warn("malformed trade command dropped")
		return
	}

	result := s.executeTrade(ctx, cmd, side)

	s.send(c, entity.TradeResultMessage{
		Type: entity.MessageTypeTradeResult,
		Data: tradeResultData(result),
	})
}

func (s *Service) handleClose(ctx context.Context, c entity.Client, cmd entity.ClientCommand) {
	if cmd.Ticket == 0 {
		logrus.WithField("client_id", c.ID()).Warn("close without ticket dropped")
		return
	}

	result := s.closePosition(ctx, cmd.Ticket)

	s.send(c, entity.TradeResultMessage{
		Type: entity.MessageTypeCloseResult,
		Data: closeResultData(result),
	})
}

func (s *Service) handleAccountInfo(ctx context.Context, c entity.Client) {
	var data any = struct{}{}

	snapshot, err := s.venue.Account(ctx)
	if err != nil {
		logrus.Warnf("account info lookup failed: %v", err)
	} else {
		data = snapshot
	}

	s.send(c, entity.AccountMessage{
		Type: entity.MessageTypeAccount,
		Data: data,
	})
}

// executeTrade submits a single-shot order. An absent price is filled from a
// fresh quote: ask for buys, bid for sells. No retries on rejection.
func (s *Service) executeTrade(ctx context.Context, cmd entity.ClientCommand, side entity.TradeSide) entity.TradeResult {
	volume := decimal.NewFromFloat(cmd.Volume)
	if !volume.GreaterThan(decimal.Zero) {
		volume = defaultMinLot
	}

	var price *decimal.Decimal
	if cmd.Price != nil && *cmd.Price > 0 {
		p := decimal.NewFromFloat(*cmd.Price)
		price = &p
	} else {
		quote, err := s.venue.Quote(ctx, cmd.Symbol)
		if err != nil {
			return tradeFailure("Trade failed: "+err.Error(), 0)
		}

		marketPrice := quote.Ask
		if side == entity.TradeSideSell {
			marketPrice = quote.Bid
		}
		p := decimal.NewFromFloat(marketPrice)
		price = &p
	}

	comment := cmd.Comment
	if comment == "" {
		comment = defaultTradeComment
	}

	ack, err := s.venue.PlaceOrder(ctx, entity.TradeRequest{
		Symbol:     cmd.Symbol,
		Side:       side,
		Volume:     volume,
		Price:      price,
		StopLoss:   decimal.NewFromFloat(cmd.StopLoss),
		TakeProfit: decimal.NewFromFloat(cmd.TakeProfit),
		Comment:    comment,
	})
	if err != nil {
		return tradeFailure("Trade failed: "+err.Error(), 0)
	}

	if ack.Retcode != constant.TradeRetcodeDone {
		logrus.WithFields(logrus.Fields{
			"symbol":  cmd.Symbol,
			"retcode": ack.Retcode,
		}).Warnf("trade rejected: %s", ack.Comment)
		return tradeFailure("Trade failed: "+ack.Comment, ack.Retcode)
	}

	logrus.WithFields(logrus.Fields{
		"ticket": ack.Ticket,
		"symbol": cmd.Symbol,
		"side":   side,
		"volume": volume.String(),
		"price":  ack.Price.String(),
	}).Info("trade executed")

	return entity.TradeResult{
		Success: true,
		Ticket:  ack.Ticket,
		Price:   ack.Price,
		Volume:  volume,
		Symbol:  cmd.Symbol,
		Side:    side,
	}
}

// closePosition flattens the position behind ticket with an opposing-side
// order for its full volume. A missing ticket fails fast without touching
// order placement.
func (s *Service) closePosition(ctx context.Context, ticket int64) entity.TradeResult {
	position, err := s.venue.Position(ctx, ticket)
	if err != nil {
		if errors.Is(err, entity.ErrPositionNotFound) {
			return tradeFailure("Position not found", 0)
		}
		return tradeFailure("Close failed: "+err.Error(), 0)
	}

	ack, err := s.venue.PlaceOrder(ctx, entity.TradeRequest{
		Symbol:         position.Symbol,
		Side:           position.Side.Opposite(),
		Volume:         position.Volume,
		PositionTicket: ticket,
		Comment:        defaultCloseComment,
	})
	if err != nil {
		return tradeFailure("Close failed: "+err.Error(), 0)
	}

	if ack.Retcode != constant.TradeRetcodeDone {
		return tradeFailure("Close failed: "+ack.Comment, ack.Retcode)
	}

	logrus.WithField("ticket", ticket).Info("position closed")

	return entity.TradeResult{
		Success: true,
		Ticket:  ticket,
		Price:   ack.Price,
		Symbol:  position.Symbol,
	}
}

func (s *Service) send(c entity.Client, msg any) {
	if err := c.Send(msg); err != nil {
		logrus.WithField("client_id", c.ID()).Warnf("response send failed, dropping client: %v", err)
		s.registry.Deregister(c.ID())
	}
}

func tradeFailure(message string, retcode int32) entity.TradeResult {
	return entity.TradeResult{
		Success:      false,
		ErrorMessage: message,
		Retcode:      retcode,
	}
}

func tradeResultData(result entity.TradeResult) entity.TradeResultData {
	if !result.Success {
		return entity.TradeResultData{
			Success: false,
			Error:   null.NewString(result.ErrorMessage, result.ErrorMessage != "").Ptr(),
			Retcode: null.NewInt(int64(result.Retcode), result.Retcode != 0).Ptr(),
		}
	}

	price, _ := result.Price.Float64()
	volume, _ := result.Volume.Float64()

	return entity.TradeResultData{
		Success:   true,
		Ticket:    null.NewInt(result.Ticket, true).Ptr(),
		Price:     null.NewFloat(price, true).Ptr(),
		Volume:    null.NewFloat(volume, true).Ptr(),
		Symbol:    null.NewString(result.Symbol, true).Ptr(),
		TradeType: null.NewString(string(result.Side), true).Ptr(),
	}
}

func closeResultData(result entity.TradeResult) entity.TradeResultData {
	if !result.Success {
		return entity.TradeResultData{
			Success: false,
			Error:   null.NewString(result.ErrorMessage, result.ErrorMessage != "").Ptr(),
			Retcode: null.NewInt(int64(result.Retcode), result.Retcode != 0).Ptr(),
		}
	}

	price, _ := result.Price.Float64()

	return entity.TradeResultData{
		Success:    true,
		Ticket:     null.NewInt(result.Ticket, true).Ptr(),
		ClosePrice: null.NewFloat(price, true).Ptr(),
	}
}
