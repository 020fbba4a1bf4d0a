package entity

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionTrade       = "trade"
	ActionClose       = "close"
	ActionAccountInfo = "account_info"

	MessageTypeConnected   = "connected"
	MessageTypeMarketData  = "market_data"
	MessageTypePrice       = "price"
	MessageTypeTradeResult = "trade_result"
	MessageTypeCloseResult = "close_result"
	MessageTypeAccount     = "account"
)

// ClientCommand is the single inbound frame shape. Action selects the
// operation; the remaining fields are action-specific. Price is a pointer so
// an absent price can be told apart from an explicit zero.
type ClientCommand struct {
	Action     string   `json:"action"`
	Symbol     string   `json:"symbol,omitempty"`
	Type       string   `json:"type,omitempty"`
	Volume     float64  `json:"volume,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	StopLoss   float64  `json:"sl,omitempty"`
	TakeProfit float64  `json:"tp,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	Ticket     int64    `json:"ticket,omitempty"`
}

type ConnectedMessage struct {
	Type string        `json:"type"`
	Data ConnectedData `json:"data"`
}

// ConnectedData reports upstream connectivity on connect. Account holds an
// AccountSnapshot when the venue session is live, an empty object otherwise.
type ConnectedData struct {
	Message      string `json:"message"`
	MT5Connected bool   `json:"mt5_connected"`
	Account      any    `json:"account"`
}

type PriceMessage struct {
	Type string `json:"type"`
	Data Quote  `json:"data"`
}

type TradeResultMessage struct {
	Type string          `json:"type"`
	Data TradeResultData `json:"data"`
}

// AccountMessage carries an AccountSnapshot, or an empty object when the
// venue lookup failed.
type AccountMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TradeResultData is the wire form of a TradeResult. Optional fields are
// omitted rather than zeroed so rejections carry only error and retcode.
type TradeResultData struct {
	Success    bool     `json:"success"`
	Ticket     *int64   `json:"ticket,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	ClosePrice *float64 `json:"close_price,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	Symbol     *string  `json:"symbol,omitempty"`
	TradeType  *string  `json:"type,omitempty"`
	Error      *string  `json:"error,omitempty"`
	Retcode    *int64   `json:"retcode,omitempty"`
}
