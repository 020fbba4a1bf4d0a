package entity

// Quote is the venue's current pricing for one symbol. It is fetched fresh on
// every use and never cached beyond a single broadcast tick.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Spread    int32   `json:"spread"`
	Digits    int32   `json:"digits"`
	Point     float64 `json:"point"`
	VolumeMin float64 `json:"volume_min"`
	VolumeMax float64 `json:"volume_max"`
	Time      int64   `json:"time"`
}

// MarketData is the bar-shaped record pushed to subscribers each broadcast
// tick. The OHLC fields mirror the downstream display contract, not real
// aggregation: open, low and close carry the bid, high carries the ask, and
// the size/change fields are fixed placeholders.
type MarketData struct {
	Type             string  `json:"type"`
	Symbol           string  `json:"symbol"`
	Timestamp        string  `json:"timestamp"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	Volume           int64   `json:"volume"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	BidSize          int64   `json:"bidSize"`
	AskSize          int64   `json:"askSize"`
	Change24h        float64 `json:"change24h"`
	ChangePercent24h float64 `json:"changePercent24h"`
}
