package entity

// AccountSnapshot is pulled from the venue on demand, never cached.
type AccountSnapshot struct {
	Login       int64   `json:"login"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	FreeMargin  float64 `json:"free_margin"`
	MarginLevel float64 `json:"margin_level"`
	Currency    string  `json:"currency"`
	Server      string  `json:"server"`
	Leverage    int64   `json:"leverage"`
}
