package constant

const (
	MarketDataStreamName       = "market_data"
	MarketDataStreamSubjectAll = "market_data.tick.*"

	marketDataTickSubjectPrefix = "market_data.tick."
)

func GetMarketDataTickSubject(symbol string) string {
	return marketDataTickSubjectPrefix + symbol
}
