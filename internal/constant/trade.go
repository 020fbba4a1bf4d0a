package constant

// TradeRetcodeDone is the venue return code for a fully executed deal
// (MT5 TRADE_RETCODE_DONE). Anything else is a rejection.
const TradeRetcodeDone int32 = 10009
