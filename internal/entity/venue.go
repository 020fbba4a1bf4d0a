package entity

import "context"

// VenueSession is the single shared handle to the trading venue. It is
// acquired once at startup and released once at shutdown via Close;
// implementations must be safe for concurrent calls (typically by serializing
// internally, venue sessions are rarely safe for parallel use) and must make
// repeated Close calls release the session only once.
type VenueSession interface {
	Login(ctx context.Context) error
	Connected() bool
	Quote(ctx context.Context, symbol string) (*Quote, error)
	PlaceOrder(ctx context.Context, req TradeRequest) (*OrderAck, error)
	Position(ctx context.Context, ticket int64) (*Position, error)
	Account(ctx context.Context) (*AccountSnapshot, error)
	Close(ctx context.Context) error
}
