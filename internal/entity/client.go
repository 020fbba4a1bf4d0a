package entity

import "errors"

var (
	ErrClientClosed    = errors.New("client transport closed")
	ErrClientQueueFull = errors.New("client send queue full")
)

// Client is a connected downstream handle. Send enqueues one outbound message
// and must not block on network I/O; it reports an error once the transport
// is closed or the client stopped draining its queue. Close tears the
// transport down and is idempotent.
type Client interface {
	ID() string
	Send(msg any) error
	Close() error
}
