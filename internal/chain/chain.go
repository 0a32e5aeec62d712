// Package chain is the JSON-RPC adapter to the prediction-market node: pool and balance
// reads, batch submission and fee estimation over HTTP, new-head subscriptions over WebSocket.
package chain

import (
	"context"
	"errors"
)

// Chain errors
var (
	// ErrSubmissionFailed wraps every failed batch submission. Submissions are never retried.
	ErrSubmissionFailed = errors.New("batch submission failed")
	// ErrInvalidAmount is returned when a node amount is not a non-negative planck integer.
	ErrInvalidAmount = errors.New("invalid planck amount")
	// ErrClosed is returned by a closed WebSocket client.
	ErrClosed = errors.New("client closed")
)

// Head is a new chain head announced by the node.
type Head struct {
	Number uint64
	Hash   string
}

// HeadSubscriber delivers new chain heads.
type HeadSubscriber interface {
	// SubscribeNewHeads returns a channel of heads, closed when the client closes.
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the connection.
	Close() error
}
