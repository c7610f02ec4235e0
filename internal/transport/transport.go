// Package transport abstracts the messaging channel. One Transport exists
// per dedicated tenant bot plus one shared front-door instance; each runs
// its own inbound event stream and offers bounded outbound sends.
package transport

import (
	"context"
	"errors"
	"io"
)

// Delivery-layer error kinds. Message persistence has already happened by
// the time these surface on the hot path, so they are soft failures there;
// ErrInvalidCredential during open is fatal to that registration attempt.
var (
	ErrInvalidCredential = errors.New("transport: invalid credential")
	ErrUnreachable       = errors.New("transport: unreachable")
	ErrBlocked           = errors.New("transport: blocked by recipient")
	ErrRateLimited       = errors.New("transport: rate limited")
)

// Event is one inbound message from the channel.
type Event struct {
	ChatID           int64
	SenderID         int64
	Username         string
	FirstName        string
	Text             string
	MessageID        int64
	PhotoFileID      string
	ReplyToMessageID int64
}

// Handler consumes inbound events. Handlers are invoked from the
// transport's own polling goroutine.
type Handler func(ctx context.Context, ev Event)

// Transport is a live channel connection.
type Transport interface {
	// Username is the channel handle this transport answers as.
	Username() string
	// Send delivers text to a chat and returns the channel's message id
	// for the delivered copy.
	Send(ctx context.Context, chatID int64, text string) (int64, error)
	// Subscribe sets the inbound handler. Must be called before Start.
	Subscribe(h Handler)
	// Start begins the inbound event stream.
	Start(ctx context.Context) error
	// Stop terminates the stream cooperatively, letting in-flight handler
	// calls finish before returning (bounded by ctx).
	Stop(ctx context.Context) error
}

// FileFetcher is implemented by transports that can download channel-hosted
// files (logo uploads).
type FileFetcher interface {
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, int64, error)
}

// Opener turns a credential into a live Transport, validating the
// credential with the channel first.
type Opener interface {
	Open(ctx context.Context, credential string) (Transport, error)
}
