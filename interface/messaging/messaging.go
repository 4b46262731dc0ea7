package messaging

import (
	"context"
	"time"
)

// Publisher is an interface to publish messages
type Publisher interface {
	Publish(ctx context.Context, data ...[]byte) error
}

type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
	TryCount    int
}

// Callback is a function that processes a Message.
// A temporary error (see utils.Temporary) means the message must be redelivered.
type Callback func(ctx context.Context, m *Message) error

// Consumer is an interface to consume messages
type Consumer interface {
	// Pull the next message, call callback and return
	Pull(ctx context.Context, cb Callback) error
}

// Queue gives the number of messages waiting to be consumed
type Queue interface {
	Backlog(ctx context.Context) (int64, error)
}
