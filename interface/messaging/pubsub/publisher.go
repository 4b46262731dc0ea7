package pubsub

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
)

type publisherOptions struct {
	maxRetries int
	attributes map[string]string
}

type PublisherOption func(o *publisherOptions)

// WithMaxRetries sets the number of retries of a message publication failing with a temporary error
func WithMaxRetries(maxRetries int) PublisherOption {
	return func(o *publisherOptions) {
		o.maxRetries = maxRetries
	}
}

// WithAttributes adds the attributes to every published message (e.g. to filter a subscription by source)
func WithAttributes(attributes map[string]string) PublisherOption {
	return func(o *publisherOptions) {
		o.attributes = attributes
	}
}

// Publisher implements messaging.Publisher
type Publisher struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	maxRetries int
	attributes map[string]string
}

// NewPublisher creates a pubsub publisher on the topic
func NewPublisher(ctx context.Context, projectID, topic string, opts ...PublisherOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher.NewClient: %w", err)
	}

	o := publisherOptions{maxRetries: 3}
	for _, opt := range opts {
		opt(&o)
	}

	return &Publisher{client: client, topic: client.Topic(topic), maxRetries: o.maxRetries, attributes: o.attributes}, nil
}

// Publish implements messaging.Publisher.
// The messages are published by batches of half the buffer size and the ones failing with a temporary error are retried
// with an exponential backoff.
func (p *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	pending := data
	for retry := 0; len(pending) > 0; retry++ {
		var failed [][]byte
		var lastErr error
		for i := 0; i < len(pending); {
			batch, results := i, []*pubsub.PublishResult{}
			// len(data) underestimates the size of a buffered message
			for limit := pubsub.DefaultPublishSettings.BufferedByteLimit / 2; i < len(pending) && limit > 0; i++ {
				limit -= len(pending[i])
				results = append(results, p.topic.Publish(ctx, &pubsub.Message{Data: pending[i], Attributes: p.attributes}))
			}
			for j, r := range results {
				if _, err := r.Get(ctx); err != nil {
					if !utils.Temporary(err) {
						return fmt.Errorf("Publish: %w", err)
					}
					failed = append(failed, pending[batch+j])
					lastErr = err
				}
			}
		}
		if len(failed) == 0 {
			return nil
		}
		if retry >= p.maxRetries {
			return fmt.Errorf("Publish: %d messages not published after %d retries: %w", len(failed), retry, lastErr)
		}
		log.Logger(ctx).Warn("publish: retrying", zap.Int("messages", len(failed)), zap.Int("retry", retry+1), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return fmt.Errorf("Publish: %w", ctx.Err())
		case <-time.After(time.Second * time.Duration(math.Exp2(float64(retry)))):
		}
		pending = failed
	}
	return nil
}

// Stop flushes the pending messages and releases the client
func (p *Publisher) Stop() {
	p.topic.Stop()
	p.client.Close()
}
