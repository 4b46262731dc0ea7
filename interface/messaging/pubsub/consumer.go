package pubsub

import (
	"context"
	"fmt"
	"os"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	gcppubsub "cloud.google.com/go/pubsub/apiv1"
	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	monitoringpb "google.golang.org/genproto/googleapis/monitoring/v3"
	pubsubpb "google.golang.org/genproto/googleapis/pubsub/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/golang/protobuf/ptypes/timestamp"
)

// Consumer pulls export jobs from a pubsub subscription, one at a time.
// It implements messaging.Consumer and messaging.Queue
type Consumer struct {
	ps                        *gcppubsub.SubscriberClient
	m                         *monitoring.MetricClient
	projectID, subscriptionID string
	opts                      processOptions
}

type ConsumerOption func(o *Consumer)

type processOptions struct {
	ExtensionPeriod   time.Duration
	ReturnImmediately bool
	OnErrorRetryDelay time.Duration
}

// DefaultSubscriberClient connects to pubsub, or to the emulator if PUBSUB_EMULATOR_HOST is set
func DefaultSubscriberClient(ctx context.Context) (*gcppubsub.SubscriberClient, error) {
	var o []option.ClientOption
	if addr := os.Getenv("PUBSUB_EMULATOR_HOST"); addr != "" {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("grpc.NewClient: %w", err)
		}
		o = []option.ClientOption{option.WithGRPCConn(conn)}
	}
	return gcppubsub.NewSubscriberClient(ctx, o...)
}

func WithSubscriberClient(ps *gcppubsub.SubscriberClient) ConsumerOption {
	return func(c *Consumer) {
		c.ps = ps
	}
}

func WithMonitoringClient(m *monitoring.MetricClient) ConsumerOption {
	return func(c *Consumer) {
		c.m = m
	}
}

// ExtensionPeriod is the duration by which the ack deadline is extended while the callback runs.
// An export that cannot extend its deadline is cancelled.
func ExtensionPeriod(t time.Duration) ConsumerOption {
	if t > 10*time.Minute {
		panic("ExtensionPeriod must be <= 10 minutes")
	}
	return func(c *Consumer) {
		c.opts.ExtensionPeriod = t
	}
}

// OnErrorRetryDelay is the delay before a message failing with a temporary error is redelivered.
// A negative value leaves the subscription settings unchanged.
func OnErrorRetryDelay(t time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.opts.OnErrorRetryDelay = t
	}
}

// ReturnImmediately makes Pull return nil if there is no message to process
func ReturnImmediately() ConsumerOption {
	return func(c *Consumer) {
		c.opts.ReturnImmediately = true
	}
}

// NewConsumer returns a pubsub consumer
func NewConsumer(projectID, subscriptionID string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		projectID:      projectID,
		subscriptionID: subscriptionID,
		opts: processOptions{
			ExtensionPeriod:   8 * time.Minute,
			OnErrorRetryDelay: -1,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Consumer) subscription() string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", c.projectID, c.subscriptionID)
}

// Pull implements messaging.Consumer
func (c *Consumer) Pull(ctx context.Context, cb messaging.Callback) error {
	if c.ps == nil {
		var err error
		if c.ps, err = DefaultSubscriberClient(context.Background()); err != nil {
			return fmt.Errorf("create subscriber client: %w", err)
		}
	}

	received, err := c.next(ctx)
	if err != nil || received == nil {
		return err
	}

	ctx, cncl := context.WithCancel(ctx)
	defer cncl()

	// buffered, so that the callback result is not lost if keepAlive already returned
	result := make(chan error, 1)
	done := make(chan error)
	go func() {
		done <- c.keepAlive(ctx, cncl, received.AckId, result)
	}()

	result <- cb(ctx, &messaging.Message{
		ID:          received.Message.MessageId,
		Attributes:  received.Message.Attributes,
		Data:        received.Message.Data,
		PublishTime: received.Message.PublishTime.AsTime(),
		TryCount:    int(received.DeliveryAttempt),
	})
	return <-done
}

// next blocks until a message is available (unless ReturnImmediately is set)
func (c *Consumer) next(ctx context.Context) (*pubsubpb.ReceivedMessage, error) {
	req := pubsubpb.PullRequest{
		Subscription:      c.subscription(),
		MaxMessages:       1,
		ReturnImmediately: c.opts.ReturnImmediately,
	}
	for {
		res, err := c.ps.Pull(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("ps.pull: %w", err)
		}
		switch len(res.ReceivedMessages) {
		case 0:
			if c.opts.ReturnImmediately {
				return nil, nil
			}
		case 1:
			return res.ReceivedMessages[0], nil
		default:
			return nil, fmt.Errorf("pull returned %d!=1 messages", len(res.ReceivedMessages))
		}
	}
}

// keepAlive extends the ack deadline until the callback result is received, then acks or nacks the message
func (c *Consumer) keepAlive(ctx context.Context, cancel func(), ackID string, result <-chan error) error {
	deadline := time.Now().Add(c.opts.ExtensionPeriod)
	next := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-result:
			return c.acknowledge(ctx, ackID, err)
		case <-time.After(next):
			if time.Now().After(deadline) {
				cancel()
				return fmt.Errorf("failed to extend past deadline")
			}
			if err := c.modifyAckDeadline(ctx, ackID, c.opts.ExtensionPeriod); err != nil {
				next = next / 2
				if next < time.Second {
					next = time.Second
				}
				log.Logger(ctx).With(zap.Error(err)).Sugar().Warnf("error extending, will retry in %v", next)
			} else {
				deadline = time.Now().Add(c.opts.ExtensionPeriod)
				next = c.opts.ExtensionPeriod / 2
			}
		}
	}
}

func (c *Consumer) acknowledge(ctx context.Context, ackID string, err error) error {
	switch {
	case err == nil:
	case !utils.Temporary(err):
		log.Logger(ctx).Error("Fatal error: " + err.Error())
	default:
		log.Logger(ctx).Warn("Temporary error: " + err.Error())
		if c.opts.OnErrorRetryDelay < 0 {
			return nil
		}
		return c.modifyAckDeadline(ctx, ackID, c.opts.OnErrorRetryDelay)
	}
	return c.ps.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: c.subscription(),
		AckIds:       []string{ackID},
	})
}

func (c *Consumer) modifyAckDeadline(ctx context.Context, ackID string, d time.Duration) error {
	return c.ps.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       c.subscription(),
		AckIds:             []string{ackID},
		AckDeadlineSeconds: int32(d.Seconds()),
	})
}

// Backlog implements messaging.Queue, using the num_undelivered_messages metric of the subscription
func (c *Consumer) Backlog(ctx context.Context) (int64, error) {
	if c.m == nil {
		var err error
		if c.m, err = monitoring.NewMetricClient(context.Background()); err != nil {
			return 0, fmt.Errorf("create metric client: %w", err)
		}
	}
	req := &monitoringpb.ListTimeSeriesRequest{
		Name: fmt.Sprintf("projects/%s", c.projectID),
		Filter: fmt.Sprintf("metric.type = \"pubsub.googleapis.com/subscription/num_undelivered_messages\" AND resource.label.subscription_id = \"%s\"",
			c.subscriptionID),
		Interval: &monitoringpb.TimeInterval{
			StartTime: &timestamp.Timestamp{Seconds: time.Now().Add(-2 * time.Minute).Unix()},
			EndTime:   &timestamp.Timestamp{Seconds: time.Now().Unix()},
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}
	it := c.m.ListTimeSeries(ctx, req)
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("it.next: %w", err)
		}
		if pnts := resp.GetPoints(); len(pnts) > 0 {
			return pnts[len(pnts)-1].Value.GetInt64Value(), nil
		}
	}
	log.Logger(ctx).Warn("no monitoring metrics found. Does the subscription exist?")
	return 0, nil
}
