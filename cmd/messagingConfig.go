package cmd

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/interface/messaging/pgqueue"
	"github.com/airbusgeo/dcquery/interface/messaging/pubsub"
	"github.com/btubbs/pgq"
)

// MessagingConfig selects the messaging system of the export jobs: pgqueue or pubsub
type MessagingConfig struct {
	PgqDbConnection      string
	PgqJobsQueue         string
	PgqEventsQueue       string
	Project              string
	PsJobsTopic          string
	PsJobsSubscription   string
	PsEventsTopic        string
	CancelledJobsStorage string

	pgqDB     *sql.DB
	pgqWorker *pgq.Worker
	stops     []func()
}

// MessagingConfigFlagSet registers the messaging flags in fs
func MessagingConfigFlagSet(fs *flag.FlagSet) *MessagingConfig {
	c := MessagingConfig{}
	fs.StringVar(&c.PgqDbConnection, "pgqConnection", "", "url of the postgres database to enable pgqueue messaging system (pgqueue only)")
	fs.StringVar(&c.PgqJobsQueue, "pgqJobsQueue", "export-jobs", "name of the queue of the export jobs (pgqueue only)")
	fs.StringVar(&c.PgqEventsQueue, "pgqEventsQueue", "", "name of the queue of the export events (pgqueue only)")
	fs.StringVar(&c.Project, "psProject", "", "subscription project (gcp pubSub only)")
	fs.StringVar(&c.PsJobsTopic, "psJobsTopic", "", "pubsub topic of the export jobs")
	fs.StringVar(&c.PsJobsSubscription, "psJobsSubscription", "", "pubsub subscription of the export jobs")
	fs.StringVar(&c.PsEventsTopic, "psEventsTopic", "", "pubsub topic of the export events")
	fs.StringVar(&c.CancelledJobsStorage, "cancelledJobs", "", "storage where cancelled jobs are referenced (local path, gs:// or s3://)")
	return &c
}

func (c *MessagingConfig) usePgq() bool {
	return c.PgqDbConnection != ""
}

func (c *MessagingConfig) connectPgq(ctx context.Context) error {
	if c.pgqDB != nil {
		return nil
	}
	db, w, err := pgqueue.SqlConnect(ctx, c.PgqDbConnection)
	if err != nil {
		return err
	}
	c.pgqDB, c.pgqWorker = db, w
	c.stops = append(c.stops, func() { db.Close() })
	return nil
}

func (c *MessagingConfig) publisher(ctx context.Context, pgqQueue, psTopic, kind string) (messaging.Publisher, error) {
	switch {
	case c.usePgq() && pgqQueue != "":
		if err := c.connectPgq(ctx); err != nil {
			return nil, err
		}
		return pgqueue.NewPublisher(c.pgqWorker, pgqQueue), nil
	case !c.usePgq() && psTopic != "":
		p, err := pubsub.NewPublisher(ctx, c.Project, psTopic, pubsub.WithAttributes(map[string]string{"type": kind}))
		if err != nil {
			return nil, fmt.Errorf("pubsub.NewPublisher: %w", err)
		}
		c.stops = append([]func(){p.Stop}, c.stops...)
		return p, nil
	}
	return nil, nil
}

// JobPublisher returns the publisher of the export jobs
func (c *MessagingConfig) JobPublisher(ctx context.Context) (messaging.Publisher, error) {
	p, err := c.publisher(ctx, c.PgqJobsQueue, c.PsJobsTopic, "export-job")
	if err == nil && p == nil {
		err = fmt.Errorf("missing configuration for the jobs publisher (--pgqConnection or --psJobsTopic)")
	}
	return p, err
}

// EventPublisher returns the publisher of the export events or nil if it is not configured
func (c *MessagingConfig) EventPublisher(ctx context.Context) (messaging.Publisher, error) {
	return c.publisher(ctx, c.PgqEventsQueue, c.PsEventsTopic, "export-event")
}

func (c *MessagingConfig) pgqConsumer(ctx context.Context) (*pgqueue.Consumer, error) {
	if err := c.connectPgq(ctx); err != nil {
		return nil, err
	}
	consumer := pgqueue.NewConsumer(c.pgqDB, c.PgqJobsQueue)
	c.stops = append([]func(){consumer.Stop}, c.stops...)
	return consumer, nil
}

// JobConsumer returns the consumer of the export jobs
func (c *MessagingConfig) JobConsumer(ctx context.Context, opts ...pubsub.ConsumerOption) (messaging.Consumer, error) {
	if c.usePgq() {
		consumer, err := c.pgqConsumer(ctx)
		if err != nil {
			return nil, err
		}
		return consumer, nil
	}
	if c.PsJobsSubscription == "" {
		return nil, fmt.Errorf("missing configuration for the jobs consumer (--pgqConnection or --psJobsSubscription)")
	}
	ps, err := pubsub.DefaultSubscriberClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub.DefaultSubscriberClient: %w", err)
	}
	c.stops = append(c.stops, func() { ps.Close() })
	opts = append([]pubsub.ConsumerOption{pubsub.WithSubscriberClient(ps)}, opts...)
	return pubsub.NewConsumer(c.Project, c.PsJobsSubscription, opts...), nil
}

// JobQueue returns the queue of the export jobs, to monitor its backlog
func (c *MessagingConfig) JobQueue(ctx context.Context) (messaging.Queue, error) {
	if c.usePgq() {
		consumer, err := c.pgqConsumer(ctx)
		if err != nil {
			return nil, err
		}
		return consumer, nil
	}
	if c.PsJobsSubscription == "" {
		return nil, fmt.Errorf("missing configuration for the jobs queue (--pgqConnection or --psJobsSubscription)")
	}
	m, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitoring.NewMetricClient: %w", err)
	}
	c.stops = append(c.stops, func() { m.Close() })
	return pubsub.NewConsumer(c.Project, c.PsJobsSubscription, pubsub.WithMonitoringClient(m)), nil
}

// Close stops the publishers and the consumers
func (c *MessagingConfig) Close() {
	for _, stop := range c.stops {
		stop()
	}
	c.stops = nil
}
