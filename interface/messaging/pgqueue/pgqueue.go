package pgqueue

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/btubbs/pgq"
	"github.com/sirupsen/logrus"
)

type PublisherOption func(o *Publisher)

func WithMaxRetries(maxRetries int) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = maxRetries
	}
}

// Publisher implements messaging.Publisher on top of the pgq_jobs table
type Publisher struct {
	worker     *pgq.Worker
	queueName  string
	maxRetries int
}

// Consumer implements messaging.Consumer and messaging.Queue
type Consumer struct {
	db        *sql.DB
	worker    *pgq.Worker
	queueName string
	running   bool
}

func defaultLogger() pgq.WorkerOption {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.WarnLevel)
	logger.SetOutput(os.Stdout)
	return pgq.SetLogger(logger)
}

// SqlConnect opens the database hosting the pgq_jobs table.
// The returned worker can be shared by several publishers.
func SqlConnect(ctx context.Context, dbConnection string) (*sql.DB, *pgq.Worker, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("pgqueue.Connect: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("pgqueue.Connect: failed to ping database: %w", utils.MakeTemporary(err))
	}

	return db, pgq.NewWorker(db, defaultLogger()), nil
}

// NewPublisher returns a pg queue publisher.
func NewPublisher(w *pgq.Worker, queueName string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		queueName: queueName,
		worker:    w,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements messaging.Publisher
// Messages failing with a temporary error are retried with an exponential backoff
func (p *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	for retry := 0; len(data) > 0; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second * time.Duration(math.Exp2(float64(retry-1)))):
			}
		}
		var failed [][]byte
		for _, d := range data {
			_, err := p.worker.EnqueueJob(p.queueName, d)
			if utils.Temporary(err) && retry < p.maxRetries {
				failed = append(failed, d)
			} else if err != nil {
				return fmt.Errorf("pgQueue.Publish: %w", err)
			}
		}
		data = failed
	}
	return nil
}

// NewConsumer returns a pg queue consumer.
// A consumer cannot share its worker with another instance
func NewConsumer(db *sql.DB, queueName string) *Consumer {
	return &Consumer{
		db:        db,
		queueName: queueName,
		worker:    pgq.NewWorker(db, defaultLogger()),
	}
}

// Pull implements messaging.Consumer.
// pgq runs the callback on every message of the queue until Stop is called.
func (c *Consumer) Pull(ctx context.Context, cb messaging.Callback) error {
	h := handler{ctx: ctx, cb: cb}
	if err := c.worker.RegisterQueue(c.queueName, h.handle); err != nil {
		return fmt.Errorf("pgQueue.Pull.RegisterQueue: %w", err)
	}
	c.running = true
	return c.worker.Run()
}

func (c *Consumer) Stop() {
	if c.running {
		c.worker.StopChan <- true
	}
}

type handler struct {
	ctx context.Context
	cb  messaging.Callback
}

func (h handler) handle(data []byte) error {
	err := h.cb(h.ctx, &messaging.Message{
		Data:       data,
		Attributes: map[string]string{},
		TryCount:   -1,
	})
	if err == nil {
		return nil
	}
	if utils.Temporary(err) {
		// pgq will run the job again
		log.Logger(h.ctx).Warn("Temporary error: " + err.Error())
		return err
	}
	log.Logger(h.ctx).Error("Fatal error: " + err.Error())
	return nil
}

// Backlog implements messaging.Queue
func (c *Consumer) Backlog(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM pgq_jobs
		WHERE
			queue_name = $1
			AND run_after < $2
			AND ran_at IS NULL;`, c.queueName, time.Now()).Scan(&count); err != nil {
		return -1, fmt.Errorf("Backlog: could not count jobs: %w", err)
	}
	return count, nil
}
