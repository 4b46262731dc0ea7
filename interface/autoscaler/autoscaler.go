package autoscaler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/airbusgeo/dcquery/interface/messaging"
	"go.uber.org/zap"
)

// Workers is a pool of export workers that can be resized
type Workers interface {
	Size(ctx context.Context) (int64, error)
	// Resize sets the number of workers
	Resize(ctx context.Context, newSize int64) error
	// ScaleDown removes workers, the idle ones first
	ScaleDown(ctx context.Context, newSize int64) error
}

// Config of the autoscaling
type Config struct {
	// Ratio is the jobs/worker ratio over which workers are added
	Ratio float64 `json:"ratio"`
	// MinRatio is the jobs/worker ratio under which workers are removed, even if they are busy (0: disabled)
	MinRatio     float64 `json:"minRatio"`
	MaxStep      int64   `json:"maxStep"`
	MaxInstances int64   `json:"maxInstances"`
	MinInstances int64   `json:"minInstances"`
}

// Validate checks the consistency of the configuration
func (cfg Config) Validate() error {
	switch {
	case cfg.Ratio < 1.0:
		return fmt.Errorf("ratio must be >= 1.0")
	case cfg.MinRatio < 0.0:
		return fmt.Errorf("minRatio must be >= 0.0")
	case cfg.MinRatio > cfg.Ratio:
		return fmt.Errorf("minRatio must be <= ratio")
	case cfg.MaxStep < 1:
		return fmt.Errorf("maxStep must be >= 1")
	case cfg.MaxInstances < 1:
		return fmt.Errorf("maxInstances must be >= 1")
	case cfg.MinInstances < 0:
		return fmt.Errorf("minInstances must be >= 0")
	case cfg.MaxInstances < cfg.MinInstances:
		return fmt.Errorf("maxInstances must be >= minInstances")
	}
	return nil
}

// Operation is the result of an autoscaling
type Operation struct {
	Backlog   int64 `json:"backlog"`
	Instances int64 `json:"instances"`
	Delta     int64 `json:"delta"`
}

// NeededSize returns the number of workers needed to process the backlog
func (cfg Config) NeededSize(backlog, instances int64) int64 {
	needed := instances
	switch {
	case backlog == 0:
		needed = 0
	case instances == 0:
		needed = int64(math.Ceil(float64(backlog) / cfg.Ratio))
	default:
		ratio := float64(backlog) / float64(instances)
		switch {
		case ratio > cfg.Ratio:
			needed = int64(math.Ceil(float64(backlog) / cfg.Ratio))
		case instances > 1 && cfg.MinRatio > 0 && ratio < cfg.MinRatio:
			needed = int64(math.Ceil(float64(backlog) / cfg.MinRatio))
		case ratio < 1.0:
			needed = backlog
		}
	}

	if needed > cfg.MaxInstances {
		if instances > cfg.MaxInstances {
			// Do not stop busy workers started outside of the autoscaler
			needed = instances
			if backlog < instances {
				needed = backlog
			}
		} else {
			needed = cfg.MaxInstances
		}
	}

	if needed < cfg.MinInstances {
		return cfg.MinInstances
	}
	if needed-instances > cfg.MaxStep {
		return instances + cfg.MaxStep
	}
	if instances-needed > cfg.MaxStep && backlog > 0 {
		return instances - cfg.MaxStep
	}
	return needed
}

// Autoscaler resizes the workers according to the backlog of the jobs queue
type Autoscaler struct {
	queue   messaging.Queue
	workers Workers
	cfg     Config
	logger  *zap.Logger
}

// New returns an autoscaler. logger is optional.
func New(queue messaging.Queue, workers Workers, cfg Config, logger *zap.Logger) (*Autoscaler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("autoscaler.New: %w", err)
	}
	return &Autoscaler{queue: queue, workers: workers, cfg: cfg, logger: logger}, nil
}

// Autoscale resizes the workers once
func (as *Autoscaler) Autoscale(ctx context.Context) (Operation, error) {
	op := Operation{}

	backlogErr := make(chan error, 1)
	go func() {
		var err error
		op.Backlog, err = as.queue.Backlog(ctx)
		backlogErr <- err
	}()
	var sizeErr error
	op.Instances, sizeErr = as.workers.Size(ctx)

	if err := <-backlogErr; err != nil {
		return op, fmt.Errorf("get backlog: %w", err)
	}
	if sizeErr != nil {
		return op, fmt.Errorf("get instance count: %w", sizeErr)
	}

	needed := as.cfg.NeededSize(op.Backlog, op.Instances)
	op.Delta = needed - op.Instances
	switch {
	case op.Delta == 0:
		return op, nil
	case op.Delta > 0 || op.Backlog == 0:
		if err := as.workers.Resize(ctx, needed); err != nil {
			return op, fmt.Errorf("resize instances: %w", err)
		}
	default:
		if err := as.workers.ScaleDown(ctx, needed); err != nil {
			return op, fmt.Errorf("scale down instances: %w", err)
		}
	}
	return op, nil
}

// Run autoscales every refresh period until ctx is done
func (as *Autoscaler) Run(ctx context.Context, refresh time.Duration) {
	as.autoscale(ctx)
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			as.autoscale(ctx)
		}
	}
}

func (as *Autoscaler) autoscale(ctx context.Context) {
	op, err := as.Autoscale(ctx)
	if as.logger == nil {
		return
	}
	if err != nil {
		as.logger.Error("failed autoscale", zap.Error(err), zap.Any("operation", op))
	} else if op.Delta != 0 {
		as.logger.Info("autoscaled", zap.Any("operation", op))
	}
}
