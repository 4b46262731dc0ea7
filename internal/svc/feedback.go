package svc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/log"
	"go.uber.org/zap"
)

// Feedback reports the progress of an export and tells whether it has been canceled
type Feedback interface {
	// SetProgress sets the progress in percent
	SetProgress(progress float64)
	SetProgressText(text string)
	PushInfo(info string)
	ReportError(msg string, fatal bool)
	IsCanceled() bool
}

// LogFeedback logs the progress. It is canceled with its context.
type LogFeedback struct {
	ctx      context.Context
	progress float64
	Errors   []string
}

func NewLogFeedback(ctx context.Context) *LogFeedback {
	return &LogFeedback{ctx: ctx}
}

func (f *LogFeedback) SetProgress(progress float64) {
	if math.Floor(progress) != math.Floor(f.progress) {
		log.Logger(f.ctx).Sugar().Infof("progress: %d%%", int(progress))
	}
	f.progress = progress
}

func (f *LogFeedback) SetProgressText(text string) {
	log.Logger(f.ctx).Info(text)
}

func (f *LogFeedback) PushInfo(info string) {
	log.Logger(f.ctx).Debug(info)
}

func (f *LogFeedback) ReportError(msg string, fatal bool) {
	f.Errors = append(f.Errors, msg)
	log.Logger(f.ctx).Error(msg, zap.Bool("fatal", fatal))
}

func (f *LogFeedback) IsCanceled() bool {
	return f.ctx.Err() != nil
}

// JobFeedback publishes the progress of an export job as ExportEvents.
// A job is canceled when its context is done or when it is referenced in the cancelled jobs storage.
type JobFeedback struct {
	*LogFeedback
	jobID     string
	publisher messaging.Publisher
	cancelled func(ctx context.Context) bool

	mu          sync.Mutex
	text        string
	lastCheck   time.Time
	isCancelled bool
}

// cancellationCheckPeriod limits the calls to the cancelled jobs storage
const cancellationCheckPeriod = 5 * time.Second

func newJobFeedback(ctx context.Context, jobID string, publisher messaging.Publisher, cancelled func(ctx context.Context) bool) *JobFeedback {
	return &JobFeedback{
		LogFeedback: NewLogFeedback(log.With(ctx, "job_id", jobID)),
		jobID:       jobID,
		publisher:   publisher,
		cancelled:   cancelled,
	}
}

// SetProgress publishes an event each time the integer part of the progress changes
func (f *JobFeedback) SetProgress(progress float64) {
	changed := math.Floor(progress) != math.Floor(f.progress)
	f.LogFeedback.SetProgress(progress)
	if changed {
		f.publish(datacube.ExportRunning, nil)
	}
}

func (f *JobFeedback) SetProgressText(text string) {
	f.LogFeedback.SetProgressText(text)
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
	f.publish(datacube.ExportRunning, nil)
}

func (f *JobFeedback) ReportError(msg string, fatal bool) {
	f.LogFeedback.ReportError(msg, fatal)
	f.publish(datacube.ExportRunning, nil)
}

func (f *JobFeedback) IsCanceled() bool {
	if f.LogFeedback.IsCanceled() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isCancelled && f.cancelled != nil && time.Since(f.lastCheck) >= cancellationCheckPeriod {
		f.lastCheck = time.Now()
		f.isCancelled = f.cancelled(f.ctx)
	}
	return f.isCancelled
}

// Event returns the current state of the job
func (f *JobFeedback) Event(status datacube.ExportStatus, outputs Outputs) datacube.ExportEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return datacube.ExportEvent{
		JobID:    f.jobID,
		Status:   status,
		Progress: f.progress,
		Message:  f.text,
		Outputs:  outputs,
		Errors:   append([]string(nil), f.Errors...),
	}
}

// publish sends the current state of the job. The failure of a progress event is not fatal.
func (f *JobFeedback) publish(status datacube.ExportStatus, outputs Outputs) error {
	if f.publisher == nil {
		return nil
	}
	evt := f.Event(status, outputs)
	data, err := datacube.MarshalEvent(evt)
	if err == nil {
		err = f.publisher.Publish(f.ctx, data)
	}
	if err != nil {
		err = fmt.Errorf("publish event %s of job %s: %w", status, f.jobID, err)
		log.Logger(f.ctx).Warn(err.Error())
	}
	return err
}
