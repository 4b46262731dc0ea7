package svc

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/interface/storage"
	"github.com/airbusgeo/dcquery/internal/datacube"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// ExportJob is an export submitted to the workers
type ExportJob struct {
	ID         string
	Parameters query.Parameters
	// Settings is the yaml representation of the query.Settings
	Settings  []byte
	Submitted time.Time
}

// NewExportJob creates a new job with a unique ID
func NewExportJob(params query.Parameters, settings query.Settings) (*ExportJob, error) {
	s, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("NewExportJob: %w", err)
	}
	return &ExportJob{
		ID:         uuid.New().String(),
		Parameters: params,
		Settings:   s,
		Submitted:  time.Now().UTC(),
	}, nil
}

// LoadSettings returns the settings of the job
func (j ExportJob) LoadSettings() (query.Settings, error) {
	s := query.DefaultSettings()
	if err := yaml.UnmarshalStrict(j.Settings, &s); err != nil {
		return s, fmt.Errorf("job %s: invalid settings: %w", j.ID, err)
	}
	return s, nil
}

// MarshalExportJob returns bytes representation of an export job
func MarshalExportJob(job ExportJob) ([]byte, error) {
	var data bytes.Buffer
	if err := gob.NewEncoder(&data).Encode(&job); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}

// UnmarshalExportJob returns the job stored in data
func UnmarshalExportJob(data []byte) (*ExportJob, error) {
	var job ExportJob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SubmitExport validates the parameters and publishes an export job. It returns the ID of the job.
func (svc *Service) SubmitExport(ctx context.Context, params query.Parameters, settings query.Settings) (string, error) {
	if svc.jobPublisher == nil {
		return "", fmt.Errorf("SubmitExport: no job publisher is configured")
	}
	if err := settings.Validate(); err != nil {
		return "", err
	}
	ok, msgs, err := svc.ValidateParameters(ctx, params)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", datacube.NewValidationError("invalid parameters: %v", msgs)
	}

	job, err := NewExportJob(params, settings)
	if err != nil {
		return "", err
	}
	data, err := MarshalExportJob(*job)
	if err != nil {
		return "", fmt.Errorf("SubmitExport: %w", err)
	}
	if err := svc.jobPublisher.Publish(ctx, data); err != nil {
		return "", fmt.Errorf("SubmitExport: %w", err)
	}
	log.Logger(ctx).Info("export submitted", zap.String("job_id", job.ID))
	return job.ID, nil
}

func (svc *Service) cancelMarker(jobID string) (string, error) {
	if svc.cancelledJobsStorage == "" {
		return "", fmt.Errorf("no cancelled jobs storage is configured")
	}
	return utils.URLJoin(svc.cancelledJobsStorage, jobID), nil
}

// CancelExport references the job in the cancelled jobs storage. The worker stops the job at its next check.
func (svc *Service) CancelExport(ctx context.Context, jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return datacube.NewValidationError("invalid job id %s: %v", jobID, err)
	}
	marker, err := svc.cancelMarker(jobID)
	if err != nil {
		return fmt.Errorf("CancelExport: %w", err)
	}
	strategy, err := svc.storageStrategy(ctx, marker)
	if err != nil {
		return fmt.Errorf("CancelExport: %w", err)
	}
	if err := strategy.Upload(ctx, marker, nil); err != nil {
		return fmt.Errorf("CancelExport: %w", err)
	}
	return nil
}

// isCancelled returns true if the job is referenced in the cancelled jobs storage
func (svc *Service) isCancelled(ctx context.Context, jobID string) bool {
	marker, err := svc.cancelMarker(jobID)
	if err != nil {
		return false
	}
	strategy, err := svc.storageStrategy(ctx, marker)
	if err == nil {
		var exist bool
		if exist, err = strategy.Exist(ctx, marker); err == nil {
			return exist
		}
	}
	if !errors.Is(err, storage.ErrFileNotFound) {
		log.Logger(ctx).Warn("unable to check whether the job is cancelled", zap.String("job_id", jobID), zap.Error(err))
	}
	return false
}

// clearCancelMarker removes the job from the cancelled jobs storage once its cancellation has been published
func (svc *Service) clearCancelMarker(ctx context.Context, jobID string) {
	marker, err := svc.cancelMarker(jobID)
	if err != nil {
		return
	}
	strategy, err := svc.storageStrategy(ctx, marker)
	if err == nil {
		err = strategy.Delete(ctx, marker, storage.IgnoreNotFound())
	}
	if err != nil {
		log.Logger(ctx).Warn("unable to clear the cancelled job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// HandleExportJob runs the export job of the message and publishes its final event (done, failed or cancelled).
// It returns a temporary error if the index is unavailable, so that the job is retried later.
func (svc *Service) HandleExportJob(ctx context.Context, m *messaging.Message) error {
	job, err := UnmarshalExportJob(m.Data)
	if err != nil {
		log.Logger(ctx).Error("invalid export job", zap.String("message_id", m.ID), zap.Error(err))
		return nil
	}
	ctx = log.With(ctx, "job_id", job.ID)

	var cancelled func(ctx context.Context) bool
	if svc.cancelledJobsStorage != "" {
		cancelled = func(ctx context.Context) bool { return svc.isCancelled(ctx, job.ID) }
	}
	feedback := newJobFeedback(ctx, job.ID, svc.eventPublisher, cancelled)

	if feedback.IsCanceled() {
		log.Logger(ctx).Info("export cancelled before start")
		feedback.publish(datacube.ExportCancelled, nil)
		svc.clearCancelMarker(ctx, job.ID)
		return nil
	}

	settings, err := job.LoadSettings()
	if err != nil {
		feedback.ReportError(err.Error(), true)
		feedback.publish(datacube.ExportFailed, nil)
		return nil
	}

	start := time.Now()
	outputs, err := svc.Execute(ctx, job.Parameters, settings, feedback)
	switch {
	case datacube.IsError(err, datacube.IndexUnavailable) && ctx.Err() == nil:
		log.Logger(ctx).Warn("export postponed", zap.Error(err), zap.Int("try", m.TryCount))
		return utils.MakeTemporary(err)
	case err != nil:
		feedback.ReportError(err.Error(), true)
		feedback.publish(datacube.ExportFailed, outputs)
	case feedback.IsCanceled():
		log.Logger(ctx).Info("export cancelled", zap.Int("outputs", len(outputs)))
		feedback.publish(datacube.ExportCancelled, outputs)
		svc.clearCancelMarker(ctx, job.ID)
	default:
		feedback.SetProgress(100)
		log.Logger(ctx).Info("export done", zap.Int("outputs", len(outputs)), zap.Duration("elapsed", time.Since(start)))
		feedback.publish(datacube.ExportDone, outputs)
	}
	return nil
}
