/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/internal/apierror"
	redlock "github.com/dogan-ai/redflags/internal/lock"
	"github.com/dogan-ai/redflags/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrOutcomeNotSaved is wrapped when a run finished but its final status could not be written.
// The stored job is left running and the queue retries the task.
var ErrOutcomeNotSaved = errors.New("agent job outcome was not saved")

// ExecuteAgent runs job's handler and records the outcome on the job row.
//
// The job must be queued. It is marked running before the handler starts. The handler's writes
// commit together; on any error they are rolled back, the job is marked failed with the error
// message and the error is returned. When the final status cannot be written the error wraps
// ErrOutcomeNotSaved.
func (r *RedFlags) ExecuteAgent(ctx context.Context, job *model.AgentJob) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "ExecuteAgent")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.JobID),
		attribute.String("job.type", string(job.JobType)),
		attribute.String("tenant.id", job.TenantID),
	)

	logger := logrus.WithFields(logrus.Fields{"job_id": job.JobID, "job_type": job.JobType, "tenant_id": job.TenantID})

	if err := job.Start(r.now()); err != nil {
		return nil, invalidState(err)
	}
	if err := r.datasource.UpdateAgentJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Info("agent job started")

	result, err := r.runHandler(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if saveErr := r.failJob(ctx, job, err, logger); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return nil, err
	}

	if err := job.Complete(*result, r.now()); err != nil {
		return nil, invalidState(err)
	}
	if err := r.datasource.UpdateAgentJob(ctx, job); err != nil {
		logger.WithError(err).Error("could not persist agent job completion")
		return nil, outcomeNotSaved(err)
	}
	logger.WithField("actions", len(result.Actions)).Info("agent job completed")

	r.publish(ctx, Webhook{Event: jobEvent(job.Status), Payload: job})
	return result, nil
}

// ExecuteAgentByID loads a tenant's job and runs it. The job is returned with its final status
// even when the run fails.
func (r *RedFlags) ExecuteAgentByID(ctx context.Context, tenantID, jobID string) (*model.AgentJob, *model.AgentResult, error) {
	job, err := r.GetAgentJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, nil, err
	}
	result, err := r.ExecuteAgent(ctx, job)
	return job, result, err
}

func (r *RedFlags) runHandler(ctx context.Context, job *model.AgentJob) (*model.AgentResult, error) {
	input, err := model.DecodeAgentInput(job.JobType, job.InputData)
	if err != nil {
		var unknown model.UnknownJobTypeError
		if errors.As(err, &unknown) {
			return nil, unknown
		}
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	var result *model.AgentResult
	err = r.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		var handlerErr error
		result, handlerErr = r.dispatch(ctx, ds, job, input)
		return handlerErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dispatch selects the handler for the typed input.
func (r *RedFlags) dispatch(ctx context.Context, ds database.IDataSource, job *model.AgentJob, input model.AgentInput) (*model.AgentResult, error) {
	switch in := input.(type) {
	case model.RepairUnbalancedInput:
		return r.repairUnbalanced(ctx, ds, job.TenantID, in)
	case model.DedupReviewInput:
		return r.reviewDuplicates(ctx, ds, job.TenantID, in)
	case model.TransactionOutliersInput:
		return r.detectOutliers(ctx, ds, job.TenantID, in)
	case model.ComplianceCaseInput:
		return r.openComplianceCase(ctx, ds, job.TenantID, in)
	case model.ForensicSnapshotInput:
		return r.captureForensicSnapshot(ctx, ds, job, in)
	case model.SupportingDocsInput:
		return r.requestSupportingDocs(ctx, ds, job.TenantID, in)
	case model.AMLTriageInput:
		return r.triageAMLAlert(ctx, ds, job.TenantID, in)
	default:
		return nil, model.UnknownJobTypeError{Type: job.JobType}
	}
}

// failJob records cause on the job. The returned error is set only when the failure was not saved.
func (r *RedFlags) failJob(ctx context.Context, job *model.AgentJob, cause error, logger *logrus.Entry) error {
	message := apierror.Message(cause)
	if err := job.Fail(message, r.now()); err != nil {
		return invalidState(err)
	}
	if err := r.datasource.UpdateAgentJob(ctx, job); err != nil {
		logger.WithError(err).Error("could not persist agent job failure")
		return outcomeNotSaved(err)
	}
	logger.WithField("error", message).Warn("agent job failed")
	r.publish(ctx, Webhook{Event: jobEvent(job.Status), Payload: job})
	return nil
}

func outcomeNotSaved(err error) error {
	return fmt.Errorf("%w: %w", ErrOutcomeNotSaved, err)
}

// CreateAgentJob validates and records a new queued job.
func (r *RedFlags) CreateAgentJob(ctx context.Context, job *model.AgentJob) (*model.AgentJob, error) {
	ctx, span := tracer.Start(ctx, "CreateAgentJob")
	defer span.End()

	if job.TenantID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "tenant_id is required", nil)
	}
	if !job.JobType.Valid() {
		return nil, model.UnknownJobTypeError{Type: job.JobType}
	}
	if job.Priority == "" {
		job.Priority = model.PriorityMedium
	}
	if !job.Priority.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "priority must be one of low, medium, high, critical", nil)
	}
	if len(job.InputData) == 0 {
		job.InputData = json.RawMessage("{}")
	}
	if _, err := model.DecodeAgentInput(job.JobType, job.InputData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	if job.JobID == "" {
		job.JobID = model.GenerateUUIDWithSuffix("job")
	}
	job.Status = model.JobQueued
	job.Result = nil
	job.Error = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	job.CreatedAt = r.now()

	if err := r.datasource.CreateAgentJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// QueueAgentJob records a job and hands it to the workers. Without a queue the job runs inline
// and its outcome is on the returned job.
func (r *RedFlags) QueueAgentJob(ctx context.Context, job *model.AgentJob) (*model.AgentJob, error) {
	job, err := r.CreateAgentJob(ctx, job)
	if err != nil {
		return nil, err
	}
	return job, r.enqueue(ctx, job)
}

// RetryAgentJob puts a failed job back in the queue. A stalled running job is marked interrupted
// first, so a run whose worker died can be restarted.
func (r *RedFlags) RetryAgentJob(ctx context.Context, jobID string) (*model.AgentJob, error) {
	job, err := r.datasource.GetAgentJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stalled(r.now(), r.lockTTL()) {
		if err := job.Fail(model.InterruptedJobMessage, r.now()); err != nil {
			return nil, invalidState(err)
		}
	}
	if err := job.Requeue(); err != nil {
		return nil, invalidState(err)
	}
	if err := r.datasource.UpdateAgentJob(ctx, job); err != nil {
		return nil, err
	}
	return job, r.enqueue(ctx, job)
}

func (r *RedFlags) GetAgentJob(ctx context.Context, tenantID, jobID string) (*model.AgentJob, error) {
	job, err := r.datasource.GetAgentJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Agent job not found", nil)
	}
	return job, nil
}

func (r *RedFlags) enqueue(ctx context.Context, job *model.AgentJob) error {
	if r.queue != nil {
		if err := r.queue.EnqueueAgentJob(ctx, job); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue agent job", err)
		}
		return nil
	}

	// the failure, if any, is recorded on the job
	_, _ = r.ExecuteAgent(ctx, job)
	return nil
}

// ProcessAgentJob is the asynq handler for agent jobs. Runs on the same entity are serialised
// with a Redis lock. A job whose failure was recorded is not retried by the queue; one whose
// outcome could not be saved is.
func (r *RedFlags) ProcessAgentJob(ctx context.Context, task *asynq.Task) error {
	var payload AgentJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}

	job, err := r.datasource.GetAgentJob(ctx, payload.JobID)
	if err != nil {
		if apierror.HasCode(err, apierror.ErrNotFound) {
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}

	if r.redis != nil {
		locker := redlock.NewLocker(r.redis, redlock.AgentLockKey(job.LockKey()), model.GenerateUUIDWithSuffix("worker"))
		lockWait := time.Duration(r.config.Agents.LockWaitSeconds) * time.Second
		if err := locker.WaitLock(ctx, r.lockTTL(), lockWait); err != nil {
			return err
		}
		defer func() {
			if err := locker.Unlock(context.Background()); err != nil {
				logrus.WithError(err).WithField("job_id", job.JobID).Warn("failed to release agent lock")
			}
		}()
	}

	if job.Status == model.JobRunning {
		return r.recoverStalledJob(ctx, job)
	}

	_, err = r.ExecuteAgent(ctx, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOutcomeNotSaved):
		return err
	case job.Status == model.JobFailed, apierror.HasCode(err, apierror.ErrInvalidState):
		return nil
	}
	return err
}

// recoverStalledJob fails a job left running by an earlier attempt. A job started within the lock
// TTL may still be running elsewhere, so the task is retried later instead.
func (r *RedFlags) recoverStalledJob(ctx context.Context, job *model.AgentJob) error {
	if !job.Stalled(r.now(), r.lockTTL()) {
		return fmt.Errorf("agent job %s is still running", job.JobID)
	}
	if err := job.Fail(model.InterruptedJobMessage, r.now()); err != nil {
		return invalidState(err)
	}
	if err := r.datasource.UpdateAgentJob(ctx, job); err != nil {
		return outcomeNotSaved(err)
	}
	logrus.WithField("job_id", job.JobID).Warn("stalled agent job marked as failed")
	r.publish(ctx, Webhook{Event: jobEvent(job.Status), Payload: job})
	return nil
}

func (r *RedFlags) lockTTL() time.Duration {
	seconds := r.config.Agents.LockTimeoutSeconds
	if seconds <= 0 {
		seconds = config.DEFAULT_LOCK_TIMEOUT
	}
	return time.Duration(seconds) * time.Second
}

func invalidState(err error) error {
	return apierror.NewAPIError(apierror.ErrInvalidState, err.Error(), nil)
}
