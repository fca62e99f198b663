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

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobType identifies which remediation procedure an agent job runs.
type JobType string

const (
	JobRepairUnbalanced      JobType = "FIN_REPAIR_UNBALANCED"
	JobDedupReview           JobType = "FIN_DEDUP_REVIEW"
	JobTransactionOutliers   JobType = "FIN_TRANSACTION_OUTLIERS"
	JobComplianceCaseOpen    JobType = "COMPLIANCE_CASE_OPEN"
	JobForensicSnapshot      JobType = "SEC_FORENSIC_SNAPSHOT"
	JobSupportingDocsRequest JobType = "FIN_SUPPORTING_DOCS_REQUEST"
	JobAMLAlertTriage        JobType = "AML_ALERT_TRIAGE"
)

// JobTypes lists every job type the dispatcher knows how to run.
var JobTypes = []JobType{
	JobRepairUnbalanced,
	JobDedupReview,
	JobTransactionOutliers,
	JobComplianceCaseOpen,
	JobForensicSnapshot,
	JobSupportingDocsRequest,
	JobAMLAlertTriage,
}

func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of an agent job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Priority is shared by jobs, cases and follow-up tasks.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ErrIllegalTransition is wrapped by every rejected status change.
var ErrIllegalTransition = errors.New("illegal job status transition")

// failed -> queued is the explicit requeue path; nothing leaves completed.
var allowedTransitions = map[JobStatus]map[JobStatus]struct{}{
	JobQueued:  {JobRunning: {}},
	JobRunning: {JobCompleted: {}, JobFailed: {}},
	JobFailed:  {JobQueued: {}},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// AgentJob is a single remediation run requested for a tenant.
type AgentJob struct {
	JobID       string          `json:"job_id"`
	JobType     JobType         `json:"job_type"`
	TenantID    string          `json:"tenant_id"`
	IncidentID  string          `json:"incident_id,omitempty"`
	Priority    Priority        `json:"priority"`
	InputData   json.RawMessage `json:"input_data"`
	Status      JobStatus       `json:"status"`
	Result      *AgentResult    `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (j *AgentJob) transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: job %s cannot move from %q to %q", ErrIllegalTransition, j.JobID, j.Status, to)
	}
	j.Status = to
	return nil
}

// Start moves a queued job to running and stamps StartedAt.
func (j *AgentJob) Start(at time.Time) error {
	if err := j.transition(JobRunning); err != nil {
		return err
	}
	j.StartedAt = &at
	return nil
}

// Complete attaches the handler result to a running job.
func (j *AgentJob) Complete(result AgentResult, at time.Time) error {
	if err := j.transition(JobCompleted); err != nil {
		return err
	}
	j.Result = &result
	j.Error = ""
	j.CompletedAt = &at
	return nil
}

// Fail records the error message on a running job.
func (j *AgentJob) Fail(message string, at time.Time) error {
	if err := j.transition(JobFailed); err != nil {
		return err
	}
	j.Result = nil
	j.Error = message
	j.CompletedAt = &at
	return nil
}

// Requeue puts a failed job back in the queue, clearing the previous attempt.
func (j *AgentJob) Requeue() error {
	if err := j.transition(JobQueued); err != nil {
		return err
	}
	j.Error = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	return nil
}

// InterruptedJobMessage is recorded on a running job whose worker went away without saving an outcome.
const InterruptedJobMessage = "Agent job was interrupted before its outcome was recorded"

// Stalled reports whether a running job started at least ttl before now. No worker can still hold
// its entity lock, so the run will not record an outcome.
func (j AgentJob) Stalled(now time.Time, ttl time.Duration) bool {
	if j.Status != JobRunning {
		return false
	}
	return j.StartedAt == nil || now.Sub(*j.StartedAt) >= ttl
}

// LockKey names the business entity a job works on. Jobs sharing a key are run one at a time.
// Jobs that do not target a single entity are serialised per tenant.
func (j AgentJob) LockKey() string {
	var target struct {
		EntityID string `json:"entityId"`
	}
	if len(j.InputData) > 0 {
		_ = json.Unmarshal(j.InputData, &target)
	}
	if target.EntityID == "" {
		return j.TenantID
	}
	return j.TenantID + ":" + target.EntityID
}
