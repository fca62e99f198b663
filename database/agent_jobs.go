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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

const agentJobColumns = `job_id, job_type, tenant_id, incident_id, priority, input_data, status, result, error, created_at, started_at, completed_at`

func (d Datasource) CreateAgentJob(ctx context.Context, job *model.AgentJob) error {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "CreateAgentJob")
	defer span.End()

	input := job.InputData
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO agent_jobs (job_id, job_type, tenant_id, incident_id, priority, input_data, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.JobID, job.JobType, job.TenantID, nullString(job.IncidentID), job.Priority, []byte(input), job.Status, job.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, "Agent job already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create agent job", err)
	}
	return nil
}

func (d Datasource) GetAgentJob(ctx context.Context, jobID string) (*model.AgentJob, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "GetAgentJob")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `
		SELECT `+agentJobColumns+`
		FROM agent_jobs
		WHERE job_id = $1
	`, jobID)

	job, err := scanAgentJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Agent job not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve agent job", err)
	}
	return job, nil
}

// UpdateAgentJob writes the lifecycle fields of a job. The row is addressed by job_id only;
// the status machine on model.AgentJob decides what is legal.
func (d Datasource) UpdateAgentJob(ctx context.Context, job *model.AgentJob) error {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "UpdateAgentJob")
	defer span.End()

	var result interface{}
	if job.Result != nil {
		encoded, err := json.Marshal(job.Result)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal agent result", err)
		}
		result = encoded
	}

	res, err := d.db().ExecContext(ctx, `
		UPDATE agent_jobs
		SET status = $2, result = $3, error = $4, started_at = $5, completed_at = $6
		WHERE job_id = $1
	`, job.JobID, job.Status, result, nullString(job.Error), job.StartedAt, job.CompletedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update agent job", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Agent job not found", nil)
	}
	return nil
}

func (d Datasource) GetAgentJobsByIncident(ctx context.Context, tenantID, incidentID string) ([]model.AgentJob, error) {
	rows, err := d.db().QueryContext(ctx, `
		SELECT `+agentJobColumns+`
		FROM agent_jobs
		WHERE tenant_id = $1 AND incident_id = $2
		ORDER BY created_at
	`, tenantID, incidentID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve agent jobs", err)
	}
	defer rows.Close()

	jobs := []model.AgentJob{}
	for rows.Next() {
		job, err := scanAgentJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan agent job", err)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over agent jobs", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgentJob(row rowScanner) (*model.AgentJob, error) {
	var (
		job                    model.AgentJob
		incidentID, errMessage sql.NullString
		input, result          []byte
		startedAt, completedAt sql.NullTime
	)

	err := row.Scan(&job.JobID, &job.JobType, &job.TenantID, &incidentID, &job.Priority, &input, &job.Status,
		&result, &errMessage, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.IncidentID = incidentID.String
	job.Error = errMessage.String
	job.InputData = json.RawMessage(input)
	if len(result) > 0 {
		job.Result = &model.AgentResult{}
		if err = json.Unmarshal(result, job.Result); err != nil {
			return nil, err
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
