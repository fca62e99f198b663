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
	"encoding/json"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
)

func (d Datasource) CreateComplianceCase(ctx context.Context, complianceCase *model.ComplianceCase) error {
	metadata, err := json.Marshal(complianceCase.Metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal case metadata", err)
	}

	_, err = d.db().ExecContext(ctx, `
		INSERT INTO compliance_cases (
			case_id, tenant_id, case_type, entity_type, entity_id, priority, status,
			assigned_to, created_by, created_at, description, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, complianceCase.CaseID, complianceCase.TenantID, complianceCase.CaseType, complianceCase.EntityType,
		complianceCase.EntityID, complianceCase.Priority, complianceCase.Status, complianceCase.AssignedTo,
		complianceCase.CreatedBy, complianceCase.CreatedAt, complianceCase.Description, metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create compliance case", err)
	}
	return nil
}

func (d Datasource) CreateComplianceTask(ctx context.Context, task *model.ComplianceTask) error {
	_, err := d.db().ExecContext(ctx, `
		INSERT INTO compliance_tasks (case_id, tenant_id, task_description, status, assigned_to, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, task.CaseID, task.TenantID, task.Description, task.Status, task.AssignedTo, task.DueDate)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create compliance task", err)
	}
	return nil
}

func (d Datasource) CreateDocumentRequest(ctx context.Context, request *model.DocumentRequest) error {
	documents, err := json.Marshal(request.RequestedDocuments)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal requested documents", err)
	}

	_, err = d.db().ExecContext(ctx, `
		INSERT INTO document_requests (
			request_id, tenant_id, entity_type, entity_id, requested_documents,
			priority, status, due_date, requested_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, request.RequestID, request.TenantID, request.EntityType, request.EntityID, documents,
		request.Priority, request.Status, request.DueDate, request.RequestedBy, request.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create document request", err)
	}
	return nil
}
