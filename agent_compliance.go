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
	"fmt"

	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/model"
)

// openComplianceCase opens a sanctions case for a counterparty, freezes the relationship and
// schedules the compliance team's follow-up work.
func (r *RedFlags) openComplianceCase(ctx context.Context, ds database.IDataSource, tenantID string, in model.ComplianceCaseInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "OpenComplianceCase")
	defer span.End()

	now := r.now()
	detectedAt := now
	if in.DetectedAt != nil {
		detectedAt = *in.DetectedAt
	}
	flagType := in.FlagType
	if flagType == "" {
		flagType = string(model.FlagSanctionedEntity)
	}

	complianceCase := &model.ComplianceCase{
		CaseID:      model.GenerateUUIDWithSuffix("case"),
		TenantID:    tenantID,
		CaseType:    model.CaseTypeSanctionsScreening,
		EntityType:  model.EntityTypeCounterparty,
		EntityID:    in.EntityID,
		Priority:    model.PriorityHigh,
		Status:      model.StatusOpen,
		AssignedTo:  model.ComplianceTeam,
		CreatedBy:   model.SystemAgent,
		Description: fmt.Sprintf("Sanctions screening hit for counterparty %s", in.EntityID),
		Metadata: map[string]interface{}{
			"flagType":   flagType,
			"detectedAt": detectedAt,
			"confidence": in.ScreeningConfidence(),
		},
		CreatedAt: now,
	}
	if err := ds.CreateComplianceCase(ctx, complianceCase); err != nil {
		return nil, err
	}

	frozen, err := ds.FreezeCounterparty(ctx, tenantID, in.EntityID, model.SanctionsFreezeReason)
	if err != nil {
		return nil, err
	}

	dueDate := now.Add(model.ComplianceTaskDueIn)
	for _, description := range model.ComplianceFollowUpTasks {
		err := ds.CreateComplianceTask(ctx, &model.ComplianceTask{
			CaseID:      complianceCase.CaseID,
			TenantID:    tenantID,
			Description: description,
			Status:      model.StatusPending,
			AssignedTo:  model.ComplianceTeam,
			DueDate:     dueDate,
		})
		if err != nil {
			return nil, err
		}
	}

	result := model.NewAgentResult(model.JobComplianceCaseOpen)
	result.Actions = []string{fmt.Sprintf("Created compliance case: %s", complianceCase.CaseID)}
	if frozen {
		result.Actions = append(result.Actions, "Froze counterparty relationship", "Blocked all payments and transfers")
	} else {
		result.Actions = append(result.Actions, "No counterparty record found to freeze")
	}
	result.Actions = append(result.Actions, fmt.Sprintf("Created %d follow-up tasks", len(model.ComplianceFollowUpTasks)))
	result.Recommendations = []string{
		"Complete Enhanced Due Diligence within 72 hours",
		"Review all historical transactions with this entity",
		"Assess regulatory reporting obligations",
		"Document all findings for audit trail",
	}
	result.NextSteps = []string{
		"Compliance team to begin EDD review",
		"Legal team to assess relationship termination",
		"Prepare regulatory filing if required",
	}
	result.Evidence = map[string]interface{}{
		"caseId":         complianceCase.CaseID,
		"counterpartyId": in.EntityID,
		"frozen":         frozen,
		"tasksCreated":   len(model.ComplianceFollowUpTasks),
		"dueDate":        dueDate,
	}
	return result, nil
}
