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

// triageAMLAlert scores an account's last hour of activity and restricts it when the risk is high.
func (r *RedFlags) triageAMLAlert(ctx context.Context, ds database.IDataSource, tenantID string, in model.AMLTriageInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "TriageAMLAlert")
	defer span.End()

	pattern, err := ds.GetTransactionPattern(ctx, tenantID, in.EntityID)
	if err != nil {
		return nil, err
	}

	score := pattern.RiskScore()
	level := model.RiskLevelForScore(score)
	now := r.now()

	alert := &model.AMLAlert{
		AlertID:   model.GenerateUUIDWithSuffix("aml"),
		TenantID:  tenantID,
		AccountID: in.EntityID,
		AlertType: model.AMLAlertTypeRapidSuccession,
		RiskLevel: level,
		RiskScore: score,
		Status:    model.StatusOpen,
		CreatedBy: model.SystemAgent,
		Pattern:   pattern,
		CreatedAt: now,
	}
	if err := ds.CreateAMLAlert(ctx, alert); err != nil {
		return nil, err
	}

	result := model.NewAgentResult(model.JobAMLAlertTriage)
	result.Actions = append(result.Actions, fmt.Sprintf("Created AML alert: %s (Risk: %s)", alert.AlertID, level))

	if level.Escalated() {
		err := ds.RestrictAccount(ctx, tenantID, in.EntityID, model.AMLRestrictedDailyLimit, model.AMLRestrictedTransactionLimit)
		if err != nil {
			return nil, err
		}
		if err := ds.FlagAccountForReview(ctx, tenantID, in.EntityID, model.RapidSuccessionReviewReason); err != nil {
			return nil, err
		}
		result.Actions = append(result.Actions,
			"Reduced account transaction limits",
			"Enabled manual review for all transactions",
		)
		result.Recommendations = append(result.Recommendations,
			"Conduct enhanced customer due diligence",
			"Review customer business profile",
			"Consider filing Suspicious Activity Report (SAR)",
		)
	}

	tasks := model.AMLTasksFor(level)
	dueDate := now.Add(model.AMLTaskDueIn)
	for i := range tasks {
		tasks[i].AlertID = alert.AlertID
		tasks[i].TenantID = tenantID
		tasks[i].AssignedTo = model.AMLTeam
		tasks[i].DueDate = dueDate
		if err := ds.CreateAMLTask(ctx, &tasks[i]); err != nil {
			return nil, err
		}
	}
	result.Actions = append(result.Actions, fmt.Sprintf("Created %d investigation tasks", len(tasks)))

	result.NextSteps = []string{
		"AML team to investigate transaction patterns",
		"Contact customer for explanation if needed",
		"Make SAR filing decision within regulatory timeframe",
	}
	result.Evidence = map[string]interface{}{
		"alertId":   alert.AlertID,
		"riskScore": score,
		"riskLevel": level,
		"pattern":   pattern,
	}
	return result, nil
}
