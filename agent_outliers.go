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

// detectOutliers runs three read-only scans over a tenant's transactions: high-value items,
// repeated references and overdue receipts. Nothing is written.
func (r *RedFlags) detectOutliers(ctx context.Context, ds database.IDataSource, tenantID string, in model.TransactionOutliersInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "DetectOutliers")
	defer span.End()

	in = in.WithDefaults()

	high, err := ds.GetHighValueTransactions(ctx, tenantID, in.Threshold, model.OutlierScanLimit)
	if err != nil {
		return nil, err
	}
	repeats, err := ds.GetRepeatedReferences(ctx, tenantID, in.WindowDays, model.RepeatedReferenceMinCount, model.OutlierScanLimit)
	if err != nil {
		return nil, err
	}
	floor := model.OverdueReceiptFloor(in.Threshold)
	overdue, err := ds.GetOverdueReceipts(ctx, tenantID, floor, model.OverdueReceiptAgeDays, model.OutlierScanLimit)
	if err != nil {
		return nil, err
	}

	result := model.NewAgentResult(model.JobTransactionOutliers)
	if len(high) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("Flagged %d high-value transactions (>= %s)", len(high), in.Threshold.StringFixed(2)))
		result.Recommendations = append(result.Recommendations, "Verify approvals and supporting documents for high-value items.")
	}
	if len(repeats) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("Detected %d repeated references within %dd", len(repeats), in.WindowDays))
		result.Recommendations = append(result.Recommendations, "Investigate potential duplicates or split transactions.")
	}
	if len(overdue) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("Found %d overdue receipts > %dd", len(overdue), model.OverdueReceiptAgeDays))
		result.Recommendations = append(result.Recommendations, "Trigger collections follow-up and review customer credit limits.")
	}
	if len(result.Actions) == 0 {
		result.Actions = append(result.Actions, "No outliers detected")
	}

	result.NextSteps = []string{
		"Assign high-value items to reviewer",
		"Open tasks for repeated references",
		"Notify AR team for overdue receipts",
	}
	result.Evidence = map[string]interface{}{
		"high":    high,
		"repeats": repeats,
		"overdue": overdue,
	}
	return result, nil
}
