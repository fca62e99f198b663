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
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
)

// repairUnbalanced appends one suspense line to an unbalanced journal so it balances again,
// then releases the posting freeze raised for that journal. Existing lines are never changed.
func (r *RedFlags) repairUnbalanced(ctx context.Context, ds database.IDataSource, tenantID string, in model.RepairUnbalancedInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "RepairUnbalanced")
	defer span.End()

	entries, err := ds.GetJournalEntries(ctx, tenantID, in.EntityID)
	if err != nil {
		return nil, err
	}

	totals := model.TotalsFor(entries)
	imbalance := totals.Imbalance()
	result := model.NewAgentResult(model.JobRepairUnbalanced)

	adjusted := !totals.IsBalanced()
	if adjusted {
		suspenseID, err := r.suspenseAccount(ctx, ds, tenantID)
		if err != nil {
			return nil, err
		}

		debit, credit := totals.Offset()
		entry := &model.GLEntry{
			TenantID:  tenantID,
			JournalID: in.EntityID,
			AccountID: suspenseID,
			Debit:     debit,
			Credit:    credit,
			Memo:      fmt.Sprintf("Auto-balance adjustment for journal %s", in.EntityID),
			CreatedBy: model.SystemAgent,
			CreatedAt: r.now(),
		}
		if err := ds.InsertGLEntry(ctx, entry); err != nil {
			return nil, err
		}

		result.Actions = append(result.Actions,
			fmt.Sprintf("Created adjustment entry: %s", entry.EntryID),
			fmt.Sprintf("Moved imbalance of %s to Suspense account", imbalance.Abs().StringFixed(2)),
		)
		result.Recommendations = append(result.Recommendations,
			"Review original entries for data entry errors",
			"Investigate source system integration issues",
			"Consider implementing stronger validation controls",
		)
	}

	released, err := ds.EnablePosting(ctx, tenantID, model.UnbalancedGLFreezeReason, in.EntityID)
	if err != nil {
		return nil, err
	}
	if released > 0 {
		result.Actions = append(result.Actions, "GL posting re-enabled for tenant")
	} else {
		result.Actions = append(result.Actions, "No GL posting freeze for this journal to release")
	}

	result.NextSteps = []string{
		"Finance team to review Suspense account entries",
		"Investigate root cause of imbalance",
		"Update posting controls if needed",
	}
	result.Evidence = map[string]interface{}{
		"originalImbalance": imbalance.StringFixed(2),
		"entriesCount":      len(entries),
		"adjustmentMade":    adjusted,
		"postingReleased":   released > 0,
	}
	return result, nil
}

// suspenseAccount returns the tenant's suspense account, creating it on first use.
func (r *RedFlags) suspenseAccount(ctx context.Context, ds database.IDataSource, tenantID string) (string, error) {
	accountID, err := ds.GetSuspenseAccountID(ctx, tenantID)
	if err == nil {
		return accountID, nil
	}
	if !apierror.HasCode(err, apierror.ErrNotFound) {
		return "", err
	}
	return ds.CreateSuspenseAccount(ctx, tenantID)
}
