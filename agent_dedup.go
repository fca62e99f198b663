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

// reviewDuplicates reverses posted payments that repeat the target's amount, reference and
// calendar date, and records a deduplication rule for the signature.
func (r *RedFlags) reviewDuplicates(ctx context.Context, ds database.IDataSource, tenantID string, in model.DedupReviewInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "ReviewDuplicates")
	defer span.End()

	target, err := ds.GetPayment(ctx, tenantID, in.EntityID)
	if err != nil {
		return nil, err
	}

	duplicates, err := ds.FindDuplicatePayments(ctx, tenantID, in.EntityID)
	if err != nil {
		return nil, err
	}

	result := model.NewAgentResult(model.JobDedupReview)
	reversed := make([]string, 0, len(duplicates))
	ruleCreated := false

	if len(duplicates) > 0 {
		for _, duplicate := range duplicates {
			if duplicate.Status != model.PaymentPosted {
				continue
			}
			if err := ds.ReversePayment(ctx, tenantID, duplicate.ID, model.DuplicateReversalReason); err != nil {
				return nil, err
			}
			reversed = append(reversed, duplicate.ID)
			result.Actions = append(result.Actions, fmt.Sprintf("Reversed duplicate payment: %s", duplicate.ID))
		}

		ruleCreated, err = ds.CreateDeduplicationRule(ctx, &model.DeduplicationRule{
			TenantID:          tenantID,
			Signature:         target.DedupSignature(),
			OriginalPaymentID: target.ID,
			CreatedBy:         model.SystemAgent,
			CreatedAt:         r.now(),
		})
		if err != nil {
			return nil, err
		}
		if ruleCreated {
			result.Actions = append(result.Actions, "Created deduplication rule for future prevention")
		} else {
			result.Actions = append(result.Actions, "Deduplication rule already in place")
		}

		result.Recommendations = append(result.Recommendations,
			"Review payment processing workflow",
			"Implement idempotency keys in payment API",
			"Add duplicate detection at point of entry",
		)
	}

	result.NextSteps = []string{
		"Review reversed transactions with finance team",
		"Investigate source of duplicates",
		"Strengthen payment processing controls",
	}
	result.Evidence = map[string]interface{}{
		"duplicatesFound":    len(duplicates),
		"duplicatesReversed": len(reversed),
		"reversedPayments":   reversed,
		"originalPaymentId":  target.ID,
		"signature":          target.DedupSignature(),
	}
	return result, nil
}
