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
	"github.com/sirupsen/logrus"
)

// requestSupportingDocs holds a payment until its counterparty supplies supporting documents.
func (r *RedFlags) requestSupportingDocs(ctx context.Context, ds database.IDataSource, tenantID string, in model.SupportingDocsInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "RequestSupportingDocs")
	defer span.End()

	payment, err := ds.GetPayment(ctx, tenantID, in.EntityID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	request := &model.DocumentRequest{
		RequestID:          model.GenerateUUIDWithSuffix("docreq"),
		TenantID:           tenantID,
		EntityType:         model.EntityTypePayment,
		EntityID:           payment.ID,
		RequestedDocuments: model.SupportingDocumentTypes,
		Priority:           model.PriorityHigh,
		Status:             model.StatusPending,
		DueDate:            now.Add(model.DocumentRequestDueIn),
		RequestedBy:        model.SystemAgent,
		CreatedAt:          now,
	}
	if err := ds.CreateDocumentRequest(ctx, request); err != nil {
		return nil, err
	}

	if err := ds.HoldPayment(ctx, tenantID, payment.ID, model.SupportingDocsHoldReason); err != nil {
		return nil, err
	}

	// No mail integration for counterparties yet; the request is only logged.
	logrus.WithFields(logrus.Fields{
		"tenant_id":          tenantID,
		"request_id":         request.RequestID,
		"payment_id":         payment.ID,
		"counterparty_email": payment.CounterpartyEmail,
	}).Info("supporting documents requested")

	counterparty := payment.CounterpartyName
	if counterparty == "" {
		counterparty = "counterparty"
	}

	result := model.NewAgentResult(model.JobSupportingDocsRequest)
	result.Actions = []string{
		fmt.Sprintf("Created document request: %s", request.RequestID),
		"Placed payment on hold pending documentation",
		fmt.Sprintf("Notified %s of documentation requirements", counterparty),
	}
	result.Recommendations = []string{
		"Follow up if documents not received within 48 hours",
		"Verify authenticity of submitted documents",
		"Require 4-eyes approval for release",
	}
	result.NextSteps = []string{
		"Monitor document submission",
		"Review submitted documents",
		"Approve or reject payment based on documentation",
	}
	result.Evidence = map[string]interface{}{
		"requestId":          request.RequestID,
		"paymentId":          payment.ID,
		"paymentAmount":      payment.Amount.StringFixed(2),
		"requestedDocuments": request.RequestedDocuments,
		"dueDate":            request.DueDate,
	}
	return result, nil
}
