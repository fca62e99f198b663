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

import "time"

const (
	CaseTypeSanctionsScreening = "sanctions_screening"
	EntityTypeCounterparty     = "counterparty"
	EntityTypePayment          = "payment"
	ComplianceTeam             = "compliance_team"
	AMLTeam                    = "aml_team"

	StatusOpen    = "open"
	StatusPending = "pending"

	SanctionsFreezeReason         = "Sanctions screening - under investigation"
	SanctionsIncidentFreezeReason = "Sanctions screening hit"
)

// ComplianceFollowUpTasks are opened with every sanctions case.
var ComplianceFollowUpTasks = []string{
	"Enhanced Due Diligence (EDD) review",
	"Historical transaction analysis",
	"Regulatory reporting assessment",
	"Legal review and documentation",
}

// ComplianceTaskDueIn is how long the compliance team has for each follow-up task.
const ComplianceTaskDueIn = 3 * 24 * time.Hour

type ComplianceCase struct {
	CaseID      string                 `json:"case_id"`
	TenantID    string                 `json:"tenant_id"`
	CaseType    string                 `json:"case_type"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	Priority    Priority               `json:"priority"`
	Status      string                 `json:"status"`
	AssignedTo  string                 `json:"assigned_to"`
	CreatedBy   string                 `json:"created_by"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
}

type ComplianceTask struct {
	CaseID      string    `json:"case_id"`
	TenantID    string    `json:"tenant_id"`
	Description string    `json:"task_description"`
	Status      string    `json:"status"`
	AssignedTo  string    `json:"assigned_to"`
	DueDate     time.Time `json:"due_date"`
}

// SupportingDocumentTypes are requested for every held payment.
var SupportingDocumentTypes = []string{
	"Invoice or Purchase Order",
	"Contract or Agreement",
	"Delivery Receipt",
	"Board Resolution (if applicable)",
}

const DocumentRequestDueIn = 3 * 24 * time.Hour

type DocumentRequest struct {
	RequestID          string    `json:"request_id"`
	TenantID           string    `json:"tenant_id"`
	EntityType         string    `json:"entity_type"`
	EntityID           string    `json:"entity_id"`
	RequestedDocuments []string  `json:"requested_documents"`
	Priority           Priority  `json:"priority"`
	Status             string    `json:"status"`
	DueDate            time.Time `json:"due_date"`
	RequestedBy        string    `json:"requested_by"`
	CreatedAt          time.Time `json:"created_at"`
}
