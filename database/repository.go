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
	"time"

	"github.com/dogan-ai/redflags/model"
	"github.com/shopspring/decimal"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	unitOfWork // Interface for transactional scopes
	agentJob   // Interface for agent job tracking
	ledger     // Interface for general ledger operations
	payment    // Interface for payment and counterparty operations
	compliance // Interface for compliance cases, tasks and document requests
	forensic   // Interface for audit trails, users and forensic snapshots
	aml        // Interface for AML alerts and account restrictions
	outlier    // Interface for read-only transaction scans
	incident   // Interface for incident mode records
}

type unitOfWork interface {
	RunInTx(ctx context.Context, fn func(IDataSource) error) error // Runs fn inside a single transaction
}

// agentJob defines methods for the agent_jobs table.
type agentJob interface {
	CreateAgentJob(ctx context.Context, job *model.AgentJob) error                                     // Inserts a new job row
	GetAgentJob(ctx context.Context, jobID string) (*model.AgentJob, error)                            // Retrieves a job by ID
	UpdateAgentJob(ctx context.Context, job *model.AgentJob) error                                     // Persists status, result, error and timestamps
	GetAgentJobsByIncident(ctx context.Context, tenantID, incidentID string) ([]model.AgentJob, error) // Lists the jobs opened for an incident
}

// ledger defines methods for GL entries, the suspense account and posting freezes.
type ledger interface {
	GetJournalEntries(ctx context.Context, tenantID, journalID string) ([]model.GLEntry, error) // Loads every line of a journal
	InsertGLEntry(ctx context.Context, entry *model.GLEntry) error                              // Appends a journal line
	GetSuspenseAccountID(ctx context.Context, tenantID string) (string, error)                  // Looks up the tenant suspense account
	CreateSuspenseAccount(ctx context.Context, tenantID string) (string, error)                 // Creates the tenant suspense account
	FreezePosting(ctx context.Context, tenantID, reason, journalID string) error                // Disables GL posting for the tenant
	EnablePosting(ctx context.Context, tenantID, reason, journalID string) (int64, error)       // Clears a matching posting freeze
}

// payment defines methods for payments, deduplication rules and counterparties.
type payment interface {
	GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error)              // Retrieves a payment with its counterparty
	FindDuplicatePayments(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error)  // Same amount, reference and day, excluding the payment
	GetPaymentsByReference(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error) // The payment and every payment sharing its reference
	ReversePayment(ctx context.Context, tenantID, paymentID, reason string) error                    // Marks a payment reversed
	HoldPayment(ctx context.Context, tenantID, paymentID, reason string) error                       // Places a payment on hold
	FlagPaymentDuplicate(ctx context.Context, tenantID, paymentID, reason string) error              // Marks a payment as a duplicate suspect
	CreateDeduplicationRule(ctx context.Context, rule *model.DeduplicationRule) (bool, error)        // Upserts a rule, reporting whether a row was written
	FreezeCounterparty(ctx context.Context, tenantID, counterpartyID, reason string) (bool, error)   // Freezes a counterparty relationship
}

// compliance defines methods for compliance cases and document requests.
type compliance interface {
	CreateComplianceCase(ctx context.Context, complianceCase *model.ComplianceCase) error // Opens a case
	CreateComplianceTask(ctx context.Context, task *model.ComplianceTask) error           // Adds a follow-up task to a case
	CreateDocumentRequest(ctx context.Context, request *model.DocumentRequest) error      // Requests supporting documents
}

// forensic defines methods for audit trails, users and forensic snapshots.
type forensic interface {
	GetRecentAuditLogs(ctx context.Context, tenantID string, limit int) ([]model.AuditLog, error)                                     // Audit logs of the last 24 hours
	GetRecentUserActivities(ctx context.Context, tenantID string, limit int) ([]model.UserActivity, error)                            // User activities of the last 24 hours
	GetEntityAuditLogs(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.AuditLog, error)          // Audit logs touching one entity
	GetEntityUserActivities(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.UserActivity, error) // User activities touching one entity
	GetDatabaseState(ctx context.Context) (model.DatabaseState, error)                                                                // Table churn and active connections
	CreateForensicSnapshot(ctx context.Context, snapshot *model.ForensicSnapshot) error                                               // Records a sealed snapshot
	SuspendUser(ctx context.Context, tenantID, userID, reason string) error                                                           // Suspends a user account
	RevokeWriteAccess(ctx context.Context, tenantID, userID, reason string) error                                                     // Removes a user's write permissions
}

// aml defines methods for AML triage.
type aml interface {
	GetTransactionPattern(ctx context.Context, tenantID, accountID string) (model.TransactionPattern, error)             // Aggregates the last hour of payments
	CreateAMLAlert(ctx context.Context, alert *model.AMLAlert) error                                                     // Records an alert
	CreateAMLTask(ctx context.Context, task *model.AMLTask) error                                                        // Adds a follow-up task to an alert
	RestrictAccount(ctx context.Context, tenantID, accountID string, dailyLimit, transactionLimit decimal.Decimal) error // Lowers limits and requires manual review
	FlagAccountForReview(ctx context.Context, tenantID, accountID, reason string) error                                  // Requires manual review
}

// outlier defines the read-only transaction scans.
type outlier interface {
	GetHighValueTransactions(ctx context.Context, tenantID string, threshold decimal.Decimal, limit int) ([]model.Transaction, error)          // Transactions at or above threshold
	GetRepeatedReferences(ctx context.Context, tenantID string, windowDays, minCount, limit int) ([]model.RepeatedReference, error)            // References repeated inside the window
	GetOverdueReceipts(ctx context.Context, tenantID string, minAmount decimal.Decimal, olderThanDays, limit int) ([]model.Transaction, error) // Pending receipts past their age
}

// incident defines methods for incident mode records.
type incident interface {
	CreateIncident(ctx context.Context, incident *model.Incident) error                                                                        // Records an active incident
	GetIncident(ctx context.Context, tenantID, incidentID string) (*model.Incident, error)                                                     // Retrieves an incident
	ResolveIncident(ctx context.Context, incident *model.Incident) error                                                                       // Moves an active incident to resolved
	CreateEvidenceSnapshot(ctx context.Context, snapshot *model.EvidenceSnapshot) error                                                        // Records an immutable evidence snapshot
	GetNotificationRules(ctx context.Context, tenantID string, flag model.FlagType, severity model.Priority) ([]model.NotificationRule, error) // Rules matching a flag and severity
}
