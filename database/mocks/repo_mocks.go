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

package mocks

import (
	"context"
	"time"

	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// RunInTx runs fn against the mock itself, so expectations set on the mock apply inside the scope.
func (m *MockDataSource) RunInTx(ctx context.Context, fn func(database.IDataSource) error) error {
	return fn(m)
}

// Agent job methods

func (m *MockDataSource) CreateAgentJob(ctx context.Context, job *model.AgentJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockDataSource) GetAgentJob(ctx context.Context, jobID string) (*model.AgentJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*model.AgentJob)
	return job, args.Error(1)
}

func (m *MockDataSource) UpdateAgentJob(ctx context.Context, job *model.AgentJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockDataSource) GetAgentJobsByIncident(ctx context.Context, tenantID, incidentID string) ([]model.AgentJob, error) {
	args := m.Called(ctx, tenantID, incidentID)
	jobs, _ := args.Get(0).([]model.AgentJob)
	return jobs, args.Error(1)
}

// Ledger methods

func (m *MockDataSource) GetJournalEntries(ctx context.Context, tenantID, journalID string) ([]model.GLEntry, error) {
	args := m.Called(ctx, tenantID, journalID)
	entries, _ := args.Get(0).([]model.GLEntry)
	return entries, args.Error(1)
}

func (m *MockDataSource) InsertGLEntry(ctx context.Context, entry *model.GLEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) GetSuspenseAccountID(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *MockDataSource) CreateSuspenseAccount(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *MockDataSource) FreezePosting(ctx context.Context, tenantID, reason, journalID string) error {
	args := m.Called(ctx, tenantID, reason, journalID)
	return args.Error(0)
}

func (m *MockDataSource) EnablePosting(ctx context.Context, tenantID, reason, journalID string) (int64, error) {
	args := m.Called(ctx, tenantID, reason, journalID)
	return args.Get(0).(int64), args.Error(1)
}

// Payment methods

func (m *MockDataSource) GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	args := m.Called(ctx, tenantID, paymentID)
	payment, _ := args.Get(0).(*model.Payment)
	return payment, args.Error(1)
}

func (m *MockDataSource) FindDuplicatePayments(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error) {
	args := m.Called(ctx, tenantID, paymentID)
	payments, _ := args.Get(0).([]model.Payment)
	return payments, args.Error(1)
}

func (m *MockDataSource) GetPaymentsByReference(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error) {
	args := m.Called(ctx, tenantID, paymentID)
	payments, _ := args.Get(0).([]model.Payment)
	return payments, args.Error(1)
}

func (m *MockDataSource) ReversePayment(ctx context.Context, tenantID, paymentID, reason string) error {
	args := m.Called(ctx, tenantID, paymentID, reason)
	return args.Error(0)
}

func (m *MockDataSource) HoldPayment(ctx context.Context, tenantID, paymentID, reason string) error {
	args := m.Called(ctx, tenantID, paymentID, reason)
	return args.Error(0)
}

func (m *MockDataSource) FlagPaymentDuplicate(ctx context.Context, tenantID, paymentID, reason string) error {
	args := m.Called(ctx, tenantID, paymentID, reason)
	return args.Error(0)
}

func (m *MockDataSource) CreateDeduplicationRule(ctx context.Context, rule *model.DeduplicationRule) (bool, error) {
	args := m.Called(ctx, rule)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) FreezeCounterparty(ctx context.Context, tenantID, counterpartyID, reason string) (bool, error) {
	args := m.Called(ctx, tenantID, counterpartyID, reason)
	return args.Bool(0), args.Error(1)
}

// Compliance methods

func (m *MockDataSource) CreateComplianceCase(ctx context.Context, complianceCase *model.ComplianceCase) error {
	args := m.Called(ctx, complianceCase)
	return args.Error(0)
}

func (m *MockDataSource) CreateComplianceTask(ctx context.Context, task *model.ComplianceTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockDataSource) CreateDocumentRequest(ctx context.Context, request *model.DocumentRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

// Forensic methods

func (m *MockDataSource) GetRecentAuditLogs(ctx context.Context, tenantID string, limit int) ([]model.AuditLog, error) {
	args := m.Called(ctx, tenantID, limit)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

func (m *MockDataSource) GetRecentUserActivities(ctx context.Context, tenantID string, limit int) ([]model.UserActivity, error) {
	args := m.Called(ctx, tenantID, limit)
	activities, _ := args.Get(0).([]model.UserActivity)
	return activities, args.Error(1)
}

func (m *MockDataSource) GetEntityAuditLogs(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.AuditLog, error) {
	args := m.Called(ctx, tenantID, entityID, since, limit)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

func (m *MockDataSource) GetEntityUserActivities(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.UserActivity, error) {
	args := m.Called(ctx, tenantID, entityID, since, limit)
	activities, _ := args.Get(0).([]model.UserActivity)
	return activities, args.Error(1)
}

func (m *MockDataSource) GetDatabaseState(ctx context.Context) (model.DatabaseState, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.DatabaseState), args.Error(1)
}

func (m *MockDataSource) CreateForensicSnapshot(ctx context.Context, snapshot *model.ForensicSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDataSource) SuspendUser(ctx context.Context, tenantID, userID, reason string) error {
	args := m.Called(ctx, tenantID, userID, reason)
	return args.Error(0)
}

func (m *MockDataSource) RevokeWriteAccess(ctx context.Context, tenantID, userID, reason string) error {
	args := m.Called(ctx, tenantID, userID, reason)
	return args.Error(0)
}

// AML methods

func (m *MockDataSource) GetTransactionPattern(ctx context.Context, tenantID, accountID string) (model.TransactionPattern, error) {
	args := m.Called(ctx, tenantID, accountID)
	return args.Get(0).(model.TransactionPattern), args.Error(1)
}

func (m *MockDataSource) CreateAMLAlert(ctx context.Context, alert *model.AMLAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockDataSource) CreateAMLTask(ctx context.Context, task *model.AMLTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockDataSource) RestrictAccount(ctx context.Context, tenantID, accountID string, dailyLimit, transactionLimit decimal.Decimal) error {
	args := m.Called(ctx, tenantID, accountID, dailyLimit, transactionLimit)
	return args.Error(0)
}

func (m *MockDataSource) FlagAccountForReview(ctx context.Context, tenantID, accountID, reason string) error {
	args := m.Called(ctx, tenantID, accountID, reason)
	return args.Error(0)
}

// Outlier methods

func (m *MockDataSource) GetHighValueTransactions(ctx context.Context, tenantID string, threshold decimal.Decimal, limit int) ([]model.Transaction, error) {
	args := m.Called(ctx, tenantID, threshold, limit)
	transactions, _ := args.Get(0).([]model.Transaction)
	return transactions, args.Error(1)
}

func (m *MockDataSource) GetRepeatedReferences(ctx context.Context, tenantID string, windowDays, minCount, limit int) ([]model.RepeatedReference, error) {
	args := m.Called(ctx, tenantID, windowDays, minCount, limit)
	repeats, _ := args.Get(0).([]model.RepeatedReference)
	return repeats, args.Error(1)
}

func (m *MockDataSource) GetOverdueReceipts(ctx context.Context, tenantID string, minAmount decimal.Decimal, olderThanDays, limit int) ([]model.Transaction, error) {
	args := m.Called(ctx, tenantID, minAmount, olderThanDays, limit)
	transactions, _ := args.Get(0).([]model.Transaction)
	return transactions, args.Error(1)
}

// Incident methods

func (m *MockDataSource) CreateIncident(ctx context.Context, incident *model.Incident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}

func (m *MockDataSource) GetIncident(ctx context.Context, tenantID, incidentID string) (*model.Incident, error) {
	args := m.Called(ctx, tenantID, incidentID)
	incident, _ := args.Get(0).(*model.Incident)
	return incident, args.Error(1)
}

func (m *MockDataSource) ResolveIncident(ctx context.Context, incident *model.Incident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}

func (m *MockDataSource) CreateEvidenceSnapshot(ctx context.Context, snapshot *model.EvidenceSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDataSource) GetNotificationRules(ctx context.Context, tenantID string, flag model.FlagType, severity model.Priority) ([]model.NotificationRule, error) {
	args := m.Called(ctx, tenantID, flag, severity)
	rules, _ := args.Get(0).([]model.NotificationRule)
	return rules, args.Error(1)
}

var _ database.IDataSource = (*MockDataSource)(nil)
