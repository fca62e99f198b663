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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/database/mocks"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/internal/evidence"
	redlock "github.com/dogan-ai/redflags/internal/lock"
	"github.com/dogan-ai/redflags/model"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant_1"

var fixedNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestRedFlags(ds database.IDataSource) *RedFlags {
	return &RedFlags{
		datasource: ds,
		config:     &config.Configuration{},
		now:        func() time.Time { return fixedNow },
	}
}

func queuedJob(jobType model.JobType, input string) *model.AgentJob {
	return &model.AgentJob{
		JobID:     "job_1",
		JobType:   jobType,
		TenantID:  testTenant,
		Priority:  model.PriorityMedium,
		InputData: json.RawMessage(input),
		Status:    model.JobQueued,
		CreatedAt: fixedNow,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(want string) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(dec(want)) })
}

func TestExecuteAgent_UnknownJobType(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob("NOT_A_REAL_TYPE", `{"entityId":"x"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil).Twice()

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.EqualError(t, err, "Unknown agent job type: NOT_A_REAL_TYPE")
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "Unknown agent job type: NOT_A_REAL_TYPE", job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	ds.AssertExpectations(t)
	ds.AssertNumberOfCalls(t, "UpdateAgentJob", 2)
}

func TestExecuteAgent_RejectsJobThatIsNotQueued(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobRepairUnbalanced, `{"entityId":"jrnl_1"}`)
	job.Status = model.JobCompleted

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
	assert.Equal(t, model.JobCompleted, job.Status)
	ds.AssertNotCalled(t, "UpdateAgentJob", mock.Anything, mock.Anything)
}

func TestExecuteAgent_InvalidInputFailsWithoutTouchingData(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobDedupReview, `{}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Contains(t, job.Error, "payment id (entityId) is required")
	ds.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAgent_RepairUnbalancedJournal(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobRepairUnbalanced, `{"entityId":"jrnl_1"}`)

	entries := []model.GLEntry{
		{EntryID: "gle_1", JournalID: "jrnl_1", AccountID: "acct_cash", Debit: dec("1000.00"), Credit: decimal.Zero},
		{EntryID: "gle_2", JournalID: "jrnl_1", AccountID: "acct_rev", Debit: decimal.Zero, Credit: dec("900.50")},
	}

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetJournalEntries", mock.Anything, testTenant, "jrnl_1").Return(entries, nil)
	ds.On("GetSuspenseAccountID", mock.Anything, testTenant).
		Return("", apierror.NewAPIError(apierror.ErrNotFound, "Suspense account not found", nil))
	ds.On("CreateSuspenseAccount", mock.Anything, testTenant).Return("acct_suspense", nil)
	ds.On("InsertGLEntry", mock.Anything, mock.MatchedBy(func(entry *model.GLEntry) bool {
		return entry.JournalID == "jrnl_1" &&
			entry.AccountID == "acct_suspense" &&
			entry.Debit.IsZero() &&
			entry.Credit.Equal(dec("99.50")) &&
			entry.Memo == "Auto-balance adjustment for journal jrnl_1" &&
			entry.CreatedBy == model.SystemAgent
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*model.GLEntry).EntryID = "gle_adj"
	})
	ds.On("EnablePosting", mock.Anything, testTenant, model.UnbalancedGLFreezeReason, "jrnl_1").Return(int64(1), nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, []string{
		"Created adjustment entry: gle_adj",
		"Moved imbalance of 99.50 to Suspense account",
		"GL posting re-enabled for tenant",
	}, result.Actions)
	assert.Len(t, result.Recommendations, 3)
	assert.Equal(t, "99.50", result.Evidence["originalImbalance"])
	assert.Equal(t, 2, result.Evidence["entriesCount"])
	assert.Equal(t, true, result.Evidence["adjustmentMade"])

	repaired := append(entries, model.GLEntry{Debit: decimal.Zero, Credit: dec("99.50")})
	assert.True(t, model.TotalsFor(repaired).IsBalanced())
	ds.AssertExpectations(t)
}

func TestExecuteAgent_RepairBalancedJournalOnlyReleasesPosting(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobRepairUnbalanced, `{"entityId":"jrnl_2"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetJournalEntries", mock.Anything, testTenant, "jrnl_2").Return([]model.GLEntry{
		{Debit: dec("500.00"), Credit: decimal.Zero},
		{Debit: decimal.Zero, Credit: dec("500.00")},
	}, nil)
	ds.On("EnablePosting", mock.Anything, testTenant, model.UnbalancedGLFreezeReason, "jrnl_2").Return(int64(0), nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, false, result.Evidence["adjustmentMade"])
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, []string{"No GL posting freeze for this journal to release"}, result.Actions)
	ds.AssertNotCalled(t, "InsertGLEntry", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "CreateSuspenseAccount", mock.Anything, mock.Anything)
}

func TestExecuteAgent_RepairUsesExistingSuspenseAccount(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobRepairUnbalanced, `{"entityId":"jrnl_3"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetJournalEntries", mock.Anything, testTenant, "jrnl_3").Return([]model.GLEntry{
		{Debit: decimal.Zero, Credit: dec("250.00")},
	}, nil)
	ds.On("GetSuspenseAccountID", mock.Anything, testTenant).Return("acct_suspense", nil)
	ds.On("InsertGLEntry", mock.Anything, mock.MatchedBy(func(entry *model.GLEntry) bool {
		return entry.Debit.Equal(dec("250")) && entry.Credit.IsZero()
	})).Return(nil)
	ds.On("EnablePosting", mock.Anything, testTenant, model.UnbalancedGLFreezeReason, "jrnl_3").Return(int64(1), nil)

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	ds.AssertNotCalled(t, "CreateSuspenseAccount", mock.Anything, mock.Anything)
}

func TestExecuteAgent_DedupReview(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_1"}`)

	txnDate := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	target := &model.Payment{ID: "pay_1", TenantID: testTenant, CounterpartyID: "cp_1", Reference: "INV-1", Amount: dec("1000"), Status: model.PaymentPosted, TransactionDate: txnDate}
	duplicates := []model.Payment{
		{ID: "pay_2", Reference: "INV-1", Amount: dec("1000"), Status: model.PaymentPosted, TransactionDate: txnDate.Add(time.Hour)},
		{ID: "pay_3", Reference: "INV-1", Amount: dec("1000"), Status: model.PaymentReversed, TransactionDate: txnDate},
	}

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_1").Return(target, nil)
	ds.On("FindDuplicatePayments", mock.Anything, testTenant, "pay_1").Return(duplicates, nil)
	ds.On("ReversePayment", mock.Anything, testTenant, "pay_2", model.DuplicateReversalReason).Return(nil).Once()
	ds.On("CreateDeduplicationRule", mock.Anything, mock.MatchedBy(func(rule *model.DeduplicationRule) bool {
		return rule.Signature == target.DedupSignature() && rule.OriginalPaymentID == "pay_1" && rule.TenantID == testTenant
	})).Return(true, nil).Once()

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Reversed duplicate payment: pay_2",
		"Created deduplication rule for future prevention",
	}, result.Actions)
	assert.Equal(t, 2, result.Evidence["duplicatesFound"])
	assert.Equal(t, 1, result.Evidence["duplicatesReversed"])
	assert.Equal(t, "pay_1", result.Evidence["originalPaymentId"])
	assert.Equal(t, 0.90, result.Confidence)
	ds.AssertNotCalled(t, "ReversePayment", mock.Anything, testTenant, "pay_3", mock.Anything)
	ds.AssertExpectations(t)
}

func TestExecuteAgent_DedupReviewWithoutDuplicates(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_1"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_1").Return(&model.Payment{ID: "pay_1", Amount: dec("10")}, nil)
	ds.On("FindDuplicatePayments", mock.Anything, testTenant, "pay_1").Return([]model.Payment{}, nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	ds.AssertNotCalled(t, "CreateDeduplicationRule", mock.Anything, mock.Anything)
}

func TestExecuteAgent_PaymentNotFound(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobSupportingDocsRequest, `{"entityId":"pay_missing"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil))

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "Payment not found", job.Error)
	ds.AssertNotCalled(t, "CreateDocumentRequest", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "HoldPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAgent_ComplianceCaseOpen(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobComplianceCaseOpen,
		`{"entityId":"cp_9","flagType":"sanctioned_entity","evidence":{"confidence_score":0.97}}`)

	var caseID string
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("CreateComplianceCase", mock.Anything, mock.MatchedBy(func(c *model.ComplianceCase) bool {
		caseID = c.CaseID
		return strings.HasPrefix(c.CaseID, "case_") &&
			c.CaseType == model.CaseTypeSanctionsScreening &&
			c.EntityType == model.EntityTypeCounterparty &&
			c.EntityID == "cp_9" &&
			c.Priority == model.PriorityHigh &&
			c.Status == model.StatusOpen &&
			c.AssignedTo == model.ComplianceTeam &&
			c.Metadata["confidence"] == 0.97 &&
			c.Metadata["flagType"] == "sanctioned_entity"
	})).Return(nil)
	ds.On("FreezeCounterparty", mock.Anything, testTenant, "cp_9", model.SanctionsFreezeReason).Return(true, nil)
	ds.On("CreateComplianceTask", mock.Anything, mock.MatchedBy(func(task *model.ComplianceTask) bool {
		return task.DueDate.Equal(fixedNow.Add(72*time.Hour)) && task.Status == model.StatusPending
	})).Return(nil).Times(4)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Created compliance case: " + caseID,
		"Froze counterparty relationship",
		"Blocked all payments and transfers",
		"Created 4 follow-up tasks",
	}, result.Actions)
	assert.Equal(t, 0.95, result.Confidence)
	ds.AssertExpectations(t)
}

func TestExecuteAgent_ComplianceCaseWithoutCounterpartyRecord(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobComplianceCaseOpen, `{"entityId":"cp_missing"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("CreateComplianceCase", mock.Anything, mock.Anything).Return(nil)
	ds.On("FreezeCounterparty", mock.Anything, testTenant, "cp_missing", model.SanctionsFreezeReason).Return(false, nil)
	ds.On("CreateComplianceTask", mock.Anything, mock.Anything).Return(nil).Times(4)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Contains(t, result.Actions, "No counterparty record found to freeze")
	assert.NotContains(t, result.Actions, "Froze counterparty relationship")
	assert.NotContains(t, result.Actions, "Blocked all payments and transfers")
	assert.Equal(t, false, result.Evidence["frozen"])
}

func TestExecuteAgent_ForensicSnapshot(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	store, err := evidence.NewFileStore(t.TempDir())
	require.NoError(t, err)
	rf.evidence = store

	job := queuedJob(model.JobForensicSnapshot, `{"actorId":"user_7"}`)
	job.IncidentID = "inc_1"

	logs := []model.AuditLog{{ID: "log_1", TenantID: testTenant, Action: "DELETE", CreatedAt: fixedNow}}
	activities := []model.UserActivity{{ID: "act_1", TenantID: testTenant, UserID: "user_7", Activity: "login"}}

	var snapshot *model.ForensicSnapshot
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetRecentAuditLogs", mock.Anything, testTenant, model.ForensicAuditLogLimit).Return(logs, nil)
	ds.On("GetRecentUserActivities", mock.Anything, testTenant, model.ForensicUserActivityLimit).Return(activities, nil)
	ds.On("GetDatabaseState", mock.Anything).Return(model.DatabaseState{ActiveConnections: 4}, nil)
	ds.On("CreateForensicSnapshot", mock.Anything, mock.MatchedBy(func(s *model.ForensicSnapshot) bool {
		snapshot = s
		return s.IncidentID == "inc_1" && s.IsImmutable && s.SnapshotType == model.SnapshotTypeAuditTampering
	})).Return(nil)
	ds.On("SuspendUser", mock.Anything, testTenant, "user_7", model.UserSuspensionReason).Return(nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.True(t, strings.HasPrefix(snapshot.StorageLocation, "file://"))
	stored, err := os.ReadFile(strings.TrimPrefix(snapshot.StorageLocation, "file://"))
	require.NoError(t, err)

	sum := sha256.Sum256(stored)
	assert.Equal(t, snapshot.DataHash, hex.EncodeToString(sum[:]))

	var data model.ForensicData
	require.NoError(t, json.Unmarshal(stored, &data))
	assert.Len(t, data.AuditLogs, 1)
	assert.Equal(t, int64(4), data.DatabaseState.ActiveConnections)

	assert.Contains(t, result.Actions, "Suspended user account: user_7")
	assert.Equal(t, 0.98, result.Confidence)
	assert.Equal(t, filepath.Base(model.ForensicStorageKey(snapshot.SnapshotID)), filepath.Base(snapshot.StorageLocation))
	ds.AssertExpectations(t)
}

func TestExecuteAgent_ForensicSnapshotWithoutStore(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobForensicSnapshot, ``)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetRecentAuditLogs", mock.Anything, testTenant, model.ForensicAuditLogLimit).Return([]model.AuditLog{}, nil)
	ds.On("GetRecentUserActivities", mock.Anything, testTenant, model.ForensicUserActivityLimit).Return([]model.UserActivity{}, nil)
	ds.On("GetDatabaseState", mock.Anything).Return(model.DatabaseState{}, nil)
	ds.On("CreateForensicSnapshot", mock.Anything, mock.MatchedBy(func(s *model.ForensicSnapshot) bool {
		return s.StorageLocation == model.ForensicStorageKey(s.SnapshotID) && len(s.DataHash) == 64
	})).Return(nil)

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	ds.AssertNotCalled(t, "SuspendUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAgent_SupportingDocsRequest(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobSupportingDocsRequest, `{"entityId":"pay_5"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_5").
		Return(&model.Payment{ID: "pay_5", Amount: dec("250000"), CounterpartyName: "Acme Trading"}, nil)
	ds.On("CreateDocumentRequest", mock.Anything, mock.MatchedBy(func(req *model.DocumentRequest) bool {
		return strings.HasPrefix(req.RequestID, "docreq_") &&
			req.EntityType == model.EntityTypePayment &&
			len(req.RequestedDocuments) == 4 &&
			req.Priority == model.PriorityHigh &&
			req.DueDate.Equal(fixedNow.Add(72*time.Hour))
	})).Return(nil)
	ds.On("HoldPayment", mock.Anything, testTenant, "pay_5", model.SupportingDocsHoldReason).Return(nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Len(t, result.Actions, 3)
	assert.Equal(t, "Notified Acme Trading of documentation requirements", result.Actions[2])
	assert.Equal(t, 0.92, result.Confidence)
	ds.AssertExpectations(t)
}

func TestExecuteAgent_AMLTriageCritical(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobAMLAlertTriage, `{"entityId":"acct_42"}`)

	first := fixedNow.Add(-5 * time.Minute)
	last := fixedNow
	pattern := model.TransactionPattern{
		TransactionCount:     12,
		TotalAmount:          dec("150000"),
		FirstTransaction:     &first,
		LastTransaction:      &last,
		UniqueCounterparties: 1,
	}

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetTransactionPattern", mock.Anything, testTenant, "acct_42").Return(pattern, nil)
	ds.On("CreateAMLAlert", mock.Anything, mock.MatchedBy(func(alert *model.AMLAlert) bool {
		return alert.RiskScore == 100 && alert.RiskLevel == model.RiskCritical &&
			alert.AlertType == model.AMLAlertTypeRapidSuccession && alert.Status == model.StatusOpen
	})).Return(nil)
	ds.On("RestrictAccount", mock.Anything, testTenant, "acct_42", decEq("5000"), decEq("1000")).Return(nil)
	ds.On("FlagAccountForReview", mock.Anything, testTenant, "acct_42", model.RapidSuccessionReviewReason).Return(nil)
	ds.On("CreateAMLTask", mock.Anything, mock.MatchedBy(func(task *model.AMLTask) bool {
		return task.AssignedTo == model.AMLTeam && task.DueDate.Equal(fixedNow.Add(48*time.Hour))
	})).Return(nil).Times(5)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 100, result.Evidence["riskScore"])
	assert.Equal(t, model.RiskCritical, result.Evidence["riskLevel"])
	assert.Contains(t, result.Actions, "Reduced account transaction limits")
	assert.Contains(t, result.Actions, "Created 5 investigation tasks")
	assert.Len(t, result.Recommendations, 3)
	assert.Equal(t, 0.88, result.Confidence)
	ds.AssertExpectations(t)
}

func TestExecuteAgent_AMLTriageLowRisk(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobAMLAlertTriage, `{"entityId":"acct_7"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetTransactionPattern", mock.Anything, testTenant, "acct_7").
		Return(model.TransactionPattern{TransactionCount: 2, TotalAmount: dec("300"), UniqueCounterparties: 2}, nil)
	ds.On("CreateAMLAlert", mock.Anything, mock.MatchedBy(func(alert *model.AMLAlert) bool {
		return alert.RiskLevel == model.RiskLow
	})).Return(nil)
	ds.On("CreateAMLTask", mock.Anything, mock.Anything).Return(nil).Times(2)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	ds.AssertNotCalled(t, "RestrictAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "FlagAccountForReview", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAgent_HandlerErrorIsRecordedWithCause(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobAMLAlertTriage, `{"entityId":"acct_7"}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetTransactionPattern", mock.Anything, testTenant, "acct_7").Return(model.TransactionPattern{}, nil)
	ds.On("CreateAMLAlert", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create AML alert", errors.New("connection reset")))

	_, err := rf.ExecuteAgent(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "Failed to create AML alert: connection reset", job.Error)
	assert.Nil(t, job.Result)
}

func TestExecuteAgent_TransactionOutliers(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobTransactionOutliers, `{}`)

	high := []model.Transaction{{ID: "txn_1", Amount: dec("100000")}}
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, testTenant, decEq("100000"), model.OutlierScanLimit).Return(high, nil)
	ds.On("GetRepeatedReferences", mock.Anything, testTenant, 7, model.RepeatedReferenceMinCount, model.OutlierScanLimit).
		Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, testTenant, decEq("10000"), model.OverdueReceiptAgeDays, model.OutlierScanLimit).
		Return([]model.Transaction{}, nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"Flagged 1 high-value transactions (>= 100000.00)"}, result.Actions)
	assert.Equal(t, []string{"Verify approvals and supporting documents for high-value items."}, result.Recommendations)
	assert.Equal(t, high, result.Evidence["high"])
	assert.Equal(t, 0.9, result.Confidence)
	ds.AssertExpectations(t)
}

func TestExecuteAgent_TransactionOutliersNothingFound(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	job := queuedJob(model.JobTransactionOutliers, `{"threshold":"20000","windowDays":14}`)

	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, testTenant, decEq("20000"), model.OutlierScanLimit).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, testTenant, 14, model.RepeatedReferenceMinCount, model.OutlierScanLimit).
		Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, testTenant, decEq("5000"), model.OverdueReceiptAgeDays, model.OutlierScanLimit).
		Return([]model.Transaction{}, nil)

	result, err := rf.ExecuteAgent(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"No outliers detected"}, result.Actions)
}

func TestCreateAgentJob(t *testing.T) {
	tests := []struct {
		name    string
		job     model.AgentJob
		wantErr string
	}{
		{name: "missing tenant", job: model.AgentJob{JobType: model.JobDedupReview}, wantErr: "tenant_id is required"},
		{name: "unknown type", job: model.AgentJob{TenantID: testTenant, JobType: "NOPE"}, wantErr: "Unknown agent job type: NOPE"},
		{name: "bad priority", job: model.AgentJob{TenantID: testTenant, JobType: model.JobTransactionOutliers, Priority: "urgent"}, wantErr: "priority must be one of low, medium, high, critical"},
		{name: "missing entity", job: model.AgentJob{TenantID: testTenant, JobType: model.JobAMLAlertTriage}, wantErr: "account id (entityId) is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := new(mocks.MockDataSource)
			rf := newTestRedFlags(ds)
			job := tt.job

			_, err := rf.CreateAgentJob(context.Background(), &job)
			require.Error(t, err)
			assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
			assert.Contains(t, apierror.Message(err), tt.wantErr)
			ds.AssertNotCalled(t, "CreateAgentJob", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateAgentJob_DefaultsAndInsert(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	ds.On("CreateAgentJob", mock.Anything, mock.AnythingOfType("*model.AgentJob")).Return(nil)

	job, err := rf.CreateAgentJob(context.Background(), &model.AgentJob{
		TenantID: testTenant,
		JobType:  model.JobTransactionOutliers,
		Status:   model.JobCompleted,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.JobID, "job_"))
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Equal(t, model.PriorityMedium, job.Priority)
	assert.Equal(t, json.RawMessage("{}"), job.InputData)
	assert.Equal(t, fixedNow, job.CreatedAt)
}

func TestQueueAgentJob_RunsInlineWithoutQueue(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	ds.On("CreateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("UpdateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_x").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil))

	job, err := rf.QueueAgentJob(context.Background(), &model.AgentJob{
		TenantID:  testTenant,
		JobType:   model.JobDedupReview,
		InputData: json.RawMessage(`{"entityId":"pay_x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "Payment not found", job.Error)
}

func TestRetryAgentJob(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	failed := queuedJob(model.JobTransactionOutliers, `{}`)
	failed.Status = model.JobFailed
	failed.Error = "timeout"

	ds.On("GetAgentJob", mock.Anything, "job_1").Return(failed, nil)
	ds.On("UpdateAgentJob", mock.Anything, failed).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, testTenant, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)

	job, err := rf.RetryAgentJob(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.Result)
}

func TestRetryAgentJob_RequeuesStalledJob(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.config.Agents.LockTimeoutSeconds = 60

	started := fixedNow.Add(-time.Hour)
	stalled := queuedJob(model.JobTransactionOutliers, `{}`)
	stalled.Status = model.JobRunning
	stalled.StartedAt = &started

	ds.On("GetAgentJob", mock.Anything, "job_1").Return(stalled, nil)
	ds.On("UpdateAgentJob", mock.Anything, stalled).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, testTenant, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)

	job, err := rf.RetryAgentJob(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Empty(t, job.Error)
}

func TestRetryAgentJob_RejectsJobStillRunning(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.config.Agents.LockTimeoutSeconds = 60

	running := queuedJob(model.JobTransactionOutliers, `{}`)
	running.Status = model.JobRunning
	running.StartedAt = &fixedNow
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(running, nil)

	_, err := rf.RetryAgentJob(context.Background(), "job_1")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
	assert.Equal(t, model.JobRunning, running.Status)
	ds.AssertNotCalled(t, "UpdateAgentJob", mock.Anything, mock.Anything)
}

func TestRetryAgentJob_OnlyFailedJobs(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	ds.On("GetAgentJob", mock.Anything, "job_1").Return(queuedJob(model.JobTransactionOutliers, `{}`), nil)

	_, err := rf.RetryAgentJob(context.Background(), "job_1")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
	ds.AssertNotCalled(t, "UpdateAgentJob", mock.Anything, mock.Anything)
}

func TestGetAgentJob_ScopedToTenant(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(queuedJob(model.JobDedupReview, `{"entityId":"p"}`), nil)

	job, err := rf.GetAgentJob(context.Background(), testTenant, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "job_1", job.JobID)

	_, err = rf.GetAgentJob(context.Background(), "tenant_other", "job_1")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestProcessAgentJob_HoldsEntityLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rf.config.Agents.LockTimeoutSeconds = 60
	rf.config.Agents.LockWaitSeconds = 1

	job := queuedJob(model.JobAMLAlertTriage, `{"entityId":"acct_7"}`)
	lockKey := redlock.AgentLockKey(job.LockKey())

	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetTransactionPattern", mock.Anything, testTenant, "acct_7").Return(model.TransactionPattern{}, nil).Run(func(mock.Arguments) {
		assert.True(t, mr.Exists(lockKey))
	})
	ds.On("CreateAMLAlert", mock.Anything, mock.Anything).Return(nil)
	ds.On("CreateAMLTask", mock.Anything, mock.Anything).Return(nil)

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1", TenantID: testTenant})
	err = rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, job.Status)
	assert.False(t, mr.Exists(lockKey))
}

func TestProcessAgentJob_LockContention(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rf.config.Agents.LockTimeoutSeconds = 60
	rf.config.Agents.LockWaitSeconds = 0

	job := queuedJob(model.JobAMLAlertTriage, `{"entityId":"acct_7"}`)
	require.NoError(t, mr.Set(redlock.AgentLockKey(job.LockKey()), "another-worker"))
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err = rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, redlock.ErrLockHeld)
	assert.Equal(t, model.JobQueued, job.Status)
	ds.AssertNotCalled(t, "UpdateAgentJob", mock.Anything, mock.Anything)
}

func TestProcessAgentJob_DoesNotRetryRecordedFailures(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_x"}`)
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil)
	ds.On("GetPayment", mock.Anything, testTenant, "pay_x").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil))

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
}

func TestProcessAgentJob_SkipsUnusablePayloads(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	ds.On("GetAgentJob", mock.Anything, "job_gone").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Agent job not found", nil))
	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_gone"})
	err = rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessAgentJob_RetriesWhenFailureIsNotSaved(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_x"}`)
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil).Once()
	ds.On("UpdateAgentJob", mock.Anything, job).
		Return(apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update agent job", errors.New("connection reset"))).Once()
	ds.On("GetPayment", mock.Anything, testTenant, "pay_x").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil))

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutcomeNotSaved)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	ds.AssertNumberOfCalls(t, "UpdateAgentJob", 2)
}

func TestProcessAgentJob_RetriesWhenCompletionIsNotSaved(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)

	job := queuedJob(model.JobTransactionOutliers, `{}`)
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil).Once()
	ds.On("UpdateAgentJob", mock.Anything, job).
		Return(apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update agent job", errors.New("connection reset"))).Once()
	ds.On("GetHighValueTransactions", mock.Anything, testTenant, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, testTenant, mock.Anything, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutcomeNotSaved)
	assert.Equal(t, http.StatusInternalServerError, apierror.MapErrorToHTTPStatus(err))
}

func TestProcessAgentJob_RecoversStalledJob(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.config.Agents.LockTimeoutSeconds = 60

	started := fixedNow.Add(-2 * time.Minute)
	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_x"}`)
	job.Status = model.JobRunning
	job.StartedAt = &started

	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)
	ds.On("UpdateAgentJob", mock.Anything, job).Return(nil).Once()

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, model.InterruptedJobMessage, job.Error)
	ds.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessAgentJob_RetriesWhileJobMayStillRun(t *testing.T) {
	ds := new(mocks.MockDataSource)
	rf := newTestRedFlags(ds)
	rf.config.Agents.LockTimeoutSeconds = 60

	started := fixedNow.Add(-10 * time.Second)
	job := queuedJob(model.JobDedupReview, `{"entityId":"pay_x"}`)
	job.Status = model.JobRunning
	job.StartedAt = &started
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(job, nil)

	payload, _ := json.Marshal(AgentJobPayload{JobID: "job_1"})
	err := rf.ProcessAgentJob(context.Background(), asynq.NewTask(TaskAgentJob, payload))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, model.JobRunning, job.Status)
	ds.AssertNotCalled(t, "UpdateAgentJob", mock.Anything, mock.Anything)
}
