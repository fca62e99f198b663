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

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AMLAlertTypeRapidSuccession = "rapid_succession"
	AMLLookback                 = time.Hour
	AMLTaskDueIn                = 2 * 24 * time.Hour
)

// Limits applied to an account once triage escalates it.
var (
	AMLRestrictedDailyLimit       = decimal.NewFromInt(5000)
	AMLRestrictedTransactionLimit = decimal.NewFromInt(1000)
)

var (
	amlHighCount    = int64(10)
	amlMediumCount  = int64(5)
	amlHighAmount   = decimal.NewFromInt(100000)
	amlMediumAmount = decimal.NewFromInt(50000)
	amlBurstWindow  = 10 * time.Minute
)

// RiskLevel grades an AML risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Escalated reports whether the account must be restricted and put under manual review.
func (l RiskLevel) Escalated() bool {
	return l == RiskHigh || l == RiskCritical
}

// TransactionPattern aggregates an account's recent payments.
type TransactionPattern struct {
	TransactionCount     int64           `json:"transaction_count"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	FirstTransaction     *time.Time      `json:"first_transaction,omitempty"`
	LastTransaction      *time.Time      `json:"last_transaction,omitempty"`
	UniqueCounterparties int64           `json:"unique_counterparties"`
}

// TimeWindow is the span between the first and last transaction. ok is false when the
// pattern has no transactions.
func (p TransactionPattern) TimeWindow() (window time.Duration, ok bool) {
	if p.FirstTransaction == nil || p.LastTransaction == nil {
		return 0, false
	}
	return p.LastTransaction.Sub(*p.FirstTransaction), true
}

// RiskScore scores the pattern out of 100.
func (p TransactionPattern) RiskScore() int {
	score := 0

	switch {
	case p.TransactionCount > amlHighCount:
		score += 30
	case p.TransactionCount > amlMediumCount:
		score += 20
	}

	switch {
	case p.TotalAmount.GreaterThan(amlHighAmount):
		score += 25
	case p.TotalAmount.GreaterThan(amlMediumAmount):
		score += 15
	}

	if p.UniqueCounterparties == 1 {
		score += 20
	}

	if window, ok := p.TimeWindow(); ok && window < amlBurstWindow {
		score += 25
	}

	if score > 100 {
		score = 100
	}
	return score
}

type AMLAlert struct {
	AlertID   string             `json:"alert_id"`
	TenantID  string             `json:"tenant_id"`
	AccountID string             `json:"account_id"`
	AlertType string             `json:"alert_type"`
	RiskLevel RiskLevel          `json:"risk_level"`
	RiskScore int                `json:"risk_score"`
	Status    string             `json:"status"`
	CreatedBy string             `json:"created_by"`
	Pattern   TransactionPattern `json:"metadata"`
	CreatedAt time.Time          `json:"created_at"`
}

type AMLTask struct {
	AlertID     string    `json:"alert_id"`
	TenantID    string    `json:"tenant_id"`
	Description string    `json:"task_description"`
	Priority    Priority  `json:"priority"`
	AssignedTo  string    `json:"assigned_to"`
	DueDate     time.Time `json:"due_date"`
}

// AMLTasksFor returns the follow-up tasks for a risk level. Only Description and Priority are set.
func AMLTasksFor(level RiskLevel) []AMLTask {
	tasks := []AMLTask{
		{Description: "Review transaction patterns", Priority: PriorityMedium},
		{Description: "Verify customer identity", Priority: PriorityMedium},
	}
	if level.Escalated() {
		tasks = append(tasks,
			AMLTask{Description: "Conduct customer interview", Priority: PriorityHigh},
			AMLTask{Description: "Review historical account activity", Priority: PriorityHigh},
			AMLTask{Description: "Assess SAR filing requirement", Priority: PriorityHigh},
		)
	}
	return tasks
}
