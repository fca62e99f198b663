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
	SuspenseAccountCode = "SUSPENSE"
	SuspenseAccountName = "Suspense Account"

	// UnbalancedGLFreezeReason is written when posting is frozen for an unbalanced journal.
	// Only freezes carrying this reason are cleared by the repair agent.
	UnbalancedGLFreezeReason = "Unbalanced GL detected"
)

// BalanceTolerance is the largest debit/credit difference still treated as balanced.
var BalanceTolerance = decimal.RequireFromString("0.01")

// GLEntry is one line of a double-entry journal.
type GLEntry struct {
	EntryID   string          `json:"entry_id"`
	TenantID  string          `json:"tenant_id"`
	JournalID string          `json:"journal_id"`
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// JournalTotals are the summed sides of a journal.
type JournalTotals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

func TotalsFor(entries []GLEntry) JournalTotals {
	totals := JournalTotals{Debit: decimal.Zero, Credit: decimal.Zero}
	for _, entry := range entries {
		totals.Debit = totals.Debit.Add(entry.Debit)
		totals.Credit = totals.Credit.Add(entry.Credit)
	}
	return totals
}

// Imbalance is total debit minus total credit.
func (t JournalTotals) Imbalance() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

func (t JournalTotals) IsBalanced() bool {
	return t.Imbalance().Abs().LessThanOrEqual(BalanceTolerance)
}

// Offset returns the debit and credit of the single line that brings the journal back to zero.
// A debit-heavy journal is offset with a credit and vice versa.
func (t JournalTotals) Offset() (debit, credit decimal.Decimal) {
	imbalance := t.Imbalance()
	if imbalance.IsPositive() {
		return decimal.Zero, imbalance.Abs()
	}
	return imbalance.Abs(), decimal.Zero
}
