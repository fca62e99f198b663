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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPosted           = "posted"
	PaymentReversed         = "reversed"
	PaymentOnHold           = "on_hold"
	PaymentDuplicateSuspect = "duplicate_suspect"

	DuplicateReversalReason    = "Duplicate transaction detected by AI agent"
	DuplicateFlagReason        = "Duplicate transaction detected"
	SupportingDocsHoldReason   = "Supporting documentation required"
	LargeUnexplainedHoldReason = "Large transaction requires documentation"
)

// Payment is a tenant payment as read by the agents.
type Payment struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	AccountID         string          `json:"account_id,omitempty"`
	CounterpartyID    string          `json:"counterparty_id,omitempty"`
	CounterpartyName  string          `json:"counterparty_name,omitempty"`
	CounterpartyEmail string          `json:"counterparty_email,omitempty"`
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	Status            string          `json:"status"`
	TransactionDate   time.Time       `json:"txn_ts"`
}

// DedupSignature is the MD5 hex of "counterparty|reference|amount". Amounts are rendered with two
// decimals so 1000 and 1000.00 produce the same signature.
func (p Payment) DedupSignature() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s", p.CounterpartyID, p.Reference, p.Amount.StringFixed(2))))
	return hex.EncodeToString(sum[:])
}

// DeduplicationRule blocks future payments matching a known duplicate signature.
type DeduplicationRule struct {
	TenantID          string    `json:"tenant_id"`
	Signature         string    `json:"signature"`
	OriginalPaymentID string    `json:"original_payment_id"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}
