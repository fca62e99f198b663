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
	DefaultOutlierWindowDays  = 7
	OutlierScanLimit          = 50
	RepeatedReferenceMinCount = 3
	OverdueReceiptAgeDays     = 30
)

var (
	DefaultOutlierThreshold = decimal.NewFromInt(100000)
	overdueReceiptMinFloor  = decimal.NewFromInt(5000)
)

// OverdueReceiptFloor is the smallest pending receipt worth chasing: max(5000, threshold/10).
func OverdueReceiptFloor(threshold decimal.Decimal) decimal.Decimal {
	return decimal.Max(overdueReceiptMinFloor, threshold.Div(decimal.NewFromInt(10)))
}

// Transaction is a ledger transaction as seen by the outlier scans.
type Transaction struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type,omitempty"`
	Reference       string          `json:"reference_id,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// RepeatedReference is a reference seen at least RepeatedReferenceMinCount times in the window.
type RepeatedReference struct {
	Reference string    `json:"reference_id"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_ts"`
	LastSeen  time.Time `json:"last_ts"`
}
