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

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/shopspring/decimal"
)

// GetHighValueTransactions returns the largest transactions at or above threshold.
func (d Datasource) GetHighValueTransactions(ctx context.Context, tenantID string, threshold decimal.Decimal, limit int) ([]model.Transaction, error) {
	return d.queryTransactions(ctx, `
		SELECT id, amount, COALESCE(transaction_type, ''), COALESCE(reference_id, ''), transaction_date
		FROM transactions
		WHERE tenant_id = $1 AND amount >= $2
		ORDER BY amount DESC
		LIMIT $3
	`, tenantID, threshold, limit)
}

// GetRepeatedReferences returns references seen at least minCount times in the last windowDays days.
func (d Datasource) GetRepeatedReferences(ctx context.Context, tenantID string, windowDays, minCount, limit int) ([]model.RepeatedReference, error) {
	rows, err := d.db().QueryContext(ctx, `
		SELECT reference_id, COUNT(*) AS c, MIN(transaction_date), MAX(transaction_date)
		FROM transactions
		WHERE tenant_id = $1 AND reference_id IS NOT NULL
		AND transaction_date >= NOW() - make_interval(days => $2)
		GROUP BY reference_id
		HAVING COUNT(*) >= $3
		ORDER BY c DESC
		LIMIT $4
	`, tenantID, windowDays, minCount, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan for repeated references", err)
	}
	defer rows.Close()

	repeats := []model.RepeatedReference{}
	for rows.Next() {
		var r model.RepeatedReference
		if err = rows.Scan(&r.Reference, &r.Count, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan repeated reference", err)
		}
		repeats = append(repeats, r)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over repeated references", err)
	}
	return repeats, nil
}

// GetOverdueReceipts returns pending receipts of at least minAmount older than olderThanDays days.
func (d Datasource) GetOverdueReceipts(ctx context.Context, tenantID string, minAmount decimal.Decimal, olderThanDays, limit int) ([]model.Transaction, error) {
	return d.queryTransactions(ctx, `
		SELECT id, amount, COALESCE(transaction_type, ''), COALESCE(reference_id, ''), transaction_date
		FROM transactions
		WHERE tenant_id = $1 AND transaction_type = 'receipt' AND status = 'pending'
		AND transaction_date < NOW() - make_interval(days => $3) AND amount >= $2
		ORDER BY transaction_date ASC
		LIMIT $4
	`, tenantID, minAmount, olderThanDays, limit)
}

func (d Datasource) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]model.Transaction, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()

	transactions := []model.Transaction{}
	for rows.Next() {
		var t model.Transaction
		if err = rows.Scan(&t.ID, &t.Amount, &t.TransactionType, &t.Reference, &t.TransactionDate); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}
	return transactions, nil
}
