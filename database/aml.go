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
	"database/sql"
	"encoding/json"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

// GetTransactionPattern aggregates the account's payments of the last hour.
func (d Datasource) GetTransactionPattern(ctx context.Context, tenantID, accountID string) (model.TransactionPattern, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "GetTransactionPattern")
	defer span.End()

	var (
		pattern     model.TransactionPattern
		first, last sql.NullTime
	)
	err := d.db().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), MIN(txn_ts), MAX(txn_ts), COUNT(DISTINCT counterparty_id)
		FROM payments
		WHERE tenant_id = $1 AND account_id = $2
		AND txn_ts >= NOW() - INTERVAL '1 hour'
	`, tenantID, accountID).Scan(&pattern.TransactionCount, &pattern.TotalAmount, &first, &last, &pattern.UniqueCounterparties)
	if err != nil {
		return model.TransactionPattern{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to analyze transaction pattern", err)
	}

	if first.Valid {
		pattern.FirstTransaction = &first.Time
	}
	if last.Valid {
		pattern.LastTransaction = &last.Time
	}
	return pattern, nil
}

func (d Datasource) CreateAMLAlert(ctx context.Context, alert *model.AMLAlert) error {
	metadata, err := json.Marshal(alert.Pattern)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal alert metadata", err)
	}

	_, err = d.db().ExecContext(ctx, `
		INSERT INTO aml_alerts (
			alert_id, tenant_id, account_id, alert_type, risk_level, risk_score, status, created_by, created_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, alert.AlertID, alert.TenantID, alert.AccountID, alert.AlertType, alert.RiskLevel, alert.RiskScore,
		alert.Status, alert.CreatedBy, alert.CreatedAt, metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create AML alert", err)
	}
	return nil
}

func (d Datasource) CreateAMLTask(ctx context.Context, task *model.AMLTask) error {
	_, err := d.db().ExecContext(ctx, `
		INSERT INTO aml_tasks (alert_id, tenant_id, task_description, priority, assigned_to, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, task.AlertID, task.TenantID, task.Description, task.Priority, task.AssignedTo, task.DueDate)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create AML task", err)
	}
	return nil
}

// RestrictAccount lowers the account's limits to at most the given values and requires manual review.
// Limits already below the caps are kept.
func (d Datasource) RestrictAccount(ctx context.Context, tenantID, accountID string, dailyLimit, transactionLimit decimal.Decimal) error {
	res, err := d.db().ExecContext(ctx, `
		UPDATE accounts
		SET daily_limit = LEAST(daily_limit, $3),
			transaction_limit = LEAST(transaction_limit, $4),
			manual_review_required = true
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, accountID, dailyLimit, transactionLimit)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to restrict account", err)
	}
	warnIfUntouched(res, "account", tenantID, accountID)
	return nil
}

func (d Datasource) FlagAccountForReview(ctx context.Context, tenantID, accountID, reason string) error {
	res, err := d.db().ExecContext(ctx, `
		UPDATE accounts
		SET manual_review_required = true, review_reason = $3, flagged_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, accountID, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to flag account for review", err)
	}
	warnIfUntouched(res, "account", tenantID, accountID)
	return nil
}
