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
	"errors"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const paymentSelect = `
		SELECT p.id, p.tenant_id, COALESCE(p.account_id, ''), COALESCE(p.counterparty_id, ''),
			COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(p.reference, ''), p.amount,
			COALESCE(p.currency, ''), p.status, p.txn_ts
		FROM payments p
		LEFT JOIN counterparties c ON c.id = p.counterparty_id AND c.tenant_id = p.tenant_id`

func scanPayment(row rowScanner) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.AccountID, &p.CounterpartyID, &p.CounterpartyName, &p.CounterpartyEmail,
		&p.Reference, &p.Amount, &p.Currency, &p.Status, &p.TransactionDate)
	return p, err
}

func (d Datasource) GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "GetPayment")
	defer span.End()

	payment, err := scanPayment(d.db().QueryRowContext(ctx, paymentSelect+`
		WHERE p.tenant_id = $1 AND p.id = $2
	`, tenantID, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment", err)
	}
	return &payment, nil
}

// FindDuplicatePayments returns the tenant's other payments with the same amount, reference and
// calendar date as paymentID, oldest first.
func (d Datasource) FindDuplicatePayments(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "FindDuplicatePayments")
	defer span.End()

	return d.queryPayments(ctx, `
		WITH target AS (
			SELECT amount, COALESCE(reference, '') AS ref, txn_ts
			FROM payments
			WHERE tenant_id = $1 AND id = $2
		)`+paymentSelect+`
		JOIN target t ON p.amount = t.amount
			AND COALESCE(p.reference, '') = t.ref
			AND DATE(p.txn_ts) = DATE(t.txn_ts)
		WHERE p.tenant_id = $1 AND p.id <> $2
		ORDER BY p.txn_ts
	`, tenantID, paymentID)
}

// GetPaymentsByReference returns the payment and every payment sharing its reference.
func (d Datasource) GetPaymentsByReference(ctx context.Context, tenantID, paymentID string) ([]model.Payment, error) {
	return d.queryPayments(ctx, paymentSelect+`
		WHERE p.tenant_id = $1 AND (p.id = $2 OR p.reference = (
			SELECT reference FROM payments WHERE tenant_id = $1 AND id = $2
		))
		ORDER BY p.txn_ts
	`, tenantID, paymentID)
}

func (d Datasource) queryPayments(ctx context.Context, query string, args ...interface{}) ([]model.Payment, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payments", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payment", err)
		}
		payments = append(payments, payment)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payments", err)
	}
	return payments, nil
}

func (d Datasource) ReversePayment(ctx context.Context, tenantID, paymentID, reason string) error {
	return d.updatePayment(ctx, "Failed to reverse payment", `
		UPDATE payments
		SET status = $3, reversed_by = $4, reversed_at = NOW(), reversal_reason = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, paymentID, model.PaymentReversed, model.SystemAgent, reason)
}

func (d Datasource) HoldPayment(ctx context.Context, tenantID, paymentID, reason string) error {
	return d.updatePayment(ctx, "Failed to hold payment", `
		UPDATE payments
		SET status = $3, hold_reason = $4, held_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, paymentID, model.PaymentOnHold, reason)
}

func (d Datasource) FlagPaymentDuplicate(ctx context.Context, tenantID, paymentID, reason string) error {
	return d.updatePayment(ctx, "Failed to flag payment", `
		UPDATE payments
		SET status = $3, flag_reason = $4, flagged_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, paymentID, model.PaymentDuplicateSuspect, reason)
}

func (d Datasource) updatePayment(ctx context.Context, failure, query string, args ...interface{}) error {
	res, err := d.db().ExecContext(ctx, query, args...)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, failure, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil)
	}
	return nil
}

// CreateDeduplicationRule inserts the rule unless one already exists for the signature.
// It reports whether a new row was written.
func (d Datasource) CreateDeduplicationRule(ctx context.Context, rule *model.DeduplicationRule) (bool, error) {
	res, err := d.db().ExecContext(ctx, `
		INSERT INTO deduplication_rules (tenant_id, signature, original_payment_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, signature) DO NOTHING
	`, rule.TenantID, rule.Signature, rule.OriginalPaymentID, rule.CreatedBy, rule.CreatedAt)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create deduplication rule", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected > 0, nil
}

// FreezeCounterparty freezes the relationship and reports whether a counterparty row was updated.
// Counterparties are owned by the host application, so a missing row is not an error.
func (d Datasource) FreezeCounterparty(ctx context.Context, tenantID, counterpartyID, reason string) (bool, error) {
	res, err := d.db().ExecContext(ctx, `
		UPDATE counterparties
		SET status = 'frozen', freeze_reason = $3, frozen_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, counterpartyID, reason)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to freeze counterparty", err)
	}
	frozen, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return frozen > 0, nil
}

func warnIfUntouched(res sql.Result, entity, tenantID, id string) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "entity": entity, "id": id}).Warn("no row matched")
	}
}
