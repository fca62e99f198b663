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
	"fmt"
	"time"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const suspenseAccountCacheTTL = 24 * time.Hour

func suspenseAccountCacheKey(tenantID string) string {
	return fmt.Sprintf("suspense_account:%s", tenantID)
}

func (d Datasource) GetJournalEntries(ctx context.Context, tenantID, journalID string) ([]model.GLEntry, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "GetJournalEntries")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT entry_id, tenant_id, journal_id, account_id, debit, credit, COALESCE(memo, ''), COALESCE(created_by, ''), created_at
		FROM gl_entries
		WHERE tenant_id = $1 AND journal_id = $2
		ORDER BY created_at
	`, tenantID, journalID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve journal entries", err)
	}
	defer rows.Close()

	entries := []model.GLEntry{}
	for rows.Next() {
		var entry model.GLEntry
		err = rows.Scan(&entry.EntryID, &entry.TenantID, &entry.JournalID, &entry.AccountID, &entry.Debit, &entry.Credit,
			&entry.Memo, &entry.CreatedBy, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan journal entry", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over journal entries", err)
	}
	return entries, nil
}

// InsertGLEntry appends a line to a journal. Existing lines are never touched.
func (d Datasource) InsertGLEntry(ctx context.Context, entry *model.GLEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = model.GenerateUUIDWithSuffix("gle")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO gl_entries (entry_id, tenant_id, journal_id, account_id, debit, credit, memo, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.EntryID, entry.TenantID, entry.JournalID, entry.AccountID, entry.Debit, entry.Credit, entry.Memo, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create journal entry", err)
	}
	return nil
}

// GetSuspenseAccountID returns the tenant's suspense account, or ErrNotFound when it does not exist yet.
func (d Datasource) GetSuspenseAccountID(ctx context.Context, tenantID string) (string, error) {
	key := suspenseAccountCacheKey(tenantID)
	if d.Cache != nil {
		var cached string
		if err := d.Cache.Get(ctx, key, &cached); err != nil {
			logrus.WithError(err).Warn("suspense account cache lookup failed")
		} else if cached != "" {
			return cached, nil
		}
	}

	var accountID string
	err := d.db().QueryRowContext(ctx, `
		SELECT account_id
		FROM chart_of_accounts
		WHERE tenant_id = $1 AND account_code = $2
	`, tenantID, model.SuspenseAccountCode).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apierror.NewAPIError(apierror.ErrNotFound, "Suspense account not found", nil)
		}
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve suspense account", err)
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, key, accountID, suspenseAccountCacheTTL); err != nil {
			logrus.WithError(err).Warn("failed to cache suspense account")
		}
	}
	return accountID, nil
}

// CreateSuspenseAccount creates the tenant's suspense account. A concurrent creator wins and its id is returned.
// The id is not cached here since the surrounding transaction may still roll back.
func (d Datasource) CreateSuspenseAccount(ctx context.Context, tenantID string) (string, error) {
	var accountID string
	err := d.db().QueryRowContext(ctx, `
		INSERT INTO chart_of_accounts (account_id, tenant_id, account_code, account_name, account_type, created_by, created_at)
		VALUES ($1, $2, $3, $4, 'asset', $5, NOW())
		ON CONFLICT (tenant_id, account_code) DO UPDATE SET account_code = EXCLUDED.account_code
		RETURNING account_id
	`, model.GenerateUUIDWithSuffix("acct"), tenantID, model.SuspenseAccountCode, model.SuspenseAccountName, model.SystemAgent).Scan(&accountID)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create suspense account", err)
	}
	return accountID, nil
}

// FreezePosting disables GL posting for the tenant, recording why and for which journal.
func (d Datasource) FreezePosting(ctx context.Context, tenantID, reason, journalID string) error {
	_, err := d.db().ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant_id, posting_enabled, freeze_reason, frozen_at, frozen_journal_id)
		VALUES ($1, false, $2, NOW(), $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET posting_enabled = false,
			freeze_reason = EXCLUDED.freeze_reason,
			frozen_at = EXCLUDED.frozen_at,
			frozen_journal_id = EXCLUDED.frozen_journal_id
	`, tenantID, reason, nullString(journalID))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to freeze GL posting", err)
	}
	return nil
}

// EnablePosting clears a posting freeze only when it carries the given reason and was placed either for
// this journal or for no journal in particular. It returns the number of freezes cleared.
func (d Datasource) EnablePosting(ctx context.Context, tenantID, reason, journalID string) (int64, error) {
	res, err := d.db().ExecContext(ctx, `
		UPDATE tenant_settings
		SET posting_enabled = true, freeze_reason = NULL, frozen_at = NULL, frozen_journal_id = NULL
		WHERE tenant_id = $1 AND posting_enabled = false AND freeze_reason = $2
		AND (frozen_journal_id IS NULL OR frozen_journal_id = $3)
	`, tenantID, reason, journalID)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to re-enable GL posting", err)
	}

	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return cleared, nil
}
