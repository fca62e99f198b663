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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/internal/cache"
	"github.com/dogan-ai/redflags/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJournalEntries(t *testing.T) {
	ds, mock := newMockDatasource(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"entry_id", "tenant_id", "journal_id", "account_id", "debit", "credit", "memo", "created_by", "created_at"}).
		AddRow("gle_1", "tenant_1", "jrn_1", "acct_cash", "1000.00", "0", "", "", now).
		AddRow("gle_2", "tenant_1", "jrn_1", "acct_rev", "0", "999.50", "sale", "user_1", now)

	mock.ExpectQuery("FROM gl_entries WHERE tenant_id = \\$1 AND journal_id = \\$2").
		WithArgs("tenant_1", "jrn_1").
		WillReturnRows(rows)

	entries, err := ds.GetJournalEntries(context.Background(), "tenant_1", "jrn_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Debit.Equal(decimal.NewFromInt(1000)))
	assert.True(t, entries[1].Credit.Equal(decimal.RequireFromString("999.50")))
	assert.Equal(t, "sale", entries[1].Memo)
}

func TestInsertGLEntry_GeneratesID(t *testing.T) {
	ds, mock := newMockDatasource(t)

	entry := &model.GLEntry{
		TenantID:  "tenant_1",
		JournalID: "jrn_1",
		AccountID: "acct_susp",
		Debit:     decimal.Zero,
		Credit:    decimal.RequireFromString("0.50"),
		Memo:      "Auto-balance adjustment for journal jrn_1",
		CreatedBy: model.SystemAgent,
	}

	mock.ExpectExec("INSERT INTO gl_entries").
		WithArgs(sqlmock.AnyArg(), "tenant_1", "jrn_1", "acct_susp", decimal.Zero, decimal.RequireFromString("0.50"),
			entry.Memo, model.SystemAgent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.InsertGLEntry(context.Background(), entry))
	assert.Contains(t, entry.EntryID, "gle_")
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestGetSuspenseAccountID_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT account_id FROM chart_of_accounts").
		WithArgs("tenant_1", model.SuspenseAccountCode).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

	_, err := ds.GetSuspenseAccountID(context.Background(), "tenant_1")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestGetSuspenseAccountID_UsesCache(t *testing.T) {
	ds, mock := newMockDatasource(t)
	s := miniredis.RunT(t)
	ds.Cache = cache.New(redis.NewClient(&redis.Options{Addr: s.Addr()}))

	mock.ExpectQuery("SELECT account_id FROM chart_of_accounts").
		WithArgs("tenant_1", model.SuspenseAccountCode).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_susp"))

	first, err := ds.GetSuspenseAccountID(context.Background(), "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_susp", first)

	// second lookup is served from the cache; sqlmock would fail on an unexpected query
	second, err := ds.GetSuspenseAccountID(context.Background(), "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_susp", second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSuspenseAccount(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("INSERT INTO chart_of_accounts").
		WithArgs(sqlmock.AnyArg(), "tenant_1", model.SuspenseAccountCode, model.SuspenseAccountName, model.SystemAgent).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_new"))

	id, err := ds.CreateSuspenseAccount(context.Background(), "tenant_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_new", id)
}

func TestFreezePosting(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO tenant_settings").
		WithArgs("tenant_1", model.UnbalancedGLFreezeReason, "jrn_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.FreezePosting(context.Background(), "tenant_1", model.UnbalancedGLFreezeReason, "jrn_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnablePosting_ScopedToReasonAndJournal(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("UPDATE tenant_settings SET posting_enabled = true(.+) AND freeze_reason = \\$2 AND \\(frozen_journal_id IS NULL OR frozen_journal_id = \\$3\\)").
		WithArgs("tenant_1", model.UnbalancedGLFreezeReason, "jrn_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	cleared, err := ds.EnablePosting(context.Background(), "tenant_1", model.UnbalancedGLFreezeReason, "jrn_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}
