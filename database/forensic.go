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
	"time"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"go.opentelemetry.io/otel"
)

const auditLogColumns = `id, tenant_id, COALESCE(user_id, ''), COALESCE(entity_type, ''), COALESCE(entity_id, ''), action, COALESCE(details, ''), created_at`

const userActivityColumns = `id, tenant_id, user_id, COALESCE(entity_id, ''), activity, COALESCE(ip_address, ''), created_at`

func (d Datasource) GetRecentAuditLogs(ctx context.Context, tenantID string, limit int) ([]model.AuditLog, error) {
	return d.queryAuditLogs(ctx, `
		SELECT `+auditLogColumns+`
		FROM audit_logs
		WHERE tenant_id = $1 AND created_at >= NOW() - INTERVAL '24 hours'
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
}

func (d Datasource) GetEntityAuditLogs(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.AuditLog, error) {
	return d.queryAuditLogs(ctx, `
		SELECT `+auditLogColumns+`
		FROM audit_logs
		WHERE tenant_id = $1 AND entity_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, entityID, since, limit)
}

func (d Datasource) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]model.AuditLog, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit logs", err)
	}
	defer rows.Close()

	logs := []model.AuditLog{}
	for rows.Next() {
		var l model.AuditLog
		if err = rows.Scan(&l.ID, &l.TenantID, &l.UserID, &l.EntityType, &l.EntityID, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit log", err)
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over audit logs", err)
	}
	return logs, nil
}

func (d Datasource) GetRecentUserActivities(ctx context.Context, tenantID string, limit int) ([]model.UserActivity, error) {
	return d.queryUserActivities(ctx, `
		SELECT `+userActivityColumns+`
		FROM user_activities
		WHERE tenant_id = $1 AND created_at >= NOW() - INTERVAL '24 hours'
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
}

func (d Datasource) GetEntityUserActivities(ctx context.Context, tenantID, entityID string, since time.Time, limit int) ([]model.UserActivity, error) {
	return d.queryUserActivities(ctx, `
		SELECT `+userActivityColumns+`
		FROM user_activities
		WHERE tenant_id = $1 AND entity_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, entityID, since, limit)
}

func (d Datasource) queryUserActivities(ctx context.Context, query string, args ...interface{}) ([]model.UserActivity, error) {
	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user activities", err)
	}
	defer rows.Close()

	activities := []model.UserActivity{}
	for rows.Next() {
		var a model.UserActivity
		if err = rows.Scan(&a.ID, &a.TenantID, &a.UserID, &a.EntityID, &a.Activity, &a.IPAddress, &a.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan user activity", err)
		}
		activities = append(activities, a)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over user activities", err)
	}
	return activities, nil
}

// GetDatabaseState reads write churn per table and the number of active connections from the
// Postgres statistics views.
func (d Datasource) GetDatabaseState(ctx context.Context) (model.DatabaseState, error) {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "GetDatabaseState")
	defer span.End()

	state := model.DatabaseState{TableStats: []model.TableStat{}}

	rows, err := d.db().QueryContext(ctx, `
		SELECT schemaname, relname, n_tup_ins, n_tup_upd, n_tup_del
		FROM pg_stat_user_tables
		WHERE schemaname = 'public'
	`)
	if err != nil {
		return state, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read table statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stat model.TableStat
		if err = rows.Scan(&stat.SchemaName, &stat.TableName, &stat.Inserts, &stat.Updates, &stat.Deletes); err != nil {
			return state, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan table statistics", err)
		}
		state.TableStats = append(state.TableStats, stat)
	}
	if err = rows.Err(); err != nil {
		return state, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over table statistics", err)
	}

	err = d.db().QueryRowContext(ctx, `
		SELECT count(*)
		FROM pg_stat_activity
		WHERE state = 'active'
	`).Scan(&state.ActiveConnections)
	if err != nil {
		return state, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count active connections", err)
	}
	return state, nil
}

func (d Datasource) CreateForensicSnapshot(ctx context.Context, snapshot *model.ForensicSnapshot) error {
	_, err := d.db().ExecContext(ctx, `
		INSERT INTO forensic_snapshots (
			snapshot_id, tenant_id, incident_id, snapshot_type, data_hash, storage_location, created_at, is_immutable
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snapshot.SnapshotID, snapshot.TenantID, nullString(snapshot.IncidentID), snapshot.SnapshotType,
		snapshot.DataHash, snapshot.StorageLocation, snapshot.CreatedAt, snapshot.IsImmutable)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create forensic snapshot", err)
	}
	return nil
}

func (d Datasource) SuspendUser(ctx context.Context, tenantID, userID, reason string) error {
	res, err := d.db().ExecContext(ctx, `
		UPDATE users
		SET status = 'suspended', suspension_reason = $3, suspended_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, userID, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to suspend user", err)
	}
	warnIfUntouched(res, "user", tenantID, userID)
	return nil
}

func (d Datasource) RevokeWriteAccess(ctx context.Context, tenantID, userID, reason string) error {
	res, err := d.db().ExecContext(ctx, `
		UPDATE user_permissions
		SET write_access = false, suspended_reason = $3, suspended_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to revoke write access", err)
	}
	warnIfUntouched(res, "user_permissions", tenantID, userID)
	return nil
}
