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
	"errors"

	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"go.opentelemetry.io/otel"
)

func (d Datasource) CreateIncident(ctx context.Context, incident *model.Incident) error {
	ctx, span := otel.Tracer("redflags.database").Start(ctx, "CreateIncident")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO security_incidents (
			incident_id, tenant_id, flag_type, severity, entity_id, entity_type,
			detected_at, evidence_snapshot_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, incident.IncidentID, incident.TenantID, incident.FlagType, incident.Severity, incident.EntityID,
		incident.EntityType, incident.DetectedAt, incident.EvidenceSnapshotID, incident.Status, incident.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record incident", err)
	}
	return nil
}

func (d Datasource) GetIncident(ctx context.Context, tenantID, incidentID string) (*model.Incident, error) {
	var (
		incident          model.Incident
		resolvedBy, notes sql.NullString
		resolvedAt        sql.NullTime
	)

	err := d.db().QueryRowContext(ctx, `
		SELECT incident_id, tenant_id, flag_type, severity, entity_id, entity_type, detected_at,
			evidence_snapshot_id, status, resolved_by, resolution_notes, resolved_at, created_at
		FROM security_incidents
		WHERE tenant_id = $1 AND incident_id = $2
	`, tenantID, incidentID).Scan(&incident.IncidentID, &incident.TenantID, &incident.FlagType, &incident.Severity,
		&incident.EntityID, &incident.EntityType, &incident.DetectedAt, &incident.EvidenceSnapshotID, &incident.Status,
		&resolvedBy, &notes, &resolvedAt, &incident.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Incident not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve incident", err)
	}

	incident.ResolvedBy = resolvedBy.String
	incident.ResolutionNotes = notes.String
	if resolvedAt.Valid {
		incident.ResolvedAt = &resolvedAt.Time
	}
	return &incident, nil
}

// ResolveIncident closes an active incident. Resolving one that is not active is a conflict.
func (d Datasource) ResolveIncident(ctx context.Context, incident *model.Incident) error {
	res, err := d.db().ExecContext(ctx, `
		UPDATE security_incidents
		SET status = $3, resolved_by = $4, resolution_notes = $5, resolved_at = $6
		WHERE tenant_id = $1 AND incident_id = $2 AND status = $7
	`, incident.TenantID, incident.IncidentID, model.IncidentResolved, incident.ResolvedBy,
		nullString(incident.ResolutionNotes), incident.ResolvedAt, model.IncidentActive)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to resolve incident", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Incident is not active", nil)
	}
	incident.Status = model.IncidentResolved
	return nil
}

func (d Datasource) CreateEvidenceSnapshot(ctx context.Context, snapshot *model.EvidenceSnapshot) error {
	_, err := d.db().ExecContext(ctx, `
		INSERT INTO evidence_snapshots (
			snapshot_id, incident_type, tenant_id, entity_id, evidence_data, evidence_hash, created_at, is_immutable
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snapshot.SnapshotID, snapshot.IncidentType, snapshot.TenantID, snapshot.EntityID,
		[]byte(snapshot.EvidenceData), snapshot.EvidenceHash, snapshot.CreatedAt, snapshot.IsImmutable)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store evidence snapshot", err)
	}
	return nil
}

func (d Datasource) GetNotificationRules(ctx context.Context, tenantID string, flag model.FlagType, severity model.Priority) ([]model.NotificationRule, error) {
	rows, err := d.db().QueryContext(ctx, `
		SELECT notification_type, recipient_list
		FROM incident_notification_rules
		WHERE tenant_id = $1 AND flag_type = $2 AND severity = $3
	`, tenantID, flag, severity)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve notification rules", err)
	}
	defer rows.Close()

	rules := []model.NotificationRule{}
	for rows.Next() {
		rule := model.NotificationRule{TenantID: tenantID, FlagType: flag, Severity: severity}
		var recipients []byte
		if err = rows.Scan(&rule.NotificationType, &recipients); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan notification rule", err)
		}
		if len(recipients) > 0 {
			if err = json.Unmarshal(recipients, &rule.Recipients); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal recipient list", err)
			}
		}
		if rule.Recipients == nil {
			rule.Recipients = []string{}
		}
		rules = append(rules, rule)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over notification rules", err)
	}
	return rules, nil
}
