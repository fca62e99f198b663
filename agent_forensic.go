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

package redflags

import (
	"context"
	"fmt"

	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/model"
	"github.com/sirupsen/logrus"
)

// captureForensicSnapshot seals the last day of audit trail and database activity for a tenant.
// The hash and storage location are recorded in an immutable row; the payload itself goes to the
// evidence store when one is configured.
func (r *RedFlags) captureForensicSnapshot(ctx context.Context, ds database.IDataSource, job *model.AgentJob, in model.ForensicSnapshotInput) (*model.AgentResult, error) {
	ctx, span := tracer.Start(ctx, "CaptureForensicSnapshot")
	defer span.End()

	tenantID := job.TenantID
	now := r.now()

	auditLogs, err := ds.GetRecentAuditLogs(ctx, tenantID, model.ForensicAuditLogLimit)
	if err != nil {
		return nil, err
	}
	activities, err := ds.GetRecentUserActivities(ctx, tenantID, model.ForensicUserActivityLimit)
	if err != nil {
		return nil, err
	}
	state, err := ds.GetDatabaseState(ctx)
	if err != nil {
		return nil, err
	}

	data := model.ForensicData{
		AuditLogs:      auditLogs,
		UserActivities: activities,
		SystemLogs: []model.SystemLogEntry{
			{Message: "System logs captured", Timestamp: now},
		},
		DatabaseState: state,
		Timestamp:     now,
	}
	payload, hash, err := model.SealJSON(data)
	if err != nil {
		return nil, err
	}

	snapshotID := model.GenerateUUIDWithSuffix("snap")
	location := model.ForensicStorageKey(snapshotID)
	if r.evidence != nil {
		location, err = r.evidence.Put(ctx, location, payload)
		if err != nil {
			return nil, err
		}
	}

	incidentID := in.IncidentID
	if incidentID == "" {
		incidentID = job.IncidentID
	}
	snapshot := &model.ForensicSnapshot{
		SnapshotID:      snapshotID,
		TenantID:        tenantID,
		IncidentID:      incidentID,
		SnapshotType:    model.SnapshotTypeAuditTampering,
		DataHash:        hash,
		StorageLocation: location,
		IsImmutable:     true,
		CreatedAt:       now,
	}
	if err := ds.CreateForensicSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	result := model.NewAgentResult(model.JobForensicSnapshot)
	result.Actions = append(result.Actions,
		fmt.Sprintf("Created forensic snapshot: %s", snapshotID),
		fmt.Sprintf("Captured %d audit log entries", len(auditLogs)),
		fmt.Sprintf("Captured %d user activities", len(activities)),
		"Generated cryptographic hash for integrity",
	)

	if in.ActorID != "" {
		if err := ds.SuspendUser(ctx, tenantID, in.ActorID, model.UserSuspensionReason); err != nil {
			return nil, err
		}
		result.Actions = append(result.Actions, fmt.Sprintf("Suspended user account: %s", in.ActorID))
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"snapshot_id": snapshotID,
		"location":    location,
	}).Info("forensic snapshot sealed")

	result.Recommendations = []string{
		"Engage external forensic investigators",
		"Review all user permissions and access controls",
		"Implement additional audit trail protections",
		"Consider law enforcement notification if criminal activity suspected",
	}
	result.NextSteps = []string{
		"Security team to analyze forensic data",
		"Interview relevant personnel",
		"Strengthen audit controls",
	}
	result.Evidence = map[string]interface{}{
		"snapshotId":      snapshotID,
		"dataHash":        hash,
		"storageLocation": location,
		"auditLogsCount":  len(auditLogs),
		"activitiesCount": len(activities),
	}
	return result, nil
}
