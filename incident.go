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
	"encoding/json"
	"fmt"

	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/internal/notification"
	"github.com/dogan-ai/redflags/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ActivateIncidentMode contains a detected red flag. The freeze, the sealed evidence, the
// incident row and its remediation job are written in one transaction. The job is then handed
// to the workers, the configured recipients are alerted and an incident.activated event is sent.
func (r *RedFlags) ActivateIncidentMode(ctx context.Context, ic model.IncidentContext) (*model.IncidentResponse, error) {
	ctx, span := tracer.Start(ctx, "ActivateIncidentMode")
	defer span.End()

	if err := ic.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	jobType, ok := model.JobTypeForFlag(ic.FlagType)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown flag type: %s", ic.FlagType), nil)
	}
	if ic.DetectedAt.IsZero() {
		ic.DetectedAt = r.now()
	}
	span.SetAttributes(
		attribute.String("tenant.id", ic.TenantID),
		attribute.String("incident.flag", string(ic.FlagType)),
		attribute.String("incident.severity", string(ic.Severity)),
	)

	input, err := json.Marshal(ic)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode incident context", err)
	}

	incident := &model.Incident{
		IncidentID: model.GenerateUUIDWithSuffix("inc"),
		TenantID:   ic.TenantID,
		FlagType:   ic.FlagType,
		Severity:   ic.Severity,
		EntityID:   ic.EntityID,
		EntityType: ic.EntityType,
		DetectedAt: ic.DetectedAt,
		Status:     model.IncidentActive,
		CreatedAt:  r.now(),
	}
	job := &model.AgentJob{
		JobID:      model.GenerateUUIDWithSuffix("job"),
		JobType:    jobType,
		TenantID:   ic.TenantID,
		IncidentID: incident.IncidentID,
		Priority:   ic.JobPriority(),
		InputData:  input,
		Status:     model.JobQueued,
		CreatedAt:  r.now(),
	}

	err = r.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		if err := r.freezeHighRiskOperations(ctx, ds, ic); err != nil {
			return err
		}

		snapshot, err := r.captureIncidentEvidence(ctx, ds, ic)
		if err != nil {
			return err
		}
		incident.EvidenceSnapshotID = snapshot.SnapshotID

		if err := ds.CreateIncident(ctx, incident); err != nil {
			return err
		}
		return ds.CreateAgentJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"incident_id": incident.IncidentID,
		"tenant_id":   ic.TenantID,
		"flag_type":   ic.FlagType,
		"severity":    ic.Severity,
		"job_id":      job.JobID,
	}).Warn("incident mode activated")

	if err := r.enqueue(ctx, job); err != nil {
		// the job row exists and can be retried from the API
		logrus.WithError(err).WithField("job_id", job.JobID).Error("failed to hand incident job to workers")
	}

	response := &model.IncidentResponse{
		IncidentID:         incident.IncidentID,
		JobID:              job.JobID,
		ContainmentActions: model.ContainmentActionsFor(ic.FlagType),
		NotificationsSent:  r.notifyIncident(ctx, incident),
		EvidenceSnapshot:   incident.EvidenceSnapshotID,
		NextSteps:          model.NextStepsFor(ic.FlagType),
	}

	r.publish(ctx, Webhook{Event: EventIncidentActivated, Payload: response})
	return response, nil
}

// freezeHighRiskOperations applies the containment for the flag before anything else is recorded.
func (r *RedFlags) freezeHighRiskOperations(ctx context.Context, ds database.IDataSource, ic model.IncidentContext) error {
	switch ic.FlagType {
	case model.FlagAccountingUnbalanced:
		return ds.FreezePosting(ctx, ic.TenantID, model.UnbalancedGLFreezeReason, ic.EntityID)
	case model.FlagDuplicateTransaction:
		return ds.FlagPaymentDuplicate(ctx, ic.TenantID, ic.EntityID, model.DuplicateFlagReason)
	case model.FlagSanctionedEntity:
		frozen, err := ds.FreezeCounterparty(ctx, ic.TenantID, ic.EntityID, model.SanctionsIncidentFreezeReason)
		if err == nil && !frozen {
			logrus.WithFields(logrus.Fields{"tenant_id": ic.TenantID, "counterparty_id": ic.EntityID}).Warn("sanctioned counterparty not found, nothing frozen")
		}
		return err
	case model.FlagAuditTampered:
		if ic.ActorID == "" {
			logrus.WithField("tenant_id", ic.TenantID).Warn("audit tampering reported without an actor, no write access revoked")
			return nil
		}
		return ds.RevokeWriteAccess(ctx, ic.TenantID, ic.ActorID, model.WriteAccessRevokedReason)
	case model.FlagLargeUnexplained:
		return ds.HoldPayment(ctx, ic.TenantID, ic.EntityID, model.LargeUnexplainedHoldReason)
	case model.FlagRapidSuccession:
		return ds.FlagAccountForReview(ctx, ic.TenantID, ic.EntityID, model.RapidSuccessionReviewReason)
	}
	return nil
}

func (r *RedFlags) captureIncidentEvidence(ctx context.Context, ds database.IDataSource, ic model.IncidentContext) (*model.EvidenceSnapshot, error) {
	now := r.now()
	since := now.Add(-model.EvidenceLookback)

	state, err := r.incidentDatabaseState(ctx, ds, ic)
	if err != nil {
		return nil, err
	}
	logs, err := ds.GetEntityAuditLogs(ctx, ic.TenantID, ic.EntityID, since, model.EvidenceAuditLogLimit)
	if err != nil {
		return nil, err
	}
	actions, err := ds.GetEntityUserActivities(ctx, ic.TenantID, ic.EntityID, since, model.EvidenceUserActionLimit)
	if err != nil {
		return nil, err
	}

	data, hash, err := model.SealJSON(model.IncidentEvidence{
		Context:       ic,
		Timestamp:     now,
		DatabaseState: state,
		SystemLogs:    logs,
		UserActions:   actions,
	})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to seal incident evidence", err)
	}

	snapshot := &model.EvidenceSnapshot{
		SnapshotID:   model.GenerateUUIDWithSuffix("evidence"),
		IncidentType: ic.FlagType,
		TenantID:     ic.TenantID,
		EntityID:     ic.EntityID,
		EvidenceData: data,
		EvidenceHash: hash,
		IsImmutable:  true,
		CreatedAt:    now,
	}
	if err := ds.CreateEvidenceSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// incidentDatabaseState captures the rows the flag is about.
func (r *RedFlags) incidentDatabaseState(ctx context.Context, ds database.IDataSource, ic model.IncidentContext) (interface{}, error) {
	switch ic.FlagType {
	case model.FlagAccountingUnbalanced:
		return ds.GetJournalEntries(ctx, ic.TenantID, ic.EntityID)
	case model.FlagDuplicateTransaction:
		return ds.GetPaymentsByReference(ctx, ic.TenantID, ic.EntityID)
	default:
		return map[string]string{"message": fmt.Sprintf("Generic data capture for %s", ic.FlagType)}, nil
	}
}

// notifyIncident alerts the recipients configured for the incident's flag and severity. Slack and
// SMS are reserved for critical incidents. A failed channel is logged and left out of the result.
func (r *RedFlags) notifyIncident(ctx context.Context, incident *model.Incident) []string {
	sent := []string{}
	if r.notifier == nil {
		return sent
	}

	logger := logrus.WithField("incident_id", incident.IncidentID)
	rules, err := r.datasource.GetNotificationRules(ctx, incident.TenantID, incident.FlagType, incident.Severity)
	if err != nil {
		logger.WithError(err).Error("failed to load notification rules")
		return sent
	}

	alert := notification.IncidentAlert{
		IncidentID: incident.IncidentID,
		TenantID:   incident.TenantID,
		FlagType:   string(incident.FlagType),
		Severity:   string(incident.Severity),
		EntityType: incident.EntityType,
		EntityID:   incident.EntityID,
		DetectedAt: incident.DetectedAt,
	}
	critical := incident.Severity == model.PriorityCritical

	if critical {
		if err := r.notifier.SlackAlert(ctx, alert, model.Recipients(rules, model.NotifySlack)); err != nil {
			logger.WithError(err).Error("slack incident alert failed")
		} else {
			sent = append(sent, "Slack alert sent")
		}
	}

	if err := r.notifier.EmailAlert(ctx, alert, model.Recipients(rules, model.NotifyEmail)); err != nil {
		logger.WithError(err).Error("email incident alert failed")
	} else {
		sent = append(sent, "Email alerts sent")
	}

	if critical {
		if err := r.notifier.SMSAlert(ctx, alert, model.Recipients(rules, model.NotifySMS)); err != nil {
			logger.WithError(err).Error("sms incident alert failed")
		} else {
			sent = append(sent, "SMS alerts sent")
		}
	}
	return sent
}

// GetIncidentStatus returns the incident with every agent job it triggered.
func (r *RedFlags) GetIncidentStatus(ctx context.Context, tenantID, incidentID string) (*model.IncidentStatusReport, error) {
	ctx, span := tracer.Start(ctx, "GetIncidentStatus")
	defer span.End()

	incident, err := r.datasource.GetIncident(ctx, tenantID, incidentID)
	if err != nil {
		return nil, err
	}
	jobs, err := r.datasource.GetAgentJobsByIncident(ctx, tenantID, incidentID)
	if err != nil {
		return nil, err
	}
	return &model.IncidentStatusReport{Incident: incident, Jobs: jobs}, nil
}

// ResolveIncident closes an active incident. Freezes raised by the incident are left to the agents
// and to the operators.
func (r *RedFlags) ResolveIncident(ctx context.Context, tenantID, incidentID, resolvedBy, notes string) (*model.Incident, error) {
	ctx, span := tracer.Start(ctx, "ResolveIncident")
	defer span.End()

	if resolvedBy == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "resolved_by is required", nil)
	}

	incident, err := r.datasource.GetIncident(ctx, tenantID, incidentID)
	if err != nil {
		return nil, err
	}

	resolvedAt := r.now()
	incident.ResolvedBy = resolvedBy
	incident.ResolutionNotes = notes
	incident.ResolvedAt = &resolvedAt
	if err := r.datasource.ResolveIncident(ctx, incident); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"incident_id": incidentID, "resolved_by": resolvedBy}).Info("incident resolved")
	r.publish(ctx, Webhook{Event: EventIncidentResolved, Payload: incident})
	return incident, nil
}
