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
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FlagType names the kind of red flag that opened an incident.
type FlagType string

const (
	FlagAccountingUnbalanced FlagType = "accounting_unbalanced"
	FlagDuplicateTransaction FlagType = "duplicate_transaction"
	FlagSanctionedEntity     FlagType = "sanctioned_entity"
	FlagAuditTampered        FlagType = "audit_tampered"
	FlagLargeUnexplained     FlagType = "large_unexplained"
	FlagRapidSuccession      FlagType = "rapid_succession"
)

// flagJobTypes maps each flag to the agent that remediates it.
var flagJobTypes = map[FlagType]JobType{
	FlagAccountingUnbalanced: JobRepairUnbalanced,
	FlagDuplicateTransaction: JobDedupReview,
	FlagSanctionedEntity:     JobComplianceCaseOpen,
	FlagAuditTampered:        JobForensicSnapshot,
	FlagLargeUnexplained:     JobSupportingDocsRequest,
	FlagRapidSuccession:      JobAMLAlertTriage,
}

func JobTypeForFlag(flag FlagType) (JobType, bool) {
	jobType, ok := flagJobTypes[flag]
	return jobType, ok
}

var containmentActions = map[FlagType][]string{
	FlagAccountingUnbalanced: {
		"GL posting disabled for affected batch",
		"Imbalances moved to Suspense account",
		"Finance team notified for manual review",
	},
	FlagDuplicateTransaction: {
		"Duplicate transactions flagged as suspect",
		"Settlement/payment processing halted",
		"Deduplication agent activated",
	},
	FlagSanctionedEntity: {
		"Entity relationship frozen immediately",
		"All payments/transfers blocked",
		"Compliance case opened automatically",
	},
	FlagAuditTampered: {
		"Write permissions revoked for affected accounts",
		"Forensic snapshot captured",
		"Security team alerted",
	},
	FlagLargeUnexplained: {
		"Transaction placed on hold",
		"Supporting documentation requested",
		"4-eyes approval required",
	},
	FlagRapidSuccession: {
		"Account flagged for manual review",
		"Velocity limits temporarily reduced",
		"AML alert generated",
	},
}

var incidentNextSteps = map[FlagType][]string{
	FlagAccountingUnbalanced: {
		"Review and correct unbalanced entries",
		"Investigate root cause of imbalance",
		"Update GL posting controls",
	},
	FlagDuplicateTransaction: {
		"Manual review of flagged transactions",
		"Reverse confirmed duplicates",
		"Strengthen deduplication controls",
	},
	FlagSanctionedEntity: {
		"Complete enhanced due diligence",
		"File SAR/UAR if required",
		"Review historical transactions",
	},
	FlagAuditTampered: {
		"Forensic investigation of audit trail",
		"Review user access and permissions",
		"Strengthen audit controls",
	},
	FlagLargeUnexplained: {
		"Collect supporting documentation",
		"Business justification review",
		"Approve or reverse transaction",
	},
	FlagRapidSuccession: {
		"Investigate transaction patterns",
		"Customer interview if needed",
		"Adjust velocity controls",
	},
}

func ContainmentActionsFor(flag FlagType) []string {
	if actions, ok := containmentActions[flag]; ok {
		return actions
	}
	return []string{"Standard containment procedures applied"}
}

func NextStepsFor(flag FlagType) []string {
	if steps, ok := incidentNextSteps[flag]; ok {
		return steps
	}
	return []string{"Follow standard incident response procedures"}
}

const (
	IncidentActive   = "active"
	IncidentResolved = "resolved"

	RapidSuccessionReviewReason = "Rapid transaction succession detected"
)

// IncidentContext describes a detected red flag. Its JSON form is also the input of the
// agent job an incident triggers, which is why the keys match the agent inputs.
type IncidentContext struct {
	TenantID   string                 `json:"tenantId"`
	FlagType   FlagType               `json:"flagType"`
	Severity   Priority               `json:"severity"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	DetectedAt time.Time              `json:"detectedAt"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
	ActorID    string                 `json:"actorId,omitempty"`
}

func (ic IncidentContext) Validate() error {
	return validation.ValidateStruct(&ic,
		validation.Field(&ic.TenantID, validation.Required),
		validation.Field(&ic.FlagType, validation.Required),
		validation.Field(&ic.Severity, validation.Required, validation.In(PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical)),
		validation.Field(&ic.EntityID, validation.Required),
		validation.Field(&ic.EntityType, validation.Required),
	)
}

// JobPriority is the priority of the agent job triggered for this incident.
func (ic IncidentContext) JobPriority() Priority {
	if ic.Severity == PriorityCritical {
		return PriorityHigh
	}
	return PriorityMedium
}

type Incident struct {
	IncidentID         string     `json:"incident_id"`
	TenantID           string     `json:"tenant_id"`
	FlagType           FlagType   `json:"flag_type"`
	Severity           Priority   `json:"severity"`
	EntityID           string     `json:"entity_id"`
	EntityType         string     `json:"entity_type"`
	DetectedAt         time.Time  `json:"detected_at"`
	EvidenceSnapshotID string     `json:"evidence_snapshot_id"`
	Status             string     `json:"status"`
	ResolvedBy         string     `json:"resolved_by,omitempty"`
	ResolutionNotes    string     `json:"resolution_notes,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IncidentEvidence is the payload sealed into an evidence snapshot when an incident opens.
type IncidentEvidence struct {
	Context       IncidentContext `json:"context"`
	Timestamp     time.Time       `json:"timestamp"`
	DatabaseState interface{}     `json:"database_state"`
	SystemLogs    []AuditLog      `json:"system_logs"`
	UserActions   []UserActivity  `json:"user_actions"`
}

type EvidenceSnapshot struct {
	SnapshotID   string          `json:"snapshot_id"`
	IncidentType FlagType        `json:"incident_type"`
	TenantID     string          `json:"tenant_id"`
	EntityID     string          `json:"entity_id"`
	EvidenceData json.RawMessage `json:"evidence_data"`
	EvidenceHash string          `json:"evidence_hash"`
	IsImmutable  bool            `json:"is_immutable"`
	CreatedAt    time.Time       `json:"created_at"`
}

const (
	NotifySlack = "slack"
	NotifyEmail = "email"
	NotifySMS   = "sms"
)

// NotificationRule lists who hears about a flag at a given severity on one channel.
type NotificationRule struct {
	TenantID         string   `json:"tenant_id"`
	FlagType         FlagType `json:"flag_type"`
	Severity         Priority `json:"severity"`
	NotificationType string   `json:"notification_type"`
	Recipients       []string `json:"recipient_list"`
}

// Recipients returns the recipient list of the first rule for the channel.
func Recipients(rules []NotificationRule, channel string) []string {
	for _, rule := range rules {
		if rule.NotificationType == channel {
			return rule.Recipients
		}
	}
	return []string{}
}

type IncidentResponse struct {
	IncidentID         string   `json:"incident_id"`
	JobID              string   `json:"job_id,omitempty"`
	ContainmentActions []string `json:"containment_actions"`
	NotificationsSent  []string `json:"notifications_sent"`
	EvidenceSnapshot   string   `json:"evidence_snapshot"`
	NextSteps          []string `json:"next_steps"`
}

type IncidentStatusReport struct {
	Incident *Incident  `json:"incident"`
	Jobs     []AgentJob `json:"jobs"`
}

// Evidence captured when an incident opens looks back EvidenceLookback.
const (
	EvidenceLookback        = 24 * time.Hour
	EvidenceAuditLogLimit   = 100
	EvidenceUserActionLimit = 50
)
