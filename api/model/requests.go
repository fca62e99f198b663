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

	"github.com/dogan-ai/redflags/model"
)

type CreateAgentJob struct {
	TenantID   string          `json:"tenant_id"`
	JobType    string          `json:"job_type"`
	Priority   string          `json:"priority"`
	IncidentID string          `json:"incident_id"`
	InputData  json.RawMessage `json:"input_data"`
}

type ActivateIncident struct {
	TenantID   string                 `json:"tenant_id"`
	FlagType   string                 `json:"flag_type"`
	Severity   string                 `json:"severity"`
	EntityID   string                 `json:"entity_id"`
	EntityType string                 `json:"entity_type"`
	DetectedAt string                 `json:"detected_at"`
	ActorID    string                 `json:"actor_id"`
	Evidence   map[string]interface{} `json:"evidence"`
}

type ResolveIncident struct {
	TenantID   string `json:"tenant_id"`
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"resolution_notes"`
}

type AgentJobResponse struct {
	Job    *model.AgentJob    `json:"job"`
	Result *model.AgentResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func (j *CreateAgentJob) ToAgentJob() *model.AgentJob {
	return &model.AgentJob{
		TenantID:   j.TenantID,
		JobType:    model.JobType(j.JobType),
		Priority:   model.Priority(j.Priority),
		IncidentID: j.IncidentID,
		InputData:  j.InputData,
	}
}

// ToIncidentContext assumes ValidateActivateIncident passed. An empty detected_at is left zero
// and stamped when the incident opens.
func (i *ActivateIncident) ToIncidentContext() model.IncidentContext {
	var detectedAt time.Time
	if i.DetectedAt != "" {
		detectedAt, _ = time.Parse(time.RFC3339, i.DetectedAt)
	}
	return model.IncidentContext{
		TenantID:   i.TenantID,
		FlagType:   model.FlagType(i.FlagType),
		Severity:   model.Priority(i.Severity),
		EntityID:   i.EntityID,
		EntityType: i.EntityType,
		DetectedAt: detectedAt,
		Evidence:   i.Evidence,
		ActorID:    i.ActorID,
	}
}
