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

// Fixed confidence reported by each handler.
const (
	ConfidenceRepairUnbalanced      = 0.95
	ConfidenceDedupReview           = 0.90
	ConfidenceTransactionOutliers   = 0.90
	ConfidenceComplianceCaseOpen    = 0.95
	ConfidenceForensicSnapshot      = 0.98
	ConfidenceSupportingDocsRequest = 0.92
	ConfidenceAMLAlertTriage        = 0.88
)

var HandlerConfidence = map[JobType]float64{
	JobRepairUnbalanced:      ConfidenceRepairUnbalanced,
	JobDedupReview:           ConfidenceDedupReview,
	JobTransactionOutliers:   ConfidenceTransactionOutliers,
	JobComplianceCaseOpen:    ConfidenceComplianceCaseOpen,
	JobForensicSnapshot:      ConfidenceForensicSnapshot,
	JobSupportingDocsRequest: ConfidenceSupportingDocsRequest,
	JobAMLAlertTriage:        ConfidenceAMLAlertTriage,
}

// AgentResult is the uniform outcome of a handler run. It is persisted on the job row.
type AgentResult struct {
	Success         bool                   `json:"success"`
	Actions         []string               `json:"actions"`
	Recommendations []string               `json:"recommendations"`
	NextSteps       []string               `json:"next_steps"`
	Evidence        map[string]interface{} `json:"evidence,omitempty"`
	Confidence      float64                `json:"confidence"`
}

// NewAgentResult returns a successful result carrying the handler's configured confidence.
func NewAgentResult(jobType JobType) *AgentResult {
	return &AgentResult{
		Success:         true,
		Actions:         []string{},
		Recommendations: []string{},
		NextSteps:       []string{},
		Evidence:        map[string]interface{}{},
		Confidence:      HandlerConfidence[jobType],
	}
}
