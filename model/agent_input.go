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
	"errors"
	"fmt"
	"time"

	"github.com/dogan-ai/redflags/internal/apierror"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// AgentInput is the typed payload of an agent job. Each job type has exactly one input type,
// and only types declared in this package satisfy the interface.
type AgentInput interface {
	JobType() JobType
	Validate() error
	agentInput()
}

// UnknownJobTypeError is returned when a job names a type the dispatcher has no handler for.
type UnknownJobTypeError struct {
	Type JobType
}

func (e UnknownJobTypeError) Error() string {
	return fmt.Sprintf("Unknown agent job type: %s", e.Type)
}

// Unwrap exposes the error as INVALID_INPUT so callers can match on the code while the text stays
// exactly the message above.
func (e UnknownJobTypeError) Unwrap() error {
	return apierror.APIError{Code: apierror.ErrInvalidInput, Message: e.Error()}
}

// RepairUnbalancedInput targets one journal.
type RepairUnbalancedInput struct {
	EntityID string `json:"entityId"`
}

// DedupReviewInput targets one payment.
type DedupReviewInput struct {
	EntityID string `json:"entityId"`
}

// TransactionOutliersInput parameterizes the read-only outlier scans.
type TransactionOutliersInput struct {
	Threshold  decimal.Decimal `json:"threshold"`
	WindowDays int             `json:"windowDays"`
}

// ComplianceCaseInput targets a counterparty flagged by sanctions screening.
type ComplianceCaseInput struct {
	EntityID   string                 `json:"entityId"`
	FlagType   string                 `json:"flagType,omitempty"`
	DetectedAt *time.Time             `json:"detectedAt,omitempty"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
}

// ForensicSnapshotInput optionally names the actor to suspend.
type ForensicSnapshotInput struct {
	IncidentID string `json:"incidentId,omitempty"`
	ActorID    string `json:"actorId,omitempty"`
}

// SupportingDocsInput targets one payment.
type SupportingDocsInput struct {
	EntityID string `json:"entityId"`
}

// AMLTriageInput targets one account.
type AMLTriageInput struct {
	EntityID string `json:"entityId"`
}

func (RepairUnbalancedInput) JobType() JobType    { return JobRepairUnbalanced }
func (DedupReviewInput) JobType() JobType         { return JobDedupReview }
func (TransactionOutliersInput) JobType() JobType { return JobTransactionOutliers }
func (ComplianceCaseInput) JobType() JobType      { return JobComplianceCaseOpen }
func (ForensicSnapshotInput) JobType() JobType    { return JobForensicSnapshot }
func (SupportingDocsInput) JobType() JobType      { return JobSupportingDocsRequest }
func (AMLTriageInput) JobType() JobType           { return JobAMLAlertTriage }

func (RepairUnbalancedInput) agentInput()    {}
func (DedupReviewInput) agentInput()         {}
func (TransactionOutliersInput) agentInput() {}
func (ComplianceCaseInput) agentInput()      {}
func (ForensicSnapshotInput) agentInput()    {}
func (SupportingDocsInput) agentInput()      {}
func (AMLTriageInput) agentInput()           {}

func (in RepairUnbalancedInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.EntityID, validation.Required.Error("journal id (entityId) is required")),
	)
}

func (in DedupReviewInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.EntityID, validation.Required.Error("payment id (entityId) is required")),
	)
}

func (in TransactionOutliersInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Threshold, validation.By(func(value interface{}) error {
			if threshold, ok := value.(decimal.Decimal); ok && threshold.IsNegative() {
				return errors.New("threshold cannot be negative")
			}
			return nil
		})),
		validation.Field(&in.WindowDays, validation.Min(0)),
	)
}

func (in ComplianceCaseInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.EntityID, validation.Required.Error("counterparty id (entityId) is required")),
	)
}

func (in ForensicSnapshotInput) Validate() error {
	return nil
}

func (in SupportingDocsInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.EntityID, validation.Required.Error("payment id (entityId) is required")),
	)
}

func (in AMLTriageInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.EntityID, validation.Required.Error("account id (entityId) is required")),
	)
}

// WithDefaults fills in the scan parameters a caller left unset.
func (in TransactionOutliersInput) WithDefaults() TransactionOutliersInput {
	if in.Threshold.IsZero() {
		in.Threshold = DefaultOutlierThreshold
	}
	if in.WindowDays == 0 {
		in.WindowDays = DefaultOutlierWindowDays
	}
	return in
}

// ScreeningConfidence is the screening provider's confidence, or 0.8 when none was supplied.
func (in ComplianceCaseInput) ScreeningConfidence() float64 {
	if score, ok := in.Evidence["confidence_score"].(float64); ok && score != 0 {
		return score
	}
	return 0.8
}

// DecodeAgentInput parses and validates the raw input of a job of the given type.
func DecodeAgentInput(jobType JobType, raw json.RawMessage) (AgentInput, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var input AgentInput
	var err error
	switch jobType {
	case JobRepairUnbalanced:
		input, err = decodeInput[RepairUnbalancedInput](raw)
	case JobDedupReview:
		input, err = decodeInput[DedupReviewInput](raw)
	case JobTransactionOutliers:
		input, err = decodeInput[TransactionOutliersInput](raw)
	case JobComplianceCaseOpen:
		input, err = decodeInput[ComplianceCaseInput](raw)
	case JobForensicSnapshot:
		input, err = decodeInput[ForensicSnapshotInput](raw)
	case JobSupportingDocsRequest:
		input, err = decodeInput[SupportingDocsInput](raw)
	case JobAMLAlertTriage:
		input, err = decodeInput[AMLTriageInput](raw)
	default:
		return nil, UnknownJobTypeError{Type: jobType}
	}
	if err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input for %s: %w", jobType, err)
	}
	return input, nil
}

func decodeInput[T AgentInput](raw json.RawMessage) (AgentInput, error) {
	var in T
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed input data: %w", err)
	}
	return in, nil
}
