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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func validateDateFormat(format, value string) error {
	_, err := time.Parse(format, value)
	if err != nil {
		return errors.New("please format the detection date as 'YYYY-MM-DDTHH:MM:SS+00:00' (e.g., 2024-04-22T15:28:03+00:00)")
	}
	return nil
}

func (j *CreateAgentJob) ValidateCreateAgentJob() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.TenantID, validation.Required),
		validation.Field(&j.JobType, validation.Required),
		validation.Field(&j.Priority, validation.In("low", "medium", "high", "critical")),
	)
}

func (i *ActivateIncident) ValidateActivateIncident() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.TenantID, validation.Required),
		validation.Field(&i.FlagType, validation.Required),
		validation.Field(&i.Severity, validation.Required, validation.In("low", "medium", "high", "critical")),
		validation.Field(&i.EntityID, validation.Required),
		validation.Field(&i.EntityType, validation.Required),
		validation.Field(&i.DetectedAt, validation.By(func(value interface{}) error {
			detectedAt, _ := value.(string)
			if detectedAt == "" {
				return nil
			}
			return validateDateFormat(time.RFC3339, detectedAt)
		})),
	)
}

func (r *ResolveIncident) ValidateResolveIncident() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.ResolvedBy, validation.Required),
	)
}
