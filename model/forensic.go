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
	"fmt"
	"time"
)

const (
	SnapshotTypeAuditTampering = "audit_tampering"
	ForensicAuditLogLimit      = 1000
	ForensicUserActivityLimit  = 500
	ForensicLookback           = 24 * time.Hour

	UserSuspensionReason     = "Audit trail tampering investigation"
	WriteAccessRevokedReason = "Audit trail tampering detected"
)

// ForensicStorageKey is where the sealed snapshot payload is kept.
func ForensicStorageKey(snapshotID string) string {
	return fmt.Sprintf("forensic/%s.json", snapshotID)
}

type AuditLog struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserActivity struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	EntityID  string    `json:"entity_id,omitempty"`
	Activity  string    `json:"activity"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SystemLogEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type TableStat struct {
	SchemaName string `json:"schemaname"`
	TableName  string `json:"tablename"`
	Inserts    int64  `json:"n_tup_ins"`
	Updates    int64  `json:"n_tup_upd"`
	Deletes    int64  `json:"n_tup_del"`
}

// DatabaseState is a coarse picture of write churn and load at capture time.
type DatabaseState struct {
	TableStats        []TableStat `json:"table_stats"`
	ActiveConnections int64       `json:"active_connections"`
}

// ForensicData is the payload sealed into a forensic snapshot.
type ForensicData struct {
	AuditLogs      []AuditLog       `json:"audit_logs"`
	UserActivities []UserActivity   `json:"user_activities"`
	SystemLogs     []SystemLogEntry `json:"system_logs"`
	DatabaseState  DatabaseState    `json:"database_state"`
	Timestamp      time.Time        `json:"timestamp"`
}

type ForensicSnapshot struct {
	SnapshotID      string    `json:"snapshot_id"`
	TenantID        string    `json:"tenant_id"`
	IncidentID      string    `json:"incident_id,omitempty"`
	SnapshotType    string    `json:"snapshot_type"`
	DataHash        string    `json:"data_hash"`
	StorageLocation string    `json:"storage_location"`
	IsImmutable     bool      `json:"is_immutable"`
	CreatedAt       time.Time `json:"created_at"`
}
