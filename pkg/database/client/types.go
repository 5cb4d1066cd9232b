/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

const (
	DESC = "desc"
	ASC  = "asc"

	CreatedAt = "created_at"
)

// Table names.
const (
	TOrganization       = "organizations"
	TApiKey             = "api_keys"
	TCluster            = "clusters"
	TAgent              = "agents"
	TAgentClusterStatus = "agent_cluster_status"
	TExecution          = "executions"
	TAuditLog           = "audit_logs"
)

type Organization struct {
	Id        int64       `db:"id"`
	OrgId     string      `db:"org_id"`
	Name      string      `db:"name"`
	CreatedAt pq.NullTime `db:"created_at"`
}

// GetOrganizationFieldTags returns the OrganizationFieldTags value.
func GetOrganizationFieldTags() map[string]string {
	o := Organization{}
	return getFieldTags(o)
}

type ApiKey struct {
	Id             int64          `db:"id"`
	KeyId          string         `db:"key_id"`
	OrganizationId string         `db:"organization_id"`
	Name           string         `db:"name"`
	KeyHash        string         `db:"key_hash"`
	KeyPrefix      string         `db:"key_prefix"`
	RateLimit      int            `db:"rate_limit"`
	ExpiresAt      pq.NullTime    `db:"expires_at"`
	RevokedAt      pq.NullTime    `db:"revoked_at"`
	CreatedAt      pq.NullTime    `db:"created_at"`
	Attributes     sql.NullString `db:"attributes"`
}

// GetApiKeyFieldTags returns the ApiKeyFieldTags value.
func GetApiKeyFieldTags() map[string]string {
	k := ApiKey{}
	return getFieldTags(k)
}

type Cluster struct {
	Id             int64          `db:"id"`
	ClusterId      string         `db:"cluster_id"`
	OrganizationId string         `db:"organization_id"`
	Name           string         `db:"name"`
	Status         string         `db:"status"`
	LastHeartbeat  pq.NullTime    `db:"last_heartbeat"`
	RelayerVersion sql.NullString `db:"relayer_version"`
	SecretHash     string         `db:"secret_hash"`
	Capabilities   sql.NullString `db:"capabilities"`
	CreatedAt      pq.NullTime    `db:"created_at"`
	UpdatedAt      pq.NullTime    `db:"updated_at"`
}

// GetClusterFieldTags returns the ClusterFieldTags value.
func GetClusterFieldTags() map[string]string {
	c := Cluster{}
	return getFieldTags(c)
}

type Agent struct {
	Id                   int64          `db:"id"`
	AgentId              string         `db:"agent_id"`
	OrganizationId       string         `db:"organization_id"`
	Name                 string         `db:"name"`
	Image                string         `db:"image"`
	Resources            sql.NullString `db:"resources"`
	RetryPolicy          sql.NullString `db:"retry_policy"`
	UseAgentSandbox      bool           `db:"use_agent_sandbox"`
	WarmPoolSize         int            `db:"warm_pool_size"`
	NetworkPolicy        string         `db:"network_policy"`
	EnvironmentVariables sql.NullString `db:"environment_variables"`
	ConfigHash           string         `db:"config_hash"`
	Status               string         `db:"status"`
	RegistrationReport   sql.NullString `db:"registration_report"`
	CreatedAt            pq.NullTime    `db:"created_at"`
	UpdatedAt            pq.NullTime    `db:"updated_at"`
}

// GetAgentFieldTags returns the AgentFieldTags value.
func GetAgentFieldTags() map[string]string {
	a := Agent{}
	return getFieldTags(a)
}

type AgentClusterStatus struct {
	Id        int64          `db:"id"`
	AgentId   string         `db:"agent_id"`
	ClusterId string         `db:"cluster_id"`
	Status    string         `db:"status"`
	Error     sql.NullString `db:"error"`
	UpdatedAt pq.NullTime    `db:"updated_at"`
}

// GetAgentClusterStatusFieldTags returns the AgentClusterStatusFieldTags value.
func GetAgentClusterStatusFieldTags() map[string]string {
	s := AgentClusterStatus{}
	return getFieldTags(s)
}

type Execution struct {
	Id            int64          `db:"id"`
	ExecutionId   string         `db:"execution_id"`
	AgentId       string         `db:"agent_id"`
	ClusterId     sql.NullString `db:"cluster_id"`
	Status        string         `db:"status"`
	Input         sql.NullString `db:"input"`
	Priority      string         `db:"priority"`
	Attempt       int            `db:"attempt"`
	MaxAttempts   int            `db:"max_attempts"`
	QueuedAt      pq.NullTime    `db:"queued_at"`
	StartedAt     pq.NullTime    `db:"started_at"`
	CompletedAt   pq.NullTime    `db:"completed_at"`
	DurationMs    sql.NullInt64  `db:"duration_ms"`
	Result        sql.NullString `db:"result"`
	ResourceUsage sql.NullString `db:"resource_usage"`
	Error         sql.NullString `db:"error"`
	NextRetryAt   pq.NullTime    `db:"next_retry_at"`
	CreatedAt     pq.NullTime    `db:"created_at"`
}

// GetExecutionFieldTags returns the ExecutionFieldTags value.
func GetExecutionFieldTags() map[string]string {
	e := Execution{}
	return getFieldTags(e)
}

type AuditLog struct {
	Id             int64          `db:"id"`
	OrganizationId string         `db:"organization_id"`
	Actor          string         `db:"actor"`
	Action         string         `db:"action"`
	Resource       string         `db:"resource"`
	Detail         sql.NullString `db:"detail"`
	CreatedAt      pq.NullTime    `db:"created_at"`
}

// GetAuditLogFieldTags returns the AuditLogFieldTags value.
func GetAuditLogFieldTags() map[string]string {
	a := AuditLog{}
	return getFieldTags(a)
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates SQL command string using reflection
// Iterates through struct fields and builds column and value lists
// Skips fields with specified ignoreTag
// Returns formatted SQL command with columns and values
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}
