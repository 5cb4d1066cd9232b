/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// server
	serverPrefix      = "server."
	serverPort        = serverPrefix + "port"
	serverDrainSecond = serverPrefix + "drain_second"

	// health_check
	healthCheckPrefix = "health_check."
	healthCheckEnable = healthCheckPrefix + "enable"
	healthCheckPort   = healthCheckPrefix + "port"

	// db
	dbPrefix               = "db."
	dbEnable               = dbPrefix + "enable"
	dbSecretPath           = dbPrefix + "secret_path"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetime          = dbPrefix + "max_lifetime_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"

	// redis
	redisPrefix     = "redis."
	redisAddress    = redisPrefix + "address"
	redisSecretPath = redisPrefix + "secret_path"
	redisDatabase   = redisPrefix + "database"

	// queue
	queuePrefix               = "queue."
	queueDequeueTimeoutSecond = queuePrefix + "dequeue_timeout_second"

	// stream
	streamPrefix              = "stream."
	streamReaperTimeoutSecond = streamPrefix + "reaper_timeout_second"
	streamLivenessTTLSecond   = streamPrefix + "liveness_ttl_second"

	// workflow
	workflowPrefix              = "workflow."
	workflowOrgConcurrencyLimit = workflowPrefix + "org_concurrency_limit"
	workflowPollIntervalSecond  = workflowPrefix + "poll_interval_second"

	// execution
	executionPrefix          = "execution."
	executionWaitGraceSecond = executionPrefix + "wait_grace_second"
)
