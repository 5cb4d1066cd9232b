/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

func SetValue(key, value string) {
	viper.Set(key, value)
}

func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFromFile(configPath, item string) string {
	path := getString(configPath, "")
	data, err := os.ReadFile(filepath.Join(path, item))
	if err != nil {
		return ""
	}
	key := string(data)
	return strings.TrimRight(key, "\r\n")
}

func GetServerPort() int {
	return getInt(serverPort, 8080)
}

func GetServerDrainSecond() int {
	return getInt(serverDrainSecond, 10)
}

func IsHealthCheckEnabled() bool {
	return getBool(healthCheckEnable, true)
}

func GetHealthCheckPort() int {
	return getInt(healthCheckPort, 0)
}

func IsDBEnable() bool {
	return getBool(dbEnable, false)
}

func GetDBHost() string {
	return getFromFile(dbSecretPath, "host")
}

func GetDBPort() int {
	data := getFromFile(dbSecretPath, "port")
	n, err := strconv.Atoi(data)
	if err != nil {
		return 0
	}
	return n
}

func GetDBName() string {
	return getFromFile(dbSecretPath, "dbname")
}

func GetDBUser() string {
	return getFromFile(dbSecretPath, "user")
}

func GetDBPassword() string {
	return getFromFile(dbSecretPath, "password")
}

func GetDBSslMode() string {
	return getString(dbSslMode, "require")
}

func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

func GetRedisAddress() string {
	return getString(redisAddress, "localhost:6379")
}

func GetRedisPassword() string {
	return getFromFile(redisSecretPath, "password")
}

func GetRedisDatabase() int {
	return getInt(redisDatabase, 0)
}

func GetQueueDequeueTimeoutSecond() int {
	return getInt(queueDequeueTimeoutSecond, 5)
}

func GetStreamReaperTimeoutSecond() int {
	return getInt(streamReaperTimeoutSecond, 120)
}

func GetStreamLivenessTTLSecond() int {
	return getInt(streamLivenessTTLSecond, 60)
}

func GetWorkflowOrgConcurrencyLimit() int {
	return getInt(workflowOrgConcurrencyLimit, 100)
}

func GetWorkflowPollIntervalSecond() int {
	return getInt(workflowPollIntervalSecond, 1)
}

func GetExecutionWaitGraceSecond() int {
	return getInt(executionWaitGraceSecond, 60)
}
