/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"gotest.tools/assert"
)

func TestInsertApiKeyNilInput(t *testing.T) {
	client := &Client{}

	err := client.InsertApiKey(context.Background(), nil)
	assert.ErrorContains(t, err, "the input is empty")
}

func TestInsertApiKeyNoDBConnection(t *testing.T) {
	client := &Client{} // No database connection

	apiKey := &ApiKey{
		KeyId:          "key-123",
		OrganizationId: "org-123",
		Name:           "ci-key",
	}

	err := client.InsertApiKey(context.Background(), apiKey)
	assert.ErrorContains(t, err, "db has not been initialized")
}

func TestSelectApiKeysByPrefixEmptyPrefix(t *testing.T) {
	client := &Client{}

	_, err := client.SelectApiKeysByPrefix(context.Background(), "")
	assert.ErrorContains(t, err, "api key is empty")
}

func TestSelectApiKeysByPrefixNoDBConnection(t *testing.T) {
	client := &Client{} // No database connection

	_, err := client.SelectApiKeysByPrefix(context.Background(), "sk_abcde")
	assert.ErrorContains(t, err, "db has not been initialized")
}

func TestSelectApiKeysNoDBConnection(t *testing.T) {
	client := &Client{} // No database connection

	query := sqrl.Eq{"organization_id": "org-123"}
	_, err := client.SelectApiKeys(context.Background(), query, []string{"id"}, 10, 0)
	assert.ErrorContains(t, err, "db has not been initialized")
}

func TestRevokeApiKeyEmptyInput(t *testing.T) {
	client := &Client{}

	err := client.RevokeApiKey(context.Background(), "")
	assert.ErrorContains(t, err, "the input is empty")
}

func TestDeleteExpiredRevokedApiKeysNoDBConnection(t *testing.T) {
	client := &Client{} // No database connection

	err := client.DeleteExpiredRevokedApiKeys(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db has not been initialized")
}

func TestTApiKeyConstant(t *testing.T) {
	assert.Equal(t, TApiKey, "api_keys")
}
