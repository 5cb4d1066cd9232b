/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

var (
	insertApiKeyFormat     = `INSERT INTO ` + TApiKey + ` (%s) VALUES (%s);`
	getApiKeysByPrefixCmd  = fmt.Sprintf(`SELECT * FROM %s WHERE key_prefix = $1`, TApiKey)
	revokeApiKeyCmdFormat  = `UPDATE ` + TApiKey + ` SET revoked_at = $1 WHERE key_id = $2`
	deleteExpiredKeyFormat = `DELETE FROM ` + TApiKey + ` WHERE expires_at IS NOT NULL AND expires_at < $1 AND revoked_at IS NOT NULL`
)

// InsertApiKey inserts a new API key row. Only the bcrypt hash and the
// indexable prefix reach the database.
func (c *Client) InsertApiKey(ctx context.Context, apiKey *ApiKey) error {
	if apiKey == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*apiKey, insertApiKeyFormat, "id"), apiKey)
	if err != nil {
		return fmt.Errorf("failed to insert api_key to db: %v", err)
	}
	return nil
}

// SelectApiKeysByPrefix retrieves the candidate rows sharing a key prefix.
// Revoked keys are included; the caller filters on revoked_at after the
// constant-time hash check so revoked keys remain auditable.
func (c *Client) SelectApiKeysByPrefix(ctx context.Context, prefix string) ([]*ApiKey, error) {
	if prefix == "" {
		return nil, relayerrors.NewBadRequest("api key is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var keys []*ApiKey
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &keys, getApiKeysByPrefixCmd, prefix); err != nil {
		return nil, fmt.Errorf("failed to select api_keys from db: %v", err)
	}
	return keys, nil
}

// SelectApiKeys retrieves API keys based on query conditions.
func (c *Client) SelectApiKeys(ctx context.Context, query sqrl.Sqlizer,
	orderBy []string, limit, offset int) ([]*ApiKey, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TApiKey)
	if query != nil {
		builder = builder.Where(query)
	}
	for _, order := range orderBy {
		builder = builder.OrderBy(order)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select api_keys query: %v", err)
	}
	var keys []*ApiKey
	err = db.SelectContext(ctx, &keys, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select api_keys from db: %v", err)
	}
	return keys, nil
}

// RevokeApiKey marks a key revoked. The row stays indexed for audit.
func (c *Client) RevokeApiKey(ctx context.Context, keyId string) error {
	if keyId == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, revokeApiKeyCmdFormat, time.Now().UTC(), keyId); err != nil {
		return fmt.Errorf("failed to revoke api_key: %v", err)
	}
	return nil
}

// DeleteExpiredRevokedApiKeys removes keys both expired and revoked. Called
// from the maintenance cron.
func (c *Client) DeleteExpiredRevokedApiKeys(ctx context.Context, before time.Time) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, deleteExpiredKeyFormat, before); err != nil {
		return fmt.Errorf("failed to delete expired api_keys: %v", err)
	}
	return nil
}
