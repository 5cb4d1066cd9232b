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
	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

var (
	getClusterByIdCmd = fmt.Sprintf(`SELECT * FROM %s WHERE cluster_id = $1 LIMIT 1`, TCluster)
	getClusterByName  = fmt.Sprintf(
		`SELECT * FROM %s WHERE organization_id = $1 AND name = $2 LIMIT 1`, TCluster)
	insertClusterFormat = `INSERT INTO ` + TCluster + ` (%s) VALUES (%s)`
	updateClusterCmd    = fmt.Sprintf(`UPDATE %s
		SET status = :status,
		    last_heartbeat = :last_heartbeat,
		    relayer_version = :relayer_version,
		    secret_hash = :secret_hash,
		    capabilities = :capabilities,
		    updated_at = :updated_at
		WHERE organization_id = :organization_id AND name = :name`, TCluster)
)

// UpsertCluster inserts or updates a cluster keyed by (organization_id, name).
func (c *Client) UpsertCluster(ctx context.Context, cluster *Cluster) error {
	if cluster == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	var existing []*Cluster
	if err = db.SelectContext(ctx, &existing, getClusterByName, cluster.OrganizationId, cluster.Name); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to select cluster: %v", err))
	}
	if len(existing) > 0 && existing[0] != nil {
		cluster.ClusterId = existing[0].ClusterId
		if _, err = db.NamedExecContext(ctx, updateClusterCmd, cluster); err != nil {
			klog.ErrorS(err, "failed to update cluster", "name", cluster.Name)
			return relayerrors.NewTransient(fmt.Sprintf("failed to update cluster: %v", err))
		}
		return nil
	}
	if _, err = db.NamedExecContext(ctx, generateCommand(*cluster, insertClusterFormat, "id"), cluster); err != nil {
		klog.ErrorS(err, "failed to insert cluster", "name", cluster.Name)
		return relayerrors.NewTransient(fmt.Sprintf("failed to insert cluster: %v", err))
	}
	return nil
}

// GetClusterById retrieves one cluster by its id.
func (c *Client) GetClusterById(ctx context.Context, clusterId string) (*Cluster, error) {
	if clusterId == "" {
		return nil, relayerrors.NewBadRequest("cluster id is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var clusters []*Cluster
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &clusters, getClusterByIdCmd, clusterId); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select cluster: %v", err))
	}
	if len(clusters) == 0 || clusters[0] == nil {
		return nil, relayerrors.NewNotFound("Cluster", clusterId)
	}
	return clusters[0], nil
}

// GetClusterByName retrieves one cluster of an organization by name.
func (c *Client) GetClusterByName(ctx context.Context, organizationId, name string) (*Cluster, error) {
	if organizationId == "" || name == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var clusters []*Cluster
	if err = db.SelectContext(ctx, &clusters, getClusterByName, organizationId, name); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select cluster: %v", err))
	}
	if len(clusters) == 0 || clusters[0] == nil {
		return nil, relayerrors.NewNotFound("Cluster", name)
	}
	return clusters[0], nil
}

// ListActiveClusters retrieves the ACTIVE clusters of an organization.
func (c *Client) ListActiveClusters(ctx context.Context, organizationId string) ([]*Cluster, error) {
	if organizationId == "" {
		return nil, relayerrors.NewBadRequest("organization id is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TCluster).
		Where(sqrl.Eq{"organization_id": organizationId, "status": types.StatusActive}).ToSql()
	if err != nil {
		return nil, err
	}
	var clusters []*Cluster
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &clusters, sql, args...); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select clusters: %v", err))
	}
	return clusters, nil
}

// ListClustersByStatus retrieves every cluster in the given status across
// all organizations. Used by the liveness sweep.
func (c *Client) ListClustersByStatus(ctx context.Context, status string) ([]*Cluster, error) {
	if status == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TCluster).
		Where(sqrl.Eq{"status": status}).ToSql()
	if err != nil {
		return nil, err
	}
	var clusters []*Cluster
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &clusters, sql, args...); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select clusters: %v", err))
	}
	return clusters, nil
}

// TouchClusterHeartbeat refreshes the heartbeat timestamp of a cluster.
func (c *Client) TouchClusterHeartbeat(ctx context.Context, clusterId string) error {
	if clusterId == "" {
		return relayerrors.NewBadRequest("cluster id is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	sql, args, err := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Update(TCluster).
		Set("last_heartbeat", time.Now().UTC()).
		Where(sqrl.Eq{"cluster_id": clusterId}).ToSql()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, sql, args...); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to touch cluster heartbeat: %v", err))
	}
	return nil
}

// SetClusterStatus rewrites the status of a cluster.
func (c *Client) SetClusterStatus(ctx context.Context, clusterId, status string) error {
	if clusterId == "" || status == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	sql, args, err := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Update(TCluster).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(sqrl.Eq{"cluster_id": clusterId}).ToSql()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, sql, args...); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to update cluster status: %v", err))
	}
	return nil
}
