/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

var (
	getExecutionCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE execution_id = $1 LIMIT 1`, TExecution)
	insertExecutionFormat = `INSERT INTO ` + TExecution + ` (%s) VALUES (%s) ON CONFLICT (execution_id) DO NOTHING`
)

// InsertExecution inserts a new execution row. The insert is idempotent by
// execution_id so replaying a request does not create a second row.
func (c *Client) InsertExecution(ctx context.Context, execution *Execution) error {
	if execution == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*execution, insertExecutionFormat, "id"), execution)
	if err != nil {
		klog.ErrorS(err, "failed to insert execution to db", "id", execution.ExecutionId)
		return relayerrors.NewTransient(fmt.Sprintf("failed to insert execution: %v", err))
	}
	return nil
}

// GetExecutionById retrieves one execution row.
func (c *Client) GetExecutionById(ctx context.Context, executionId string) (*Execution, error) {
	if executionId == "" {
		return nil, relayerrors.NewBadRequest("execution id is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var executions []*Execution
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &executions, getExecutionCmd, executionId); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select execution: %v", err))
	}
	if len(executions) == 0 || executions[0] == nil {
		return nil, relayerrors.NewNotFound("Execution", executionId)
	}
	return executions[0], nil
}

// UpdateExecutionStatus advances an execution to toStatus with a CAS on the
// current status, keeping transitions monotone under concurrent updaters.
// fields carries the companion columns written with the transition. Returns
// false without error when the row was not in any of fromStatuses.
func (c *Client) UpdateExecutionStatus(ctx context.Context, executionId string,
	fromStatuses []string, toStatus string, fields map[string]interface{}) (bool, error) {
	if executionId == "" || toStatus == "" {
		return false, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return false, err
	}

	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Update(TExecution).
		Set("status", toStatus).
		Where(sqrl.Eq{"execution_id": executionId})
	if len(fromStatuses) > 0 {
		builder = builder.Where(sqrl.Eq{"status": fromStatuses})
	}
	for column, value := range fields {
		builder = builder.Set(column, value)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update execution query: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	result, err := db.ExecContext(ctx2, sql, args...)
	if err != nil {
		klog.ErrorS(err, "failed to update execution status", "id", executionId, "to", toStatus)
		return false, relayerrors.NewTransient(fmt.Sprintf("failed to update execution: %v", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetExecutionAttempt rewrites the retry bookkeeping of an execution when a
// failed attempt is rescheduled.
func (c *Client) SetExecutionAttempt(ctx context.Context, executionId string,
	attempt int, fields map[string]interface{}) error {
	if executionId == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Update(TExecution).
		Set("attempt", attempt).
		Where(sqrl.Eq{"execution_id": executionId})
	for column, value := range fields {
		builder = builder.Set(column, value)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, sql, args...); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to update execution attempt: %v", err))
	}
	return nil
}

// SelectExecutions retrieves executions based on query conditions.
func (c *Client) SelectExecutions(ctx context.Context, query sqrl.Sqlizer,
	orderBy []string, limit, offset int) ([]*Execution, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TExecution)
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
		return nil, fmt.Errorf("failed to build select executions query: %v", err)
	}

	var executions []*Execution
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	err = db.SelectContext(ctx2, &executions, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select executions from db: %v", err)
	}
	return executions, nil
}

// CountExecutions counts executions based on query conditions.
func (c *Client) CountExecutions(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("COUNT(*)").From(TExecution)
	if query != nil {
		builder = builder.Where(query)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count executions query: %v", err)
	}
	var count int
	err = db.GetContext(ctx, &count, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions from db: %v", err)
	}
	return count, nil
}
