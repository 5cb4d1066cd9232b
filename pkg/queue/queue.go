/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

const (
	keyFormat     = "org:%s:cluster:%s:work"
	highSuffix    = ":high"
	lowSuffix     = ":low"
	scanBatchSize = 100
)

// Queue is the per-(organization, cluster, priority) work queue backed by
// redis lists. FIFO holds within a priority; dequeue order across priorities
// is strictly high, normal, low.
type Queue struct {
	rdb redis.UniversalClient
}

func NewQueue(rdb redis.UniversalClient) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Close() error {
	return nil
}

// Key returns the redis key of one (org, cluster, priority) queue.
func Key(organizationId, clusterId, priority string) string {
	base := fmt.Sprintf(keyFormat, organizationId, clusterId)
	switch priority {
	case types.PriorityHigh:
		return base + highSuffix
	case types.PriorityLow:
		return base + lowSuffix
	default:
		return base
	}
}

func keys(organizationId, clusterId string) []string {
	base := fmt.Sprintf(keyFormat, organizationId, clusterId)
	// Dequeue order. High preempts normal preempts low.
	return []string{base + highSuffix, base, base + lowSuffix}
}

// Enqueue appends a message to the tail of its priority queue.
func (q *Queue) Enqueue(ctx context.Context, organizationId, clusterId string,
	message *types.QueueMessage, priority string) error {
	if message == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return relayerrors.NewBadRequest(fmt.Sprintf("failed to marshal queue message: %v", err))
	}
	key := Key(organizationId, clusterId, priority)
	if err = q.rdb.RPush(ctx, key, data).Err(); err != nil {
		klog.ErrorS(err, "failed to enqueue message", "key", key)
		return relayerrors.NewTransient(fmt.Sprintf("failed to enqueue: %v", err))
	}
	return nil
}

// Dequeue pops the head of the first non-empty queue among high, normal and
// low, blocking up to timeout. Returns nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, organizationId, clusterId string,
	timeout time.Duration) (*types.QueueMessage, error) {
	result, err := q.rdb.BLPop(ctx, timeout, keys(organizationId, clusterId)...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to dequeue: %v", err))
	}
	// BLPOP returns [key, value].
	if len(result) != 2 {
		return nil, relayerrors.NewInternalError(fmt.Sprintf("unexpected blpop reply of length %d", len(result)))
	}
	message := &types.QueueMessage{}
	if err = json.Unmarshal([]byte(result[1]), message); err != nil {
		return nil, relayerrors.NewInternalError(fmt.Sprintf("failed to unmarshal queue message: %v", err))
	}
	return message, nil
}

// Peek returns the head of the highest-priority non-empty queue without
// removing it. Returns nil when all three queues are empty.
func (q *Queue) Peek(ctx context.Context, organizationId, clusterId string) (*types.QueueMessage, error) {
	for _, key := range keys(organizationId, clusterId) {
		data, err := q.rdb.LIndex(ctx, key, 0).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, relayerrors.NewTransient(fmt.Sprintf("failed to peek: %v", err))
		}
		message := &types.QueueMessage{}
		if err = json.Unmarshal([]byte(data), message); err != nil {
			return nil, relayerrors.NewInternalError(fmt.Sprintf("failed to unmarshal queue message: %v", err))
		}
		return message, nil
	}
	return nil, nil
}

// Length returns the depth of one priority queue, or of all three when
// priority is empty.
func (q *Queue) Length(ctx context.Context, organizationId, clusterId, priority string) (int64, error) {
	if priority != "" {
		n, err := q.rdb.LLen(ctx, Key(organizationId, clusterId, priority)).Result()
		if err != nil {
			return 0, relayerrors.NewTransient(fmt.Sprintf("failed to get queue length: %v", err))
		}
		return n, nil
	}
	var total int64
	for _, key := range keys(organizationId, clusterId) {
		n, err := q.rdb.LLen(ctx, key).Result()
		if err != nil {
			return 0, relayerrors.NewTransient(fmt.Sprintf("failed to get queue length: %v", err))
		}
		total += n
	}
	return total, nil
}

// DrainCluster removes the three queues of a cluster and returns their
// contents in dequeue order. Only invoked on cluster delete; a stream loss
// deliberately leaves the queues intact.
func (q *Queue) DrainCluster(ctx context.Context, organizationId, clusterId string) ([]*types.QueueMessage, error) {
	var drained []*types.QueueMessage
	for _, key := range keys(organizationId, clusterId) {
		values, err := q.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, relayerrors.NewTransient(fmt.Sprintf("failed to drain queue: %v", err))
		}
		for _, value := range values {
			message := &types.QueueMessage{}
			if err = json.Unmarshal([]byte(value), message); err != nil {
				klog.ErrorS(err, "skipping malformed queue message", "key", key)
				continue
			}
			drained = append(drained, message)
		}
		if err = q.rdb.Del(ctx, key).Err(); err != nil {
			return nil, relayerrors.NewTransient(fmt.Sprintf("failed to delete queue: %v", err))
		}
	}
	return drained, nil
}

// QueueStat describes one live queue during a global scan.
type QueueStat struct {
	Key    string
	Length int64
}

// GlobalStats enumerates all work queues with a non-blocking cursor scan.
func (q *Queue) GlobalStats(ctx context.Context) ([]QueueStat, error) {
	var stats []QueueStat
	var cursor uint64
	for {
		batch, next, err := q.rdb.Scan(ctx, cursor, "org:*:cluster:*:work*", scanBatchSize).Result()
		if err != nil {
			return nil, relayerrors.NewTransient(fmt.Sprintf("failed to scan queues: %v", err))
		}
		for _, key := range batch {
			if !strings.Contains(key, ":work") {
				continue
			}
			length, err := q.rdb.LLen(ctx, key).Result()
			if err != nil {
				return nil, relayerrors.NewTransient(fmt.Sprintf("failed to get queue length: %v", err))
			}
			stats = append(stats, QueueStat{Key: key, Length: length})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats, nil
}
