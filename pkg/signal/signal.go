/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

const (
	// Topic is the single-purpose cross-pod coordination channel.
	Topic = "control-plane:signals"

	livenessKeyFormat = "cluster:%s:alive"

	TypeUnregisterStream = "UNREGISTER_STREAM"
	TypeConfigUpdate     = "CONFIG_UPDATE"
)

// Message is the envelope published on the signaling topic.
type Message struct {
	Type      string          `json:"type"`
	ClusterId string          `json:"clusterId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Handler consumes one inbound signal.
type Handler func(msg *Message)

// Client publishes and subscribes to the signaling topic and owns the
// fleet-wide liveness keys.
type Client struct {
	rdb         redis.UniversalClient
	pubsub      *redis.PubSub
	livenessTTL time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewClient(rdb redis.UniversalClient, livenessTTL time.Duration) *Client {
	return &Client{
		rdb:         rdb,
		livenessTTL: livenessTTL,
		done:        make(chan struct{}),
	}
}

// Publish sends one signal on the topic. Delivery is best effort.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err = c.rdb.Publish(ctx, Topic, data).Err(); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to publish signal: %v", err))
	}
	return nil
}

// Subscribe starts consuming the topic and dispatching to handler until
// Close. Only one subscription per client.
func (c *Client) Subscribe(ctx context.Context, handler Handler) error {
	if c.pubsub != nil {
		return relayerrors.NewInternalError("signal client already subscribed")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.pubsub = c.rdb.Subscribe(ctx, Topic)
	// Force the subscription before returning so callers never miss
	// signals published right after startup.
	if _, err := c.pubsub.Receive(ctx); err != nil {
		cancel()
		return relayerrors.NewTransient(fmt.Sprintf("failed to subscribe signals: %v", err))
	}
	go func() {
		defer close(c.done)
		ch := c.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				msg := &Message{}
				if err := json.Unmarshal([]byte(raw.Payload), msg); err != nil {
					klog.ErrorS(err, "skipping malformed signal", "payload", raw.Payload)
					continue
				}
				handler(msg)
			}
		}
	}()
	return nil
}

// Close stops the subscription loop.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pubsub != nil {
		err := c.pubsub.Close()
		<-c.done
		return err
	}
	return nil
}

// SetAlive records the fleet-wide liveness key of a cluster with the
// configured TTL. The stream owner is the only writer.
func (c *Client) SetAlive(ctx context.Context, clusterId string) error {
	key := fmt.Sprintf(livenessKeyFormat, clusterId)
	if err := c.rdb.Set(ctx, key, "true", c.livenessTTL).Err(); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to set liveness key: %v", err))
	}
	return nil
}

// ClearAlive deletes the liveness key of a cluster.
func (c *Client) ClearAlive(ctx context.Context, clusterId string) error {
	key := fmt.Sprintf(livenessKeyFormat, clusterId)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to delete liveness key: %v", err))
	}
	return nil
}

// IsAlive reports whether any pod currently owns a live stream for the
// cluster, per the shared liveness key.
func (c *Client) IsAlive(ctx context.Context, clusterId string) (bool, error) {
	key := fmt.Sprintf(livenessKeyFormat, clusterId)
	_, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, relayerrors.NewTransient(fmt.Sprintf("failed to read liveness key: %v", err))
	}
	return true, nil
}
