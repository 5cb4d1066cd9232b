/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, livenessTTL time.Duration) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClient(rdb, livenessTTL), mr
}

func TestPublishNil(t *testing.T) {
	c, _ := newTestClient(t, time.Minute)
	assert.Error(t, c.Publish(context.Background(), nil))
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t, time.Minute)
	ctx := context.Background()

	received := make(chan *Message, 1)
	require.NoError(t, c.Subscribe(ctx, func(msg *Message) {
		received <- msg
	}))
	defer c.Close()

	payload, err := json.Marshal(map[string]string{"sender": "pod-a"})
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, &Message{
		Type:      TypeUnregisterStream,
		ClusterId: "c1",
		Payload:   payload,
	}))

	select {
	case msg := <-received:
		assert.Equal(t, TypeUnregisterStream, msg.Type)
		assert.Equal(t, "c1", msg.ClusterId)
		assert.JSONEq(t, `{"sender":"pod-a"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestSubscribeTwice(t *testing.T) {
	c, _ := newTestClient(t, time.Minute)
	require.NoError(t, c.Subscribe(context.Background(), func(*Message) {}))
	defer c.Close()
	assert.Error(t, c.Subscribe(context.Background(), func(*Message) {}))
}

func TestSubscribeSkipsMalformed(t *testing.T) {
	c, mr := newTestClient(t, time.Minute)
	ctx := context.Background()

	received := make(chan *Message, 1)
	require.NoError(t, c.Subscribe(ctx, func(msg *Message) {
		received <- msg
	}))
	defer c.Close()

	mr.Publish(Topic, "not json")
	require.NoError(t, c.Publish(ctx, &Message{Type: TypeConfigUpdate, ClusterId: "c2"}))

	select {
	case msg := <-received:
		assert.Equal(t, TypeConfigUpdate, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestLiveness(t *testing.T) {
	c, mr := newTestClient(t, time.Minute)
	ctx := context.Background()

	alive, err := c.IsAlive(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, c.SetAlive(ctx, "c1"))
	alive, err = c.IsAlive(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, time.Minute, mr.TTL("cluster:c1:alive"))

	require.NoError(t, c.ClearAlive(ctx, "c1"))
	alive, err = c.IsAlive(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestLivenessExpires(t *testing.T) {
	c, mr := newTestClient(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetAlive(ctx, "c1"))
	mr.FastForward(2 * time.Minute)

	alive, err := c.IsAlive(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, alive)
}
