/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package streams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

type fakeClusterStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newFakeClusterStore() *fakeClusterStore {
	return &fakeClusterStore{statuses: make(map[string]string)}
}

func (f *fakeClusterStore) GetClusterById(_ context.Context, clusterId string) (*dbclient.Cluster, error) {
	return nil, relayerrors.NewNotFound("Cluster", clusterId)
}

func (f *fakeClusterStore) UpsertCluster(_ context.Context, _ *dbclient.Cluster) error {
	return nil
}

func (f *fakeClusterStore) TouchClusterHeartbeat(_ context.Context, _ string) error {
	return nil
}

func (f *fakeClusterStore) SetClusterStatus(_ context.Context, clusterId, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[clusterId] = status
	return nil
}

func (f *fakeClusterStore) status(clusterId string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[clusterId]
}

type idleSource struct{}

func (idleSource) Dequeue(_ context.Context, _, _ string, _ time.Duration) (*types.QueueMessage, error) {
	return nil, nil
}

func TestReapDemotesCluster(t *testing.T) {
	mr := miniredis.RunT(t)
	r := newTestRegistry(t, mr, 50*time.Millisecond)
	store := newFakeClusterStore()
	NewServer(r, idleSource{}, store, ServerOptions{})

	require.NoError(t, r.RegisterStream(context.Background(), "c1", &fakeStream{}))

	// A silent relayer loses ACTIVE along with its stream.
	eventually(t, func() bool {
		return store.status("c1") == types.StatusPending
	}, "cluster not demoted after reap")

	alive, err := r.IsAliveGlobally(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestDemoteSkippedWhileStreamAliveElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestRegistry(t, mr, time.Minute)
	b := newTestRegistry(t, mr, time.Minute)
	store := newFakeClusterStore()
	srv := NewServer(a, idleSource{}, store, ServerOptions{})

	// Another pod owns the stream; its liveness key blocks the demotion.
	require.NoError(t, b.RegisterStream(context.Background(), "c1", &fakeStream{}))
	srv.demoteIfDead(context.Background(), "c1")
	assert.Equal(t, "", store.status("c1"))

	b.Unregister(context.Background(), "c1", "test")
	srv.demoteIfDead(context.Background(), "c1")
	assert.Equal(t, types.StatusPending, store.status("c1"))
}
