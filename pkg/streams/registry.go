/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package streams

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/signal"
)

// Stream abstracts one live bidirectional connection to a relayer.
type Stream interface {
	Send(frame *OutboundFrame) error
	Close() error
}

type unregisterPayload struct {
	Sender string `json:"sender"`
}

type entry struct {
	stream Stream
	reaper *time.Timer
}

// Registry owns the local clusterId to stream mapping of one pod and keeps
// it consistent with the rest of the fleet through the signaling channel
// and the shared liveness keys. At most one local stream per cluster; a
// registration anywhere in the fleet forces stale owners to release.
type Registry struct {
	mu            sync.Mutex
	streams       map[string]*entry
	signals       *signal.Client
	instanceId    string
	reaperTimeout time.Duration
	onReaped      func(clusterId string)
	closed        bool
}

func NewRegistry(signals *signal.Client, reaperTimeout time.Duration) *Registry {
	return &Registry{
		streams:       make(map[string]*entry),
		signals:       signals,
		instanceId:    crypto.NewId(),
		reaperTimeout: reaperTimeout,
	}
}

// OnReaped installs a callback fired after a reaper expiry unregisters a
// stream. Must be called before Start.
func (r *Registry) OnReaped(fn func(clusterId string)) {
	r.onReaped = fn
}

// Start subscribes the registry to the fleet signaling channel.
func (r *Registry) Start(ctx context.Context) error {
	return r.signals.Subscribe(ctx, r.handleSignal)
}

// Close releases every local stream and the signal subscription.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	clusters := make([]string, 0, len(r.streams))
	for clusterId := range r.streams {
		clusters = append(clusters, clusterId)
	}
	r.mu.Unlock()
	for _, clusterId := range clusters {
		r.Unregister(context.Background(), clusterId, "shutdown")
	}
	return r.signals.Close()
}

// RegisterStream installs a new stream for a cluster. Any stale owner in
// the fleet is told to release first; any local predecessor is destroyed.
func (r *Registry) RegisterStream(ctx context.Context, clusterId string, stream Stream) error {
	if clusterId == "" || stream == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	payload, _ := json.Marshal(unregisterPayload{Sender: r.instanceId})
	err := r.signals.Publish(ctx, &signal.Message{
		Type:      signal.TypeUnregisterStream,
		ClusterId: clusterId,
		Payload:   payload,
	})
	if err != nil {
		klog.ErrorS(err, "failed to broadcast stream takeover", "clusterId", clusterId)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return relayerrors.NewInternalError("stream registry is closed")
	}
	if old, ok := r.streams[clusterId]; ok {
		old.reaper.Stop()
		if closeErr := old.stream.Close(); closeErr != nil {
			klog.V(4).Infof("closing replaced stream for cluster %s: %v", clusterId, closeErr)
		}
	}
	e := &entry{stream: stream}
	e.reaper = time.AfterFunc(r.reaperTimeout, func() {
		r.reap(clusterId, e)
	})
	r.streams[clusterId] = e
	r.mu.Unlock()

	if err = r.signals.SetAlive(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to set liveness key", "clusterId", clusterId)
	}
	klog.Infof("registered stream, cluster: %s", clusterId)
	return nil
}

// Touch re-arms the reaper of a cluster and refreshes its liveness TTL.
// Called for every inbound frame and explicit heartbeat.
func (r *Registry) Touch(ctx context.Context, clusterId string) {
	r.mu.Lock()
	e, ok := r.streams[clusterId]
	if ok {
		e.reaper.Reset(r.reaperTimeout)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.signals.SetAlive(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to refresh liveness key", "clusterId", clusterId)
	}
}

// Unregister destroys the local stream of a cluster and clears the shared
// liveness key. Safe to call for clusters this pod does not own.
func (r *Registry) Unregister(ctx context.Context, clusterId, reason string) {
	r.mu.Lock()
	e, ok := r.streams[clusterId]
	if ok {
		delete(r.streams, clusterId)
		e.reaper.Stop()
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := e.stream.Close(); err != nil {
		klog.V(4).Infof("closing stream for cluster %s: %v", clusterId, err)
	}
	if err := r.signals.ClearAlive(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to clear liveness key", "clusterId", clusterId)
	}
	klog.Infof("unregistered stream, cluster: %s, reason: %s", clusterId, reason)
}

// ReleaseStream unregisters the cluster only while it still maps to the
// given stream. A handler whose stream was superseded by a reconnect cannot
// destroy the successor this way.
func (r *Registry) ReleaseStream(ctx context.Context, clusterId string, stream Stream, reason string) {
	r.mu.Lock()
	e, ok := r.streams[clusterId]
	if ok && e.stream != stream {
		r.mu.Unlock()
		return
	}
	if ok {
		delete(r.streams, clusterId)
		e.reaper.Stop()
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := e.stream.Close(); err != nil {
		klog.V(4).Infof("closing stream for cluster %s: %v", clusterId, err)
	}
	if err := r.signals.ClearAlive(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to clear liveness key", "clusterId", clusterId)
	}
	klog.Infof("unregistered stream, cluster: %s, reason: %s", clusterId, reason)
}

// IsLocal reports whether this pod currently owns the cluster's stream.
func (r *Registry) IsLocal(clusterId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[clusterId]
	return ok
}

// LocalClusters returns the clusters with a stream on this pod.
func (r *Registry) LocalClusters() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	clusters := make([]string, 0, len(r.streams))
	for clusterId := range r.streams {
		clusters = append(clusters, clusterId)
	}
	return clusters
}

// IsAliveGlobally reports whether any pod in the fleet owns a live stream
// for the cluster.
func (r *Registry) IsAliveGlobally(ctx context.Context, clusterId string) (bool, error) {
	return r.signals.IsAlive(ctx, clusterId)
}

// SendToCluster writes a frame to the cluster's stream. When the stream
// lives on another pod the frame travels as a CONFIG_UPDATE signal and the
// owner forwards it. Best effort; acks live in the application protocol.
func (r *Registry) SendToCluster(ctx context.Context, clusterId string, frame *OutboundFrame) error {
	r.mu.Lock()
	e, ok := r.streams[clusterId]
	r.mu.Unlock()
	if ok {
		if err := e.stream.Send(frame); err != nil {
			r.Unregister(ctx, clusterId, "write error")
			return relayerrors.NewTransient("failed to write to stream: " + err.Error())
		}
		return nil
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return r.signals.Publish(ctx, &signal.Message{
		Type:      signal.TypeConfigUpdate,
		ClusterId: clusterId,
		Payload:   payload,
	})
}

// SendLocal writes a frame only if this pod owns the stream.
func (r *Registry) SendLocal(ctx context.Context, clusterId string, frame *OutboundFrame) error {
	r.mu.Lock()
	e, ok := r.streams[clusterId]
	r.mu.Unlock()
	if !ok {
		return relayerrors.NewNotFoundWithMessage("no local stream for cluster " + clusterId)
	}
	if err := e.stream.Send(frame); err != nil {
		r.Unregister(ctx, clusterId, "write error")
		return relayerrors.NewTransient("failed to write to stream: " + err.Error())
	}
	return nil
}

func (r *Registry) reap(clusterId string, expired *entry) {
	r.mu.Lock()
	current, ok := r.streams[clusterId]
	if !ok || current != expired {
		r.mu.Unlock()
		return
	}
	delete(r.streams, clusterId)
	r.mu.Unlock()

	ctx := context.Background()
	if err := expired.stream.Close(); err != nil {
		klog.V(4).Infof("closing reaped stream for cluster %s: %v", clusterId, err)
	}
	if err := r.signals.ClearAlive(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to clear liveness key", "clusterId", clusterId)
	}
	klog.Infof("reaped stream after heartbeat timeout, cluster: %s", clusterId)
	if r.onReaped != nil {
		r.onReaped(clusterId)
	}
}

func (r *Registry) handleSignal(msg *signal.Message) {
	switch msg.Type {
	case signal.TypeUnregisterStream:
		payload := unregisterPayload{}
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				klog.ErrorS(err, "malformed unregister payload", "clusterId", msg.ClusterId)
			}
		}
		// The new owner broadcast this; releasing our own fresh stream
		// would undo the takeover.
		if payload.Sender == r.instanceId {
			return
		}
		r.mu.Lock()
		e, ok := r.streams[msg.ClusterId]
		if ok {
			delete(r.streams, msg.ClusterId)
			e.reaper.Stop()
		}
		r.mu.Unlock()
		if !ok {
			return
		}
		if err := e.stream.Close(); err != nil {
			klog.V(4).Infof("closing superseded stream for cluster %s: %v", msg.ClusterId, err)
		}
		// The new owner holds the liveness key now. Do not delete it.
		klog.Infof("released stream superseded by another pod, cluster: %s", msg.ClusterId)
	case signal.TypeConfigUpdate:
		r.mu.Lock()
		e, ok := r.streams[msg.ClusterId]
		r.mu.Unlock()
		if !ok {
			return
		}
		frame := &OutboundFrame{}
		if err := json.Unmarshal(msg.Payload, frame); err != nil {
			klog.ErrorS(err, "malformed config update payload", "clusterId", msg.ClusterId)
			return
		}
		if err := e.stream.Send(frame); err != nil {
			klog.ErrorS(err, "failed to forward config update", "clusterId", msg.ClusterId)
			r.Unregister(context.Background(), msg.ClusterId, "write error")
		}
	}
}
