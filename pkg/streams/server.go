/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package streams

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/metrics"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/jsonutil"
)

const (
	HeaderApiKey    = "X-Api-Key"
	HeaderClusterId = "X-Cluster-Id"
)

// WorkSource feeds the producer loop of each stream. *queue.Queue
// satisfies it.
type WorkSource interface {
	Dequeue(ctx context.Context, organizationId, clusterId string,
		timeout time.Duration) (*types.QueueMessage, error)
}

// ClusterStore is the slice of the durable store the stream server needs.
// *dbclient.Client satisfies it.
type ClusterStore interface {
	GetClusterById(ctx context.Context, clusterId string) (*dbclient.Cluster, error)
	UpsertCluster(ctx context.Context, cluster *dbclient.Cluster) error
	TouchClusterHeartbeat(ctx context.Context, clusterId string) error
	SetClusterStatus(ctx context.Context, clusterId, status string) error
}

// TelemetrySink consumes opaque log, metric and trace batches relayed from
// the edge.
type TelemetrySink interface {
	HandleBatch(ctx context.Context, clusterId, kind string, batch json.RawMessage)
}

// LoggingSink writes telemetry batch envelopes to the process log. The
// default sink until an export pipeline is configured.
type LoggingSink struct{}

func (LoggingSink) HandleBatch(_ context.Context, clusterId, kind string, batch json.RawMessage) {
	klog.V(4).Infof("telemetry batch from cluster %s, kind: %s, bytes: %d", clusterId, kind, len(batch))
}

// Server terminates relayer websocket streams and bridges them to the work
// queue and the orchestrators.
type Server struct {
	registry *Registry
	source   WorkSource
	store    ClusterStore

	// Inbound dispatch. Wired by the composition root so this package does
	// not depend on the orchestrators.
	onExecutionStatus    func(ctx context.Context, frame *InboundFrame) error
	onRegistrationStatus func(ctx context.Context, clusterId, agentId, status, errMsg string) error
	telemetry            TelemetrySink

	dequeueTimeout time.Duration
	upgrader       websocket.Upgrader
}

// ServerOptions wire the inbound dispatch of a stream server.
type ServerOptions struct {
	OnExecutionStatus    func(ctx context.Context, frame *InboundFrame) error
	OnRegistrationStatus func(ctx context.Context, clusterId, agentId, status, errMsg string) error
	Telemetry            TelemetrySink
	DequeueTimeout       time.Duration
}

func NewServer(registry *Registry, source WorkSource, store ClusterStore, opts ServerOptions) *Server {
	if opts.Telemetry == nil {
		opts.Telemetry = LoggingSink{}
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = 5 * time.Second
	}
	s := &Server{
		registry:             registry,
		source:               source,
		store:                store,
		onExecutionStatus:    opts.OnExecutionStatus,
		onRegistrationStatus: opts.OnRegistrationStatus,
		telemetry:            opts.Telemetry,
		dequeueTimeout:       opts.DequeueTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	// A cluster is ACTIVE only while some pod holds its stream. The reaper
	// already cleared the liveness key, so the demotion check passes.
	registry.OnReaped(func(clusterId string) {
		s.demoteIfDead(context.Background(), clusterId)
	})
	return s
}

// demoteIfDead moves a cluster back to PENDING once no pod in the fleet
// holds its stream. A takeover or local reconnect keeps the liveness key, so
// the superseded handler leaves the new status alone.
func (s *Server) demoteIfDead(ctx context.Context, clusterId string) {
	alive, err := s.registry.IsAliveGlobally(ctx, clusterId)
	if err != nil {
		klog.ErrorS(err, "failed to check cluster liveness", "clusterId", clusterId)
		return
	}
	if alive {
		return
	}
	if err = s.store.SetClusterStatus(ctx, clusterId, types.StatusPending); err != nil {
		klog.ErrorS(err, "failed to demote cluster", "clusterId", clusterId)
		return
	}
	klog.Infof("demoted cluster without live stream, id: %s", clusterId)
}

// wsStream adapts one websocket connection to the registry Stream
// interface. Writes are serialized; gorilla allows one concurrent writer.
type wsStream struct {
	conn *websocket.Conn

	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func newWsStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn, done: make(chan struct{})}
}

func (s *wsStream) Send(frame *OutboundFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// HandleStream upgrades /api/stream. One stream per cluster fleet-wide; a
// second connect anywhere supersedes the first.
func (s *Server) HandleStream(c *gin.Context) {
	clusterId := c.GetHeader(HeaderClusterId)
	token := c.GetHeader(HeaderApiKey)
	cluster, err := s.authenticate(c.Request.Context(), clusterId, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		klog.ErrorS(err, "failed to upgrade stream", "clusterId", clusterId)
		return
	}
	stream := newWsStream(conn)
	ctx := context.Background()
	if err = s.registry.RegisterStream(ctx, clusterId, stream); err != nil {
		klog.ErrorS(err, "failed to register stream", "clusterId", clusterId)
		_ = stream.Close()
		return
	}
	metrics.ConnectedStreams.Inc()
	defer metrics.ConnectedStreams.Dec()

	if err = s.store.SetClusterStatus(ctx, clusterId, types.StatusActive); err != nil {
		klog.ErrorS(err, "failed to activate cluster", "clusterId", clusterId)
	}
	if err = s.store.TouchClusterHeartbeat(ctx, clusterId); err != nil {
		klog.ErrorS(err, "failed to touch cluster heartbeat", "clusterId", clusterId)
	}

	go s.produce(cluster.OrganizationId, clusterId, stream)
	s.consume(ctx, clusterId, stream)
	s.registry.ReleaseStream(ctx, clusterId, stream, "stream closed")
	s.demoteIfDead(ctx, clusterId)
}

func (s *Server) authenticate(ctx context.Context, clusterId, token string) (*dbclient.Cluster, error) {
	if clusterId == "" || token == "" {
		return nil, relayerrors.NewUnauthorized("missing credentials")
	}
	cluster, err := s.store.GetClusterById(ctx, clusterId)
	if err != nil {
		return nil, relayerrors.NewUnauthorized("unknown cluster")
	}
	if !crypto.VerifySecret(cluster.SecretHash, token) {
		return nil, relayerrors.NewUnauthorized("invalid cluster token")
	}
	return cluster, nil
}

// produce drains the cluster's queues into the stream. A write failure ends
// the stream; the execution-level timeout and retry recover anything lost
// in flight.
func (s *Server) produce(organizationId, clusterId string, stream *wsStream) {
	for {
		select {
		case <-stream.done:
			return
		default:
		}
		message, err := s.source.Dequeue(context.Background(), organizationId, clusterId, s.dequeueTimeout)
		if err != nil {
			klog.ErrorS(err, "failed to dequeue", "clusterId", clusterId)
			time.Sleep(time.Second)
			continue
		}
		if message == nil {
			continue
		}
		if err = stream.Send(OutboundFromQueueMessage(message)); err != nil {
			klog.ErrorS(err, "failed to write work frame", "clusterId", clusterId)
			s.registry.ReleaseStream(context.Background(), clusterId, stream, "write error")
			return
		}
	}
}

func (s *Server) consume(ctx context.Context, clusterId string, stream *wsStream) {
	for {
		frame := &InboundFrame{}
		if err := stream.conn.ReadJSON(frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				klog.V(4).Infof("stream read ended for cluster %s: %v", clusterId, err)
			}
			return
		}
		// Every inbound frame proves liveness.
		s.registry.Touch(ctx, clusterId)
		metrics.InboundFramesTotal.WithLabelValues(frame.Type).Inc()
		s.dispatch(ctx, clusterId, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, clusterId string, frame *InboundFrame) {
	switch frame.Type {
	case FrameHeartbeat:
		go func() {
			if err := s.store.TouchClusterHeartbeat(context.Background(), clusterId); err != nil {
				klog.ErrorS(err, "failed to touch cluster heartbeat", "clusterId", clusterId)
			}
		}()
	case FrameExecutionStatus:
		if s.onExecutionStatus == nil {
			return
		}
		if err := s.onExecutionStatus(ctx, frame); err != nil {
			klog.ErrorS(err, "failed to handle execution status",
				"clusterId", clusterId, "executionId", frame.ExecutionId)
		} else {
			metrics.ExecutionsTotal.WithLabelValues(frame.Status).Inc()
		}
	case FrameRegistrationStatus:
		if s.onRegistrationStatus == nil {
			return
		}
		errMsg := ""
		if frame.Error != nil {
			errMsg = frame.Error.Message
		}
		if err := s.onRegistrationStatus(ctx, clusterId, frame.AgentId, frame.Status, errMsg); err != nil {
			klog.ErrorS(err, "failed to handle registration status",
				"clusterId", clusterId, "agentId", frame.AgentId)
		}
	case FrameLogBatch, FrameMetricBatch, FrameTraceBatch:
		s.telemetry.HandleBatch(ctx, clusterId, frame.Type, frame.Batch)
	default:
		klog.V(4).Infof("ignoring unknown frame type %q from cluster %s", frame.Type, clusterId)
	}
}

// ClusterRegistration is returned once from RegisterCluster. The token
// plaintext is never reconstructable afterwards.
type ClusterRegistration struct {
	ClusterId    string          `json:"clusterId"`
	ClusterToken string          `json:"clusterToken"`
	Config       json.RawMessage `json:"config"`
}

// RegisterCluster provisions or refreshes a relayer cluster. Re-registering
// an existing (org, name) rotates the token and keeps the cluster id.
func (s *Server) RegisterCluster(ctx context.Context, organizationId, name, relayerVersion string,
	capabilities *types.Capabilities) (*ClusterRegistration, error) {
	if organizationId == "" || name == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	token, err := crypto.GenerateClusterToken()
	if err != nil {
		return nil, relayerrors.NewInternalError("failed to generate cluster token")
	}
	secretHash, err := crypto.HashSecret(token)
	if err != nil {
		return nil, relayerrors.NewInternalError("failed to hash cluster token")
	}
	cluster := &dbclient.Cluster{
		ClusterId:      crypto.NewId(),
		OrganizationId: organizationId,
		Name:           name,
		Status:         types.StatusPending,
		RelayerVersion: dbutils.NullString(relayerVersion),
		SecretHash:     secretHash,
		Capabilities:   dbutils.NullString(string(jsonutil.MarshalSilently(capabilities))),
		CreatedAt:      dbutils.NullTime(time.Now().UTC()),
		UpdatedAt:      dbutils.NullTime(time.Now().UTC()),
	}
	// UpsertCluster preserves the cluster id of an existing (org, name).
	if err = s.store.UpsertCluster(ctx, cluster); err != nil {
		return nil, err
	}
	config := map[string]interface{}{
		"streamPath":               "/api/stream",
		"heartbeatIntervalSeconds": 30,
	}
	klog.Infof("registered cluster, org: %s, name: %s, id: %s", organizationId, name, cluster.ClusterId)
	return &ClusterRegistration{
		ClusterId:    cluster.ClusterId,
		ClusterToken: token,
		Config:       jsonutil.MarshalSilently(config),
	}, nil
}
