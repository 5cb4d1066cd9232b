/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/relay/pkg/config"
	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers/authority"
	"github.com/AMD-AIG-AIMA/relay/pkg/metrics"
	"github.com/AMD-AIG-AIMA/relay/pkg/orchestrator"
	"github.com/AMD-AIG-AIMA/relay/pkg/queue"
	"github.com/AMD-AIG-AIMA/relay/pkg/selector"
	signalpkg "github.com/AMD-AIG-AIMA/relay/pkg/signal"
	"github.com/AMD-AIG-AIMA/relay/pkg/streams"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/workflow"
)

// clusterHeartbeatWindow bounds how long a cluster may stay ACTIVE after its
// last heartbeat once no stream is registered anywhere.
const clusterHeartbeatWindow = 2 * time.Minute

// Server wires every service of the control plane in dependency order and
// tears them down in reverse.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	db       *dbclient.Client
	rdb      redis.UniversalClient
	queues   *queue.Queue
	signals  *signalpkg.Client
	registry *streams.Registry
	engine   *workflow.Engine
	cron     *cron.Cron

	httpServer *http.Server
	isInited   bool
}

// NewServer creates and returns a new Server instance.
func NewServer() (*Server, error) {
	s := &Server{}
	s.ctx, s.cancel = signalContext()
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	configPath := flag.String("config", "/etc/relay/config.yaml", "config file path")
	klog.InitFlags(nil)
	flag.Parse()

	fullPath, err := filepath.Abs(*configPath)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}

	// Store.
	if s.db, err = dbclient.NewClient(); err != nil {
		klog.ErrorS(err, "failed to init db client")
		return err
	}

	// Queue and signaling share one redis client.
	s.rdb = redis.NewClient(&redis.Options{
		Addr:     config.GetRedisAddress(),
		Password: config.GetRedisPassword(),
		DB:       config.GetRedisDatabase(),
	})
	if err = s.rdb.Ping(s.ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %v", err)
	}
	s.queues = queue.NewQueue(s.rdb)
	s.signals = signalpkg.NewClient(s.rdb,
		time.Duration(config.GetStreamLivenessTTLSecond())*time.Second)

	// Stream registry. Started after the stream server installs its reap
	// hook.
	s.registry = streams.NewRegistry(s.signals,
		time.Duration(config.GetStreamReaperTimeoutSecond())*time.Second)

	// Selector.
	clusterSelector := selector.NewSelector(s.db, s.queues)

	// Workflow engine over the journal.
	journal, err := workflow.NewGormStore(s.db.Gorm())
	if err != nil {
		klog.ErrorS(err, "failed to init workflow journal")
		return err
	}
	s.engine = workflow.NewEngine(journal, workflow.Options{
		OrgConcurrencyLimit: config.GetWorkflowOrgConcurrencyLimit(),
		PollInterval:        time.Duration(config.GetWorkflowPollIntervalSecond()) * time.Second,
	})

	// Orchestrators.
	executions := orchestrator.NewExecutionOrchestrator(s.db, clusterSelector, s.queues,
		s.engine, time.Duration(config.GetExecutionWaitGraceSecond())*time.Second)
	registrations, err := orchestrator.NewRegistrationOrchestrator(s.db, s.queues)
	if err != nil {
		klog.ErrorS(err, "failed to init registration orchestrator")
		return err
	}
	if err = s.engine.Start(s.ctx); err != nil {
		klog.ErrorS(err, "failed to start workflow engine")
		return err
	}

	// Stream server and HTTP surface.
	streamServer := streams.NewServer(s.registry, s.queues, s.db, streams.ServerOptions{
		OnExecutionStatus: func(ctx context.Context, frame *streams.InboundFrame) error {
			return executions.HandleCompletion(ctx, &orchestrator.CompletionEvent{
				ExecutionId:   frame.ExecutionId,
				Status:        frame.Status,
				Result:        frame.Result,
				Error:         frame.Error,
				DurationMs:    frame.DurationMs,
				ResourceUsage: frame.ResourceUsage,
			})
		},
		OnRegistrationStatus: registrations.HandleRegistrationStatus,
		DequeueTimeout:       time.Duration(config.GetQueueDequeueTimeoutSecond()) * time.Second,
	})
	if err = s.registry.Start(s.ctx); err != nil {
		klog.ErrorS(err, "failed to start stream registry")
		return err
	}
	handler := handlers.NewHandler(s.db, executions, registrations, streamServer)
	auth := authority.NewAuthenticator(s.db)
	engine := handlers.InitHttpHandlers(handler, auth)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GetServerPort()),
		Handler: engine,
	}

	s.initCron()
	s.isInited = true
	return nil
}

// initCron schedules the background maintenance jobs.
func (s *Server) initCron() {
	s.cron = cron.New()
	_, _ = s.cron.AddFunc("@daily", func() {
		if err := s.db.DeleteExpiredRevokedApiKeys(s.ctx, time.Now().UTC()); err != nil {
			klog.ErrorS(err, "failed to clean up expired api keys")
		}
	})
	_, _ = s.cron.AddFunc("@every 1m", func() {
		stats, err := s.queues.GlobalStats(s.ctx)
		if err != nil {
			klog.ErrorS(err, "failed to collect queue stats")
			return
		}
		for _, stat := range stats {
			metrics.QueueDepth.WithLabelValues(stat.Key).Set(float64(stat.Length))
		}
	})
	_, _ = s.cron.AddFunc("@every 1m", func() {
		s.sweepClusterLiveness()
	})
}

// sweepClusterLiveness demotes ACTIVE clusters that lost their stream
// without a clean unregister, e.g. when the owning pod crashed. A cluster
// stays ACTIVE only while some pod holds its stream or its heartbeat is
// within the window.
func (s *Server) sweepClusterLiveness() {
	clusters, err := s.db.ListClustersByStatus(s.ctx, types.StatusActive)
	if err != nil {
		klog.ErrorS(err, "failed to list active clusters")
		return
	}
	for _, cluster := range clusters {
		alive, err := s.registry.IsAliveGlobally(s.ctx, cluster.ClusterId)
		if err != nil {
			klog.ErrorS(err, "failed to check cluster liveness", "clusterId", cluster.ClusterId)
			continue
		}
		if alive {
			continue
		}
		lastHeartbeat := dbutils.ParseNullTime(cluster.LastHeartbeat)
		if !lastHeartbeat.IsZero() && time.Since(lastHeartbeat) < clusterHeartbeatWindow {
			continue
		}
		if err = s.db.SetClusterStatus(s.ctx, cluster.ClusterId, types.StatusPending); err != nil {
			klog.ErrorS(err, "failed to demote cluster", "clusterId", cluster.ClusterId)
			continue
		}
		klog.Infof("demoted cluster without live stream, id: %s", cluster.ClusterId)
	}
}

// Start runs the HTTP server until a termination signal arrives, then shuts
// everything down.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the server first")
		return
	}
	gin.EnableJsonDecoderDisallowUnknownFields()
	s.cron.Start()

	klog.Infof("starting control plane, http port: %d", config.GetServerPort())
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http server")
			os.Exit(-1)
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

// Stop tears the services down in reverse init order. Workflow runs still
// in flight stay journaled and resume on the next start.
func (s *Server) Stop() {
	drain := time.Duration(config.GetServerDrainSecond()) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	klog.Info("shutting down http server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		klog.ErrorS(err, "failed to shutdown http server")
	}
	s.cron.Stop()
	if err := s.engine.Close(); err != nil {
		klog.ErrorS(err, "failed to close workflow engine")
	}
	if err := s.registry.Close(); err != nil {
		klog.ErrorS(err, "failed to close stream registry")
	}
	if err := s.queues.Close(); err != nil {
		klog.ErrorS(err, "failed to close queue")
	}
	if err := s.rdb.Close(); err != nil {
		klog.ErrorS(err, "failed to close redis client")
	}
	s.db.Close()
	klog.Info("control plane is stopped")
	klog.Flush()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		<-ch
		os.Exit(1)
	}()
	return ctx, cancel
}
