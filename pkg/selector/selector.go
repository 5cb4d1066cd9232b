/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package selector

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	"github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

const (
	baseScore           = 100.0
	loadPenaltyPerItem  = 5.0
	loadPenaltyCap      = 50.0
	staleAfter          = 5 * time.Minute
	stalePenaltyPerMin  = 2.0
	stalePenaltyCap     = 20.0
	neverHeartbeatPen   = 10.0
	regionBonus         = 20.0
	jitterRange         = 10.0

	// deadAfter is the silence beyond which a cluster is ineligible at any
	// score. The status column can lag a dead relayer between sweeps.
	deadAfter = 30 * time.Minute
)

// ClusterLister provides the ACTIVE clusters of an organization.
type ClusterLister interface {
	ListActiveClusters(ctx context.Context, organizationId string) ([]*dbclient.Cluster, error)
}

// QueueLengther reports the backlog of a cluster's work queue.
type QueueLengther interface {
	Length(ctx context.Context, organizationId, clusterId, priority string) (int64, error)
}

// Selector filters the eligible clusters of an organization and scores the
// survivors by load, heartbeat freshness and region affinity.
type Selector struct {
	store  ClusterLister
	queues QueueLengther

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector builds a selector with a time-seeded jitter source.
func NewSelector(store ClusterLister, queues QueueLengther) *Selector {
	return NewSelectorWithRand(store, queues, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSelectorWithRand builds a selector with an explicit jitter source so
// tie-breaking is reproducible.
func NewSelectorWithRand(store ClusterLister, queues QueueLengther, rnd *rand.Rand) *Selector {
	return &Selector{store: store, queues: queues, rnd: rnd}
}

// Candidate is one scored cluster.
type Candidate struct {
	Cluster      *dbclient.Cluster
	Capabilities types.Capabilities
	Score        float64
}

// Select returns the best eligible cluster for the given requirements, or a
// NoEligibleCluster error when the filtered set is empty.
func (s *Selector) Select(ctx context.Context, organizationId string,
	prefs types.SelectionPreferences) (*dbclient.Cluster, error) {
	candidates, err := s.Rank(ctx, organizationId, prefs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, relayerrors.NewNoEligibleCluster(
			"no eligible cluster for organization " + organizationId)
	}
	return candidates[0].Cluster, nil
}

// Rank returns all eligible clusters sorted by descending score.
func (s *Selector) Rank(ctx context.Context, organizationId string,
	prefs types.SelectionPreferences) ([]Candidate, error) {
	clusters, err := s.store.ListActiveClusters(ctx, organizationId)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(clusters))
	for _, cluster := range clusters {
		if last := utils.ParseNullTime(cluster.LastHeartbeat); !last.IsZero() &&
			time.Since(last) > deadAfter {
			continue
		}
		caps := parseCapabilities(cluster)
		if prefs.RequireGpu && caps.GpuNodes <= 0 {
			continue
		}
		if prefs.RequireSandbox && !caps.Sandbox {
			continue
		}
		score, err := s.score(ctx, organizationId, cluster, caps, prefs)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{Cluster: cluster, Capabilities: caps, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

func (s *Selector) score(ctx context.Context, organizationId string,
	cluster *dbclient.Cluster, caps types.Capabilities, prefs types.SelectionPreferences) (float64, error) {
	score := baseScore

	queueLen, err := s.queues.Length(ctx, organizationId, cluster.ClusterId, "")
	if err != nil {
		klog.ErrorS(err, "failed to read queue length, scoring without load penalty",
			"clusterId", cluster.ClusterId)
		queueLen = 0
	}
	loadPenalty := float64(queueLen) * loadPenaltyPerItem
	if loadPenalty > loadPenaltyCap {
		loadPenalty = loadPenaltyCap
	}
	score -= loadPenalty

	lastHeartbeat := utils.ParseNullTime(cluster.LastHeartbeat)
	if lastHeartbeat.IsZero() {
		score -= neverHeartbeatPen
	} else if age := time.Since(lastHeartbeat); age > staleAfter {
		stalePenalty := age.Minutes() * stalePenaltyPerMin
		if stalePenalty > stalePenaltyCap {
			stalePenalty = stalePenaltyCap
		}
		score -= stalePenalty
	}

	if prefs.PreferredRegion != "" && caps.Region == prefs.PreferredRegion {
		score += regionBonus
	}

	s.mu.Lock()
	score += s.rnd.Float64() * jitterRange
	s.mu.Unlock()
	return score, nil
}

func parseCapabilities(cluster *dbclient.Cluster) types.Capabilities {
	caps := types.Capabilities{}
	raw := utils.ParseNullString(cluster.Capabilities)
	if raw == "" {
		return caps
	}
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		klog.ErrorS(err, "malformed cluster capabilities", "clusterId", cluster.ClusterId)
	}
	return caps
}
