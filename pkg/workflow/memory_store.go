/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workflow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a journal held entirely in process memory. Used by tests
// and by single-process deployments that accept losing in-flight workflows
// on restart.
type MemoryStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	steps  map[string]map[string]*Step
	events []*Event
	nextId int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]*Run),
		steps: make(map[string]map[string]*Step),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunId]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	clone := *run
	s.runs[run.RunId] = &clone
	return true, nil
}

func (s *MemoryStore) SetRunState(_ context.Context, runId, state, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runId]; ok {
		run.State = state
		run.Error = errMsg
		run.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) ListRunsByState(_ context.Context, state string) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var runs []*Run
	for _, run := range s.runs {
		if run.State == state {
			clone := *run
			runs = append(runs, &clone)
		}
	}
	return runs, nil
}

func (s *MemoryStore) GetStep(_ context.Context, runId, name string) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if steps, ok := s.steps[runId]; ok {
		if step, ok := steps[name]; ok {
			clone := *step
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) PutStep(_ context.Context, step *Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[step.RunId]; !ok {
		s.steps[step.RunId] = make(map[string]*Step)
	}
	if _, exists := s.steps[step.RunId][step.Name]; exists {
		return nil
	}
	step.CreatedAt = time.Now().UTC()
	clone := *step
	s.steps[step.RunId][step.Name] = &clone
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	event.Id = s.nextId
	event.CreatedAt = time.Now().UTC()
	if event.DeliverAt.IsZero() {
		event.DeliverAt = event.CreatedAt
	}
	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *MemoryStore) ClaimEvent(_ context.Context, name, key string, now time.Time) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.Delivered || event.Name != name || event.Key != key {
			continue
		}
		if event.DeliverAt.After(now) {
			continue
		}
		event.Delivered = true
		clone := *event
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryStore) ClaimTriggerEvent(_ context.Context, name string, now time.Time) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.Delivered || event.Name != name {
			continue
		}
		if event.DeliverAt.After(now) {
			continue
		}
		event.Delivered = true
		clone := *event
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
