/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

// GormStore persists the workflow journal in postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, relayerrors.NewInternalError("gorm handle is empty")
	}
	if err := db.AutoMigrate(&Run{}, &Step{}, &Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate workflow journal: %v", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateRun(ctx context.Context, run *Run) (bool, error) {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(run)
	if result.Error != nil {
		return false, relayerrors.NewTransient(fmt.Sprintf("failed to create run: %v", result.Error))
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) SetRunState(ctx context.Context, runId, state, errMsg string) error {
	result := s.db.WithContext(ctx).Model(&Run{}).
		Where("run_id = ?", runId).
		Updates(map[string]interface{}{
			"state":      state,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to update run state: %v", result.Error))
	}
	return nil
}

func (s *GormStore) ListRunsByState(ctx context.Context, state string) ([]*Run, error) {
	var runs []*Run
	if err := s.db.WithContext(ctx).Where("state = ?", state).Find(&runs).Error; err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to list runs: %v", err))
	}
	return runs, nil
}

func (s *GormStore) GetStep(ctx context.Context, runId, name string) (*Step, error) {
	step := &Step{}
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND name = ?", runId, name).
		First(step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to get step: %v", err))
	}
	return step, nil
}

func (s *GormStore) PutStep(ctx context.Context, step *Step) error {
	step.CreatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(step).Error
	if err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to put step: %v", err))
	}
	return nil
}

func (s *GormStore) AppendEvent(ctx context.Context, event *Event) error {
	event.CreatedAt = time.Now().UTC()
	if event.DeliverAt.IsZero() {
		event.DeliverAt = event.CreatedAt
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to append event: %v", err))
	}
	return nil
}

func (s *GormStore) ClaimEvent(ctx context.Context, name, key string, now time.Time) (*Event, error) {
	return s.claim(ctx, now, "name = ? AND key = ?", name, key)
}

func (s *GormStore) ClaimTriggerEvent(ctx context.Context, name string, now time.Time) (*Event, error) {
	return s.claim(ctx, now, "name = ?", name)
}

// claim consumes the oldest matching due event inside a transaction with a
// row lock, so concurrent claimers on different pods never double-deliver.
func (s *GormStore) claim(ctx context.Context, now time.Time, cond string, args ...interface{}) (*Event, error) {
	event := &Event{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(cond, args...).
			Where("delivered = ? AND deliver_at <= ?", false, now).
			Order("id").
			First(event).Error
		if err != nil {
			return err
		}
		return tx.Model(&Event{}).Where("id = ?", event.Id).
			Update("delivered", true).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to claim event: %v", err))
	}
	return event, nil
}

func (s *GormStore) Close() error {
	return nil
}
