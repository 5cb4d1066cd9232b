/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

var (
	agentNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	imagePattern     = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+(:\d+)?(/[a-zA-Z0-9.\-_]+)+:[a-zA-Z0-9.\-_]+$`)
	cpuPattern       = regexp.MustCompile(`^\d+m?$`)
	memoryPattern    = regexp.MustCompile(`^\d+(Mi|Gi)$`)
	gpuPattern       = regexp.MustCompile(`^\d+$`)
	durationPattern  = regexp.MustCompile(`^\d+(s|m|h)$`)
)

// Validator wraps a configured validator/v10 instance with the custom
// field formats of agent configurations.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	patterns := map[string]*regexp.Regexp{
		"agentname": agentNamePattern,
		"image":     imagePattern,
		"cpu":       cpuPattern,
		"memory":    memoryPattern,
		"gpu":       gpuPattern,
		"duration":  durationPattern,
	}
	for tag, pattern := range patterns {
		p := pattern
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return p.MatchString(fl.Field().String())
		}); err != nil {
			return nil, err
		}
	}
	return &Validator{validate: v}, nil
}

// ValidateAgentConfig checks one agent configuration against the API
// constraints and returns a bad-request error naming the first violation.
func (v *Validator) ValidateAgentConfig(config *types.AgentConfig) error {
	if config == nil {
		return errors.NewBadRequest("agent config is empty")
	}
	if err := v.validate.Struct(config); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return errors.NewBadRequest(fmt.Sprintf(
				"invalid agent config: field %s failed %s validation", fe.Field(), fe.Tag()))
		}
		return errors.NewBadRequest("invalid agent config: " + err.Error())
	}
	return nil
}

// ValidatePriority checks a caller-supplied execution priority.
func ValidatePriority(priority string) error {
	switch priority {
	case "", types.PriorityHigh, types.PriorityNormal, types.PriorityLow:
		return nil
	}
	return errors.NewBadRequest(fmt.Sprintf("invalid priority %q", priority))
}
