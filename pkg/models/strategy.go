// Package models defines the core domain models for strategy lifecycle coordination.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyStatus represents the lifecycle state of a strategy.
type StrategyStatus string

const (
	StrategyStatusActive  StrategyStatus = "ACTIVE"  // Remote workflow armed, predictions generated on cadence
	StrategyStatusPaused  StrategyStatus = "PAUSED"  // Remote workflow disarmed, strategy kept
	StrategyStatusStopped StrategyStatus = "STOPPED" // Initial state, also reached via stop; restartable
)

// Valid reports whether s is a known lifecycle state.
func (s StrategyStatus) Valid() bool {
	switch s {
	case StrategyStatusActive, StrategyStatusPaused, StrategyStatusStopped:
		return true
	default:
		return false
	}
}

// RiskLevel is the user-chosen risk appetite for a strategy.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Strategy is a user-owned configuration whose analysis and trade-prediction
// generation is executed by a provisioned remote workflow (or, in local
// deployment mode, by an in-process scheduler).
//
// Invariants maintained by the lifecycle coordinator:
//   - RemoteWorkflowID is non-nil whenever Status is ACTIVE under the
//     remote-engine deployment mode.
//   - NextScheduledAt is non-nil iff Status is ACTIVE.
type Strategy struct {
	ID               string          `json:"id"                           validate:"required"`
	OwnerID          string          `json:"owner_id"                     validate:"required"`
	Name             string          `json:"name"                         validate:"required,min=3"`
	Budget           decimal.Decimal `json:"budget"`
	RiskLevel        RiskLevel       `json:"risk_level"                   validate:"required,oneof=LOW MEDIUM HIGH"`
	Frequency        Frequency       `json:"frequency"                    validate:"required"`
	Status           StrategyStatus  `json:"status"                       validate:"required,oneof=ACTIVE PAUSED STOPPED"`
	RemoteWorkflowID *string         `json:"remote_workflow_id,omitempty"`
	NextScheduledAt  *time.Time      `json:"next_scheduled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsActive reports whether the strategy is currently running.
func (s *Strategy) IsActive() bool {
	return s.Status == StrategyStatusActive
}

// HasRemoteWorkflow reports whether a remote workflow has ever been
// provisioned for this strategy.
func (s *Strategy) HasRemoteWorkflow() bool {
	return s.RemoteWorkflowID != nil && *s.RemoteWorkflowID != ""
}
