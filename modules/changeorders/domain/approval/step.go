package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StepStatus string

const (
	// StepQueued waits for the preceding levels.
	StepQueued    StepStatus = "queued"
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepCancelled StepStatus = "cancelled"
)

func (s StepStatus) IsDecided() bool {
	switch s {
	case StepApproved, StepRejected, StepCancelled:
		return true
	case StepQueued, StepPending:
		return false
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Outcome is the step status a decision leads to.
func (d Decision) Outcome() StepStatus {
	switch d {
	case DecisionApprove:
		return StepApproved
	case DecisionReject:
		return StepRejected
	}
	return ""
}

type Step struct {
	ID              uuid.UUID  `json:"id"`
	ChangeRequestID uuid.UUID  `json:"change_request_id"`
	ApproverID      uuid.UUID  `json:"approver_id"`
	Level           int        `json:"level"`
	Status          StepStatus `json:"status"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	Comment         *string    `json:"comment,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	cp := *s
	if s.DecidedAt != nil {
		v := *s.DecidedAt
		cp.DecidedAt = &v
	}
	if s.Comment != nil {
		v := *s.Comment
		cp.Comment = &v
	}
	return &cp
}

// BuildChain lays out one step per approver, level 1 pending and the rest
// queued.
func BuildChain(requestID uuid.UUID, approvers []uuid.UUID, now time.Time) []*Step {
	steps := make([]*Step, 0, len(approvers))
	for i, approverID := range approvers {
		status := StepQueued
		if i == 0 {
			status = StepPending
		}
		steps = append(steps, &Step{
			ID:              uuid.New(),
			ChangeRequestID: requestID,
			ApproverID:      approverID,
			Level:           i + 1,
			Status:          status,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return steps
}
