package changerequest

import "fmt"

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusRejected, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown change request status %q", s)
}

// IsTerminal reports whether no forward transition is expected from s.
// Rejected can still be reopened.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	case StatusDraft, StatusPendingReview:
		return false
	}
	return false
}

// FieldsEditable reports whether descriptive and financial fields may change.
func (s Status) FieldsEditable() bool {
	switch s {
	case StatusDraft, StatusPendingReview:
		return true
	case StatusApproved, StatusRejected, StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusCancelled},
	StatusPendingReview: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:      {StatusCompleted},
	StatusRejected:      {StatusDraft},
	StatusCompleted:     nil,
	StatusCancelled:     nil,
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryScopeChange   Category = "scope_change"
	CategoryDesignChange  Category = "design_change"
	CategorySiteCondition Category = "site_condition"
	CategoryOwnerRequest  Category = "owner_request"
	CategoryRegulatory    Category = "regulatory"
	CategoryOther         Category = "other"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryScopeChange, CategoryDesignChange, CategorySiteCondition,
		CategoryOwnerRequest, CategoryRegulatory, CategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("unknown change request category %q", s)
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	}
	return "", fmt.Errorf("unknown change request priority %q", s)
}

// DeltaSource tells whether the delta value is entered by hand or summed from
// cost line items.
type DeltaSource string

const (
	DeltaSourceManual    DeltaSource = "manual"
	DeltaSourceLineItems DeltaSource = "line_items"
)

func ParseDeltaSource(s string) (DeltaSource, error) {
	switch d := DeltaSource(s); d {
	case DeltaSourceManual, DeltaSourceLineItems:
		return d, nil
	}
	return "", fmt.Errorf("unknown delta source %q", s)
}
