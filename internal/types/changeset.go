package types

import "time"

// ChangeSetStatus is the lifecycle state of a draft.
type ChangeSetStatus string

// ChangeSet lifecycle states. Published and discarded are absorbing: no
// transition ever leaves them.
const (
	StatusDraft      ChangeSetStatus = "draft"
	StatusValidating ChangeSetStatus = "validating"
	StatusValidated  ChangeSetStatus = "validated"
	StatusPublishing ChangeSetStatus = "publishing"
	StatusPublished  ChangeSetStatus = "published"
	StatusDiscarded  ChangeSetStatus = "discarded"
)

// IsValid checks whether the status is one of the known lifecycle states.
func (s ChangeSetStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusValidating, StatusValidated, StatusPublishing, StatusPublished, StatusDiscarded:
		return true
	}
	return false
}

// IsTerminal reports whether the status is absorbing.
func (s ChangeSetStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusDiscarded
}

// legalTransitions is the ChangeSet state machine. A save on a validated
// draft drops it back to draft: edits invalidate a prior validation.
var legalTransitions = map[ChangeSetStatus][]ChangeSetStatus{
	StatusDraft:      {StatusValidating, StatusValidated, StatusDiscarded},
	StatusValidating: {StatusValidated, StatusDraft, StatusDiscarded},
	StatusValidated:  {StatusDraft, StatusPublishing, StatusDiscarded},
	StatusPublishing: {StatusPublished, StatusDiscarded},
	StatusPublished:  nil,
	StatusDiscarded:  nil,
}

// CanTransitionTo checks one step of the state machine.
func (s ChangeSetStatus) CanTransitionTo(next ChangeSetStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// ChangeSet is a named draft scope for a batch of segment edits.
type ChangeSet struct {
	ID          string          `json:"id"`
	RoutingID   string          `json:"routing_id"`
	Status      ChangeSetStatus `json:"status"`
	CreatedBy   string          `json:"created_by,omitempty"`
	PublishedBy string          `json:"published_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// IsOpen reports whether the ChangeSet still accepts edits or lifecycle
// operations.
func (c *ChangeSet) IsOpen() bool {
	return !c.Status.IsTerminal()
}
