package reputation

// Event is a reputation-affecting lifecycle event. Each variant carries
// only the fields it needs; the ledger dispatches on the concrete type.
type Event interface {
	isEvent()
}

// SubmissionEvent is applied when a user submits a price.
type SubmissionEvent struct {
	// HasImage bumps the base reward from +1 to +2.
	HasImage bool
	// CreatedStation is set when the submission created a new station.
	CreatedStation bool
}

// AdminApprovalEvent is applied when an admin approves a pending price.
//
// Observed platform behavior: approval re-applies the full submission
// cost (base +1 and a contribution increment) on top of the +2 approval
// bonus. See the double-credit note in DESIGN.md before changing this.
type AdminApprovalEvent struct{}

// AdminRejectionEvent is applied when an admin rejects a pending price.
type AdminRejectionEvent struct{}

func (SubmissionEvent) isEvent()     {}
func (AdminApprovalEvent) isEvent()  {}
func (AdminRejectionEvent) isEvent() {}
