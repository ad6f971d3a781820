package stations

import (
	"encoding/json"
	"time"
)

// Status is a price's moderation status.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

// Moderation is a price's moderation state as a single tagged value.
// Status and reason move together: only pending and rejected states
// carry a reason, and "flagged" is derived from the status rather than
// stored, so contradictory combinations cannot be represented. The zero
// value is Approved.
type Moderation struct {
	status Status
	reason string
}

// Approved is the optimistic-publish state.
func Approved() Moderation {
	return Moderation{status: StatusApproved}
}

// Pending marks a price as under review for the given reason.
func Pending(reason string) Moderation {
	return Moderation{status: StatusPending, reason: reason}
}

// Rejected is the terminal negative state.
func Rejected(reason string) Moderation {
	return Moderation{status: StatusRejected, reason: reason}
}

// Status returns the moderation status. The zero value reads as approved.
func (m Moderation) Status() Status {
	if m.status == "" {
		return StatusApproved
	}
	return m.status
}

// Flagged reports whether the price is awaiting review.
func (m Moderation) Flagged() bool {
	return m.Status() == StatusPending
}

// Reason returns the status reason, empty for approved prices.
func (m Moderation) Reason() string {
	return m.reason
}

// moderationFromParts rebuilds a Moderation from stored fields. Used by
// the persistence layer; an unknown status falls back to approved.
func moderationFromParts(status Status, reason string) Moderation {
	switch status {
	case StatusPending:
		return Pending(reason)
	case StatusRejected:
		return Rejected(reason)
	default:
		return Approved()
	}
}

// priceWire is the client-facing JSON shape. Clients predate the tagged
// moderation state, so status, flagged and statusReason stay flat.
type priceWire struct {
	ID           string   `json:"id"`
	FuelType     string   `json:"fuelType"`
	Amount       float64  `json:"price"`
	QueueStatus  string   `json:"queueStatus"`
	SubmittedBy  string   `json:"submittedBy"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Status       Status   `json:"status"`
	Flagged      bool     `json:"flagged"`
	StatusReason *string  `json:"statusReason"`
	Downvotes    []string `json:"downvotes,omitempty"`
}

// MarshalJSON flattens the moderation state into the wire fields.
func (p Price) MarshalJSON() ([]byte, error) {
	var reason *string
	if r := p.Moderation.Reason(); r != "" {
		reason = &r
	}
	return json.Marshal(priceWire{
		ID:           p.ID,
		FuelType:     p.FuelType,
		Amount:       p.Amount,
		QueueStatus:  p.QueueStatus,
		SubmittedBy:  p.SubmittedBy,
		SubmittedAt:  p.SubmittedAt,
		Status:       p.Moderation.Status(),
		Flagged:      p.Moderation.Flagged(),
		StatusReason: reason,
		Downvotes:    p.Downvotes,
	})
}

// UnmarshalJSON rebuilds the tagged state from the wire fields. The
// flagged flag is ignored; it is derived from status.
func (p *Price) UnmarshalJSON(data []byte) error {
	var w priceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var reason string
	if w.StatusReason != nil {
		reason = *w.StatusReason
	}
	p.ID = w.ID
	p.FuelType = w.FuelType
	p.Amount = w.Amount
	p.QueueStatus = w.QueueStatus
	p.SubmittedBy = w.SubmittedBy
	p.SubmittedAt = w.SubmittedAt
	p.Moderation = moderationFromParts(w.Status, reason)
	p.Downvotes = w.Downvotes
	return nil
}
