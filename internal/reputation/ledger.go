// Package reputation implements the reputation ledger.
//
// The ledger is the sole writer of a user's reputation state: score,
// contribution counters, badges, trust level and history. Every mutation
// goes through Apply, which serializes writes per user ID and persists
// the whole record in one store update, so the trust level can never get
// out of sync with the score that produced it.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/fuelmap/fuelmap/internal/badges"
	"github.com/fuelmap/fuelmap/internal/metrics"
	"github.com/fuelmap/fuelmap/internal/syncutil"
	"github.com/fuelmap/fuelmap/internal/trust"
	"github.com/fuelmap/fuelmap/internal/users"
)

const (
	// rejectionPenalty is deducted on admin rejection, clamped at zero.
	rejectionPenalty = 3
	// moderatorThreshold is the reputation needed for the moderator
	// candidate badge, checked when the trust level changes.
	moderatorThreshold = 500
)

// Ledger applies reputation events to users.
type Ledger struct {
	store users.Store
	locks syncutil.ShardedMutex
	now   func() time.Time
}

// New creates a reputation ledger backed by the given user store.
func New(store users.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Apply applies one reputation event to a user, atomically: the user is
// read, mutated and written back under a per-user lock. Returns the
// updated user. Fails with users.ErrNotFound for unknown IDs.
func (l *Ledger) Apply(ctx context.Context, userID string, ev Event) (*users.User, error) {
	unlock := l.locks.Lock(userID)
	defer unlock()

	u, err := l.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case SubmissionEvent:
		l.applySubmission(u, e.HasImage, e.CreatedStation, false)
	case AdminApprovalEvent:
		// Full submission cost plus the approval bonus; see events.go.
		l.applySubmission(u, false, false, true)
	case AdminRejectionEvent:
		l.applyRejection(u)
	default:
		return nil, fmt.Errorf("reputation: unknown event type %T", ev)
	}

	if err := l.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (l *Ledger) applySubmission(u *users.User, hasImage, createdStation, adminApproved bool) {
	delta := 1
	if hasImage {
		delta = 2
	}
	u.Reputation += delta
	u.ReputationHistory = append(u.ReputationHistory, users.ReputationEntry{
		Delta:     delta,
		Reason:    "Price submission",
		Timestamp: l.now(),
	})
	u.Contributions++

	l.award(u, badges.FirstSubmission)
	if createdStation {
		l.award(u, badges.StationCreator)
	}
	if u.Contributions >= 10 {
		l.award(u, badges.TenContributions)
	}
	if u.Contributions >= 50 {
		l.award(u, badges.FiftyContributions)
	}

	if adminApproved {
		u.VerifiedContributions++
		u.Reputation += 2
		u.ReputationHistory = append(u.ReputationHistory, users.ReputationEntry{
			Delta:     2,
			Reason:    "Admin-approved submission",
			Timestamp: l.now(),
		})
		if u.VerifiedContributions >= 5 {
			l.award(u, badges.VerifiedContributor)
		}
	}

	if newLevel := trust.LevelFor(u.Reputation); newLevel != u.TrustLevel {
		u.TrustLevel = newLevel
		if u.Reputation >= moderatorThreshold {
			l.award(u, badges.ModeratorCandidate)
		}
	}
}

func (l *Ledger) applyRejection(u *users.User) {
	u.Reputation -= rejectionPenalty
	if u.Reputation < 0 {
		u.Reputation = 0
	}
	// The full penalty is logged even when the score was clamped.
	u.ReputationHistory = append(u.ReputationHistory, users.ReputationEntry{
		Delta:     -rejectionPenalty,
		Reason:    "Admin-rejected submission",
		Timestamp: l.now(),
	})
	u.TrustLevel = trust.LevelFor(u.Reputation)
}

// award adds a badge if the key is in the catalog and the user does not
// already hold it. Unknown keys are silently ignored so the catalog can
// drift ahead of (or behind) callers.
func (l *Ledger) award(u *users.User, key string) {
	def, ok := badges.Lookup(key)
	if !ok {
		return
	}
	if u.HasBadge(key) {
		return
	}
	u.Badges = append(u.Badges, users.Badge{
		Key:         key,
		Name:        def.Name,
		Description: def.Description,
		AwardedAt:   l.now(),
	})
	metrics.BadgesAwardedTotal.WithLabelValues(key).Inc()
}
