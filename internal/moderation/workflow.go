package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fuelmap/fuelmap/internal/idgen"
	"github.com/fuelmap/fuelmap/internal/metrics"
	"github.com/fuelmap/fuelmap/internal/reputation"
	"github.com/fuelmap/fuelmap/internal/stations"
	"github.com/fuelmap/fuelmap/internal/syncutil"
	"github.com/fuelmap/fuelmap/internal/traces"
	"github.com/fuelmap/fuelmap/internal/users"
	"github.com/fuelmap/fuelmap/internal/validation"

	"go.opentelemetry.io/otel/codes"
)

const (
	// submissionCooldown is the minimum gap between two submissions by
	// the same user to the same station.
	submissionCooldown = 10 * time.Minute
	// downvoteThreshold is the distinct-voter count that forces a price
	// back into review.
	downvoteThreshold = 3

	communityFlagReason = "Flagged by community downvotes"
)

var (
	// ErrRateLimited indicates the per-user-per-station cooldown is active.
	ErrRateLimited = errors.New("moderation: submission cooldown active")
	// ErrAlreadyReported indicates a duplicate downvote from the same user.
	ErrAlreadyReported = errors.New("moderation: price already reported by this user")
	// ErrInvalidDecision indicates an unknown review decision.
	ErrInvalidDecision = errors.New("moderation: decision must be approve or reject")
)

// CooldownError wraps ErrRateLimited with the remaining wait.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("moderation: submission cooldown active, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrRateLimited }

// StationResolver resolves a name/address pair to a station, creating
// one when nothing nearby matches.
type StationResolver interface {
	Resolve(ctx context.Context, name, rawAddress string) (*stations.Station, bool, error)
}

// ReputationLedger applies lifecycle events to a user's reputation.
type ReputationLedger interface {
	Apply(ctx context.Context, userID string, ev reputation.Event) (*users.User, error)
}

// Events receives workflow notifications, typically the realtime hub.
type Events interface {
	BroadcastPriceSubmitted(data map[string]interface{})
	BroadcastPriceFlagged(data map[string]interface{})
	BroadcastPriceReviewed(data map[string]interface{})
	BroadcastStationCreated(data map[string]interface{})
}

type noopEvents struct{}

func (noopEvents) BroadcastPriceSubmitted(map[string]interface{}) {}
func (noopEvents) BroadcastPriceFlagged(map[string]interface{})   {}
func (noopEvents) BroadcastPriceReviewed(map[string]interface{})  {}
func (noopEvents) BroadcastStationCreated(map[string]interface{}) {}

// Workflow drives a price submission through resolution, the anomaly
// check and persistence, and routes review outcomes into the ledger.
//
// Price-list mutations are serialized per station ID, which closes the
// window where two concurrent submissions from one user could both pass
// the cooldown check.
type Workflow struct {
	stations stations.Store
	resolver StationResolver
	ledger   ReputationLedger
	detector Detector
	events   Events
	logger   *slog.Logger

	locks      *syncutil.ContextShardedMutex
	now        func() time.Time
	newPriceID func() string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithEvents wires a realtime event sink.
func WithEvents(ev Events) Option {
	return func(w *Workflow) { w.events = ev }
}

// WithDetector overrides the anomaly detector tuning.
func WithDetector(d Detector) Option {
	return func(w *Workflow) { w.detector = d }
}

// NewWorkflow creates a moderation workflow.
func NewWorkflow(store stations.Store, resolver StationResolver, ledger ReputationLedger, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		stations:   store,
		resolver:   resolver,
		ledger:     ledger,
		detector:   DefaultDetector(),
		events:     noopEvents{},
		logger:     logger,
		locks:      syncutil.NewContextShardedMutex(),
		now:        time.Now,
		newPriceID: func() string { return idgen.WithPrefix("prc_") },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SubmitRequest is one user price submission.
type SubmitRequest struct {
	UserID      string
	StationName string
	Address     string
	FuelType    string
	Price       float64
	QueueStatus string
	HasImage    bool
}

// SubmitResult reports what a submission produced.
type SubmitResult struct {
	Station        *stations.Station
	Price          *stations.Price
	CreatedStation bool
	Flagged        bool
}

// SubmitPrice validates and records one price submission. The price
// publishes optimistically as approved unless the anomaly detector
// sends it to review. Returns validation.ValidationErrors,
// geocode.ErrNoLocation (via the resolver) or ErrRateLimited.
func (w *Workflow) SubmitPrice(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := traces.StartSpan(ctx, "moderation.SubmitPrice",
		traces.UserID(req.UserID), traces.FuelType(req.FuelType), traces.Amount(req.Price))
	defer span.End()

	req.QueueStatus = stations.NormalizeQueueStatus(req.QueueStatus)
	if errs := validation.Validate(
		validation.Required("name", req.StationName),
		validation.Required("address", req.Address),
		validation.Required("fuelType", req.FuelType),
		validation.OneOf("fuelType", req.FuelType, stations.FuelTypes...),
		validation.FloatRange("price", req.Price, stations.MinPrice, stations.MaxPrice),
		validation.OneOf("queueStatus", req.QueueStatus, stations.QueueStatuses...),
	); len(errs) > 0 {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, errs
	}

	// Geocoding happens outside the station lock: it is slow, and the
	// station is not known until the address resolves.
	station, created, err := w.resolver.Resolve(ctx, req.StationName, req.Address)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("geocode_failed").Inc()
		return nil, err
	}
	if created {
		metrics.StationsCreatedTotal.Inc()
		w.events.BroadcastStationCreated(map[string]interface{}{
			"stationId": station.ID,
			"name":      station.Name,
			"lat":       station.Lat,
			"lon":       station.Lon,
		})
	}

	unlock, err := w.locks.LockContext(ctx, station.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Reload under the lock; the resolver's copy may be stale.
	station, err = w.stations.GetByID(ctx, station.ID)
	if err != nil {
		return nil, err
	}

	now := w.now()
	if last := station.LastPriceBy(req.UserID); last != nil {
		if age := now.Sub(last.SubmittedAt); age < submissionCooldown {
			metrics.SubmissionsTotal.WithLabelValues("rate_limited").Inc()
			return nil, &CooldownError{RetryAfter: submissionCooldown - age}
		}
	}

	price := stations.Price{
		ID:          w.newPriceID(),
		FuelType:    req.FuelType,
		Amount:      req.Price,
		QueueStatus: req.QueueStatus,
		SubmittedBy: req.UserID,
		SubmittedAt: now,
		Moderation:  stations.Approved(),
	}
	station.Prices = append(station.Prices, price)

	verdict := w.detector.Evaluate(req.Price, station.ApprovedAmounts(req.FuelType))
	entry := &station.Prices[len(station.Prices)-1]
	if verdict.Flagged {
		entry.Moderation = stations.Pending(verdict.Reason)
	}

	if err := w.stations.Update(ctx, station); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save price")
		return nil, err
	}

	if _, err := w.ledger.Apply(ctx, req.UserID, reputation.SubmissionEvent{
		HasImage:       req.HasImage,
		CreatedStation: created,
	}); err != nil {
		// The price is saved; reputation drift is logged, not rolled back.
		w.logger.Error("reputation update failed after submission",
			"user_id", req.UserID, "station_id", station.ID, "error", err)
	}

	eventData := map[string]interface{}{
		"stationId": station.ID,
		"priceId":   entry.ID,
		"fuelType":  entry.FuelType,
		"price":     entry.Amount,
	}
	if verdict.Flagged {
		metrics.SubmissionsTotal.WithLabelValues("flagged").Inc()
		metrics.PricesFlaggedTotal.WithLabelValues("anomaly").Inc()
		w.events.BroadcastPriceFlagged(eventData)
		w.logger.Info("submission flagged",
			"station_id", station.ID, "price_id", entry.ID, "reason", verdict.Reason)
	} else {
		metrics.SubmissionsTotal.WithLabelValues("approved").Inc()
		w.events.BroadcastPriceSubmitted(eventData)
	}

	return &SubmitResult{
		Station:        station,
		Price:          entry,
		CreatedStation: created,
		Flagged:        verdict.Flagged,
	}, nil
}

// ReportPrice records a community downvote. The third distinct voter
// forces the price into review. A repeat voter gets ErrAlreadyReported
// and the count stays put. Nothing stops a submitter reporting their
// own price.
func (w *Workflow) ReportPrice(ctx context.Context, userID, stationID, priceID string) (*stations.Price, error) {
	unlock, err := w.locks.LockContext(ctx, stationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	station, err := w.stations.GetByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	price, ok := station.FindPrice(priceID)
	if !ok {
		return nil, stations.ErrPriceNotFound
	}

	if price.HasDownvote(userID) {
		return nil, ErrAlreadyReported
	}
	price.Downvotes = append(price.Downvotes, userID)

	newlyFlagged := false
	if len(price.Downvotes) >= downvoteThreshold {
		// Overwrites any prior reason, including an anomaly one.
		newlyFlagged = price.Moderation.Status() != stations.StatusPending
		price.Moderation = stations.Pending(communityFlagReason)
	}

	if err := w.stations.Update(ctx, station); err != nil {
		return nil, err
	}

	metrics.DownvotesTotal.Inc()
	if newlyFlagged {
		metrics.PricesFlaggedTotal.WithLabelValues("community").Inc()
		w.events.BroadcastPriceFlagged(map[string]interface{}{
			"stationId": station.ID,
			"priceId":   price.ID,
			"fuelType":  price.FuelType,
			"reason":    communityFlagReason,
		})
		w.logger.Info("price flagged by community",
			"station_id", station.ID, "price_id", price.ID, "downvotes", len(price.Downvotes))
	}

	out := *price
	return &out, nil
}

// Review decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ReviewPrice applies an admin decision to a price. Approval clears the
// flag and reason and credits the submitter; rejection penalizes them.
func (w *Workflow) ReviewPrice(ctx context.Context, stationID, priceID, decision string) (*stations.Price, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, ErrInvalidDecision
	}

	ctx, span := traces.StartSpan(ctx, "moderation.ReviewPrice",
		traces.StationID(stationID), traces.PriceID(priceID))
	defer span.End()

	unlock, err := w.locks.LockContext(ctx, stationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	station, err := w.stations.GetByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	price, ok := station.FindPrice(priceID)
	if !ok {
		return nil, stations.ErrPriceNotFound
	}

	var ev reputation.Event
	if decision == DecisionApprove {
		price.Moderation = stations.Approved()
		ev = reputation.AdminApprovalEvent{}
	} else {
		price.Moderation = stations.Rejected(price.Moderation.Reason())
		ev = reputation.AdminRejectionEvent{}
	}

	if err := w.stations.Update(ctx, station); err != nil {
		return nil, err
	}

	if price.SubmittedBy != "" {
		if _, err := w.ledger.Apply(ctx, price.SubmittedBy, ev); err != nil {
			w.logger.Error("reputation update failed after review",
				"user_id", price.SubmittedBy, "price_id", price.ID, "error", err)
		}
	}

	metrics.ReviewsTotal.WithLabelValues(decision).Inc()
	w.events.BroadcastPriceReviewed(map[string]interface{}{
		"stationId": station.ID,
		"priceId":   price.ID,
		"fuelType":  price.FuelType,
		"decision":  decision,
	})

	out := *price
	return &out, nil
}

// PendingStations lists stations that have prices awaiting review.
func (w *Workflow) PendingStations(ctx context.Context) ([]*stations.Station, error) {
	return w.stations.ListPending(ctx)
}
