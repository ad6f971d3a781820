package moderation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fuelmap/fuelmap/internal/badges"
	"github.com/fuelmap/fuelmap/internal/geocode"
	"github.com/fuelmap/fuelmap/internal/reputation"
	"github.com/fuelmap/fuelmap/internal/stations"
	"github.com/fuelmap/fuelmap/internal/users"
	"github.com/fuelmap/fuelmap/internal/validation"
)

// fixedResolver places every submission at one station, creating it in
// the store on first use.
type fixedResolver struct {
	store   stations.Store
	station *stations.Station
	created bool
	err     error
}

func (r *fixedResolver) Resolve(ctx context.Context, name, address string) (*stations.Station, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	if !r.created {
		if err := r.store.Create(ctx, r.station); err != nil {
			return nil, false, err
		}
		r.created = true
		s, _ := r.store.GetByID(ctx, r.station.ID)
		return s, true, nil
	}
	s, err := r.store.GetByID(ctx, r.station.ID)
	return s, false, err
}

type testEnv struct {
	workflow     *Workflow
	stationStore *stations.MemoryStore
	userStore    *users.MemoryStore
	resolver     *fixedResolver
	clock        *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	stationStore := stations.NewMemoryStore()
	userStore := users.NewMemoryStore()

	ledger := reputation.New(userStore)
	resolver := &fixedResolver{
		store: stationStore,
		station: &stations.Station{
			ID: "stn_1", Name: "Shell Express", Address: "Admiralty Way, Lekki",
			Lat: 6.4478, Lon: 3.4723, Prices: []stations.Price{},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorkflow(stationStore, resolver, ledger, logger)

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	n := 0
	w.newPriceID = func() string { n++; return "prc_" + string(rune('0'+n)) }

	env := &testEnv{
		workflow:     w,
		stationStore: stationStore,
		userStore:    userStore,
		resolver:     resolver,
		clock:        &clock,
	}
	env.seedUser(t, "usr_1")
	return env
}

func (e *testEnv) seedUser(t *testing.T, id string) {
	t.Helper()
	err := e.userStore.Create(context.Background(), &users.User{
		ID: id, Username: "u_" + id, Email: id + "@example.com",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func submitReq(price float64) SubmitRequest {
	return SubmitRequest{
		UserID:      "usr_1",
		StationName: "Shell Express",
		Address:     "Admiralty Way, Lekki",
		FuelType:    stations.FuelPMS,
		Price:       price,
		QueueStatus: stations.QueueShort,
	}
}

func TestSubmitPriceApprovesOptimistically(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.workflow.SubmitPrice(context.Background(), submitReq(650))
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	if result.Flagged {
		t.Error("first submission flagged with no history")
	}
	if !result.CreatedStation {
		t.Error("created = false for a brand new station")
	}
	if result.Price.Moderation.Status() != stations.StatusApproved {
		t.Errorf("status = %v, want approved", result.Price.Moderation.Status())
	}

	// Submitter got credited.
	u, err := env.userStore.GetByID(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Reputation != 1 || u.Contributions != 1 {
		t.Errorf("reputation/contributions = %d/%d, want 1/1", u.Reputation, u.Contributions)
	}
	if !u.HasBadge(badges.FirstSubmission) || !u.HasBadge(badges.StationCreator) {
		t.Error("first_submission and station_creator badges expected")
	}
}

func TestSubmitPriceValidation(t *testing.T) {
	env := newTestEnv(t)

	req := submitReq(650)
	req.FuelType = "JET-A1"
	_, err := env.workflow.SubmitPrice(context.Background(), req)
	var verrs validation.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want validation errors", err)
	}

	req = submitReq(20) // below minimum
	if _, err := env.workflow.SubmitPrice(context.Background(), req); !errors.As(err, &verrs) {
		t.Errorf("price 20 err = %v, want validation errors", err)
	}

	req = submitReq(650)
	req.QueueStatus = "massive"
	if _, err := env.workflow.SubmitPrice(context.Background(), req); !errors.As(err, &verrs) {
		t.Errorf("bad queue status err = %v, want validation errors", err)
	}
}

func TestSubmitPriceGeocodeFailure(t *testing.T) {
	env := newTestEnv(t)
	env.resolver.err = geocode.ErrNoLocation

	_, err := env.workflow.SubmitPrice(context.Background(), submitReq(650))
	if !errors.Is(err, geocode.ErrNoLocation) {
		t.Errorf("err = %v, want geocode.ErrNoLocation", err)
	}
}

func TestSubmitPriceCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.workflow.SubmitPrice(ctx, submitReq(650)); err != nil {
		t.Fatalf("first SubmitPrice: %v", err)
	}

	// Five minutes later: still cooling down.
	env.advance(5 * time.Minute)
	_, err := env.workflow.SubmitPrice(ctx, submitReq(655))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatal("expected CooldownError with remaining wait")
	}
	if cooldown.RetryAfter != 5*time.Minute {
		t.Errorf("retryAfter = %v, want 5m", cooldown.RetryAfter)
	}

	// Eleven minutes after the first: allowed again.
	env.advance(6 * time.Minute)
	if _, err := env.workflow.SubmitPrice(ctx, submitReq(655)); err != nil {
		t.Errorf("submission at 11m failed: %v", err)
	}

	// A different user is never blocked by someone else's cooldown.
	env.seedUser(t, "usr_2")
	req := submitReq(660)
	req.UserID = "usr_2"
	if _, err := env.workflow.SubmitPrice(ctx, req); err != nil {
		t.Errorf("other user's submission failed: %v", err)
	}
}

func TestSubmitPriceAnomalyFlagging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Build approved history of five prices around 100 from distinct users.
	for i := 0; i < 5; i++ {
		id := "usr_h" + string(rune('0'+i))
		env.seedUser(t, id)
		req := submitReq(100)
		req.UserID = id
		if _, err := env.workflow.SubmitPrice(ctx, req); err != nil {
			t.Fatalf("history submission %d: %v", i, err)
		}
		env.advance(time.Minute)
	}

	env.seedUser(t, "usr_outlier")
	req := submitReq(131)
	req.UserID = "usr_outlier"
	result, err := env.workflow.SubmitPrice(ctx, req)
	if err != nil {
		t.Fatalf("outlier SubmitPrice: %v", err)
	}
	if !result.Flagged {
		t.Fatal("131 against five approved 100s must be flagged")
	}
	if result.Price.Moderation.Status() != stations.StatusPending {
		t.Errorf("status = %v, want pending", result.Price.Moderation.Status())
	}
	if result.Price.Moderation.Reason() != "Suspicious: 131, avg ~100.00" {
		t.Errorf("reason = %q", result.Price.Moderation.Reason())
	}

	// A flagged submission still earns the base reputation.
	u, _ := env.userStore.GetByID(ctx, "usr_outlier")
	if u.Reputation != 1 {
		t.Errorf("outlier reputation = %d, want 1", u.Reputation)
	}
}

func TestReportPriceDownvoteFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.workflow.SubmitPrice(ctx, submitReq(650))
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	priceID := result.Price.ID

	for _, voter := range []string{"usr_v1", "usr_v2"} {
		env.seedUser(t, voter)
		if _, err := env.workflow.ReportPrice(ctx, voter, "stn_1", priceID); err != nil {
			t.Fatalf("ReportPrice %s: %v", voter, err)
		}
	}

	// Duplicate vote: rejected, count unchanged.
	_, err = env.workflow.ReportPrice(ctx, "usr_v1", "stn_1", priceID)
	if !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("duplicate vote err = %v, want ErrAlreadyReported", err)
	}
	s, _ := env.stationStore.GetByID(ctx, "stn_1")
	p, _ := s.FindPrice(priceID)
	if len(p.Downvotes) != 2 {
		t.Fatalf("downvotes = %d after duplicate, want 2", len(p.Downvotes))
	}
	if p.Moderation.Status() != stations.StatusApproved {
		t.Fatalf("status = %v before third vote, want approved", p.Moderation.Status())
	}

	// Third distinct vote flips the price to pending.
	env.seedUser(t, "usr_v3")
	price, err := env.workflow.ReportPrice(ctx, "usr_v3", "stn_1", priceID)
	if err != nil {
		t.Fatalf("third ReportPrice: %v", err)
	}
	if price.Moderation.Status() != stations.StatusPending {
		t.Errorf("status = %v, want pending after 3 downvotes", price.Moderation.Status())
	}
	if price.Moderation.Reason() != communityFlagReason {
		t.Errorf("reason = %q", price.Moderation.Reason())
	}
}

func TestReportPriceNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.workflow.ReportPrice(ctx, "usr_1", "stn_missing", "prc_x"); !errors.Is(err, stations.ErrNotFound) {
		t.Errorf("missing station err = %v, want stations.ErrNotFound", err)
	}

	if _, err := env.workflow.SubmitPrice(ctx, submitReq(650)); err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	if _, err := env.workflow.ReportPrice(ctx, "usr_1", "stn_1", "prc_missing"); !errors.Is(err, stations.ErrPriceNotFound) {
		t.Errorf("missing price err = %v, want stations.ErrPriceNotFound", err)
	}
}

func TestReviewApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.workflow.SubmitPrice(ctx, submitReq(650))
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}

	price, err := env.workflow.ReviewPrice(ctx, "stn_1", result.Price.ID, DecisionApprove)
	if err != nil {
		t.Fatalf("ReviewPrice: %v", err)
	}
	if price.Moderation.Status() != stations.StatusApproved {
		t.Errorf("status = %v, want approved", price.Moderation.Status())
	}
	if price.Moderation.Reason() != "" {
		t.Errorf("reason = %q, want cleared", price.Moderation.Reason())
	}

	// Approval re-applies the submission cost plus the bonus: the
	// submitter ends at 1 (submit) + 1 + 2 (approval) = 4.
	u, _ := env.userStore.GetByID(ctx, "usr_1")
	if u.Reputation != 4 {
		t.Errorf("reputation = %d, want 4", u.Reputation)
	}
	if u.VerifiedContributions != 1 {
		t.Errorf("verified contributions = %d, want 1", u.VerifiedContributions)
	}
}

func TestReviewReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.workflow.SubmitPrice(ctx, submitReq(650))
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}

	price, err := env.workflow.ReviewPrice(ctx, "stn_1", result.Price.ID, DecisionReject)
	if err != nil {
		t.Fatalf("ReviewPrice: %v", err)
	}
	if price.Moderation.Status() != stations.StatusRejected {
		t.Errorf("status = %v, want rejected", price.Moderation.Status())
	}
	if price.Moderation.Flagged() {
		t.Error("rejected price must not read as flagged")
	}

	// Reputation 1 - 3, clamped at zero.
	u, _ := env.userStore.GetByID(ctx, "usr_1")
	if u.Reputation != 0 {
		t.Errorf("reputation = %d, want 0", u.Reputation)
	}
}

func TestReviewInvalidDecision(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.workflow.ReviewPrice(context.Background(), "stn_1", "prc_1", "maybe")
	if !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("err = %v, want ErrInvalidDecision", err)
	}
}

func TestDownvotesCanReopenApprovedPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.workflow.SubmitPrice(ctx, submitReq(650))
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	if _, err := env.workflow.ReviewPrice(ctx, "stn_1", result.Price.ID, DecisionApprove); err != nil {
		t.Fatalf("ReviewPrice: %v", err)
	}

	for _, voter := range []string{"usr_v1", "usr_v2", "usr_v3"} {
		env.seedUser(t, voter)
		if _, err := env.workflow.ReportPrice(ctx, voter, "stn_1", result.Price.ID); err != nil {
			t.Fatalf("ReportPrice %s: %v", voter, err)
		}
	}

	s, _ := env.stationStore.GetByID(ctx, "stn_1")
	p, _ := s.FindPrice(result.Price.ID)
	if p.Moderation.Status() != stations.StatusPending {
		t.Errorf("status = %v, want pending after community flags reopened review", p.Moderation.Status())
	}
}

func TestPendingStations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.workflow.SubmitPrice(ctx, submitReq(650)); err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	got, err := env.workflow.PendingStations(ctx)
	if err != nil {
		t.Fatalf("PendingStations: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("pending = %d with nothing flagged, want 0", len(got))
	}
}
