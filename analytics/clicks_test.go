package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portfolio-analytics/store"
	"portfolio-analytics/utils"
)

func seedUser(t *testing.T, st store.DocumentStore, userID string) {
	t.Helper()
	b := st.NewBatch()
	b.SetIfAbsent(store.UserDoc(userID), map[string]interface{}{
		store.FieldUserID:     userID,
		store.FieldFirstVisit: time.Now().UTC(),
	})
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func pinSampler(t *testing.T, outcome bool) {
	t.Helper()
	prev := avgSampler
	avgSampler = func() bool { return outcome }
	t.Cleanup(func() { avgSampler = prev })
}

func TestRecordLinkClick_FirstAndRepeat(t *testing.T) {
	pinSampler(t, false)
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	const (
		userID = "user_u1aaaaaaa"
		url    = "https://example.com/a"
	)
	urlHash := utils.Fingerprint(url)
	seedUser(t, st, userID)

	// First click: interaction created, aggregate created.
	if _, err := RecordLinkClickByID(ctx, st, userID, url, "Example", now); err != nil {
		t.Fatalf("first click: %v", err)
	}

	u, err := st.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	rec := u.Interactions[urlHash]
	if rec == nil {
		t.Fatalf("user interactions missing entry for %s", urlHash)
	}
	if rec.Count != 1 || !rec.FirstClick.Equal(now) || !rec.LastClick.Equal(now) {
		t.Errorf("first click record = %+v", rec)
	}

	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if agg.TotalClicks != 1 || agg.UniqueUsers != 1 {
		t.Errorf("aggregate after first click = %d clicks / %d users, want 1/1", agg.TotalClicks, agg.UniqueUsers)
	}
	if !agg.FirstClick.Equal(now) || !agg.CreatedAt.Equal(now) {
		t.Errorf("aggregate creation timestamps = %v / %v, want %v", agg.FirstClick, agg.CreatedAt, now)
	}
	if agg.URL != url {
		t.Errorf("aggregate url = %q", agg.URL)
	}

	// Second click by the same user: count bumps, uniqueUsers does not.
	if _, err := RecordLinkClickByID(ctx, st, userID, url, "Example v2", later); err != nil {
		t.Fatalf("second click: %v", err)
	}

	u, _ = st.GetUser(ctx, userID)
	rec = u.Interactions[urlHash]
	if rec.Count != 2 {
		t.Errorf("count after second click = %d, want 2", rec.Count)
	}
	if !rec.FirstClick.Equal(now) {
		t.Errorf("firstClick moved to %v", rec.FirstClick)
	}
	if !rec.LastClick.Equal(later) {
		t.Errorf("lastClick = %v, want %v", rec.LastClick, later)
	}
	if rec.Title != "Example v2" {
		t.Errorf("title should be last-write-wins, got %q", rec.Title)
	}

	agg, _ = st.GetAggregate(ctx, urlHash)
	if agg.TotalClicks != 2 || agg.UniqueUsers != 1 {
		t.Errorf("aggregate after second click = %d/%d, want 2/1", agg.TotalClicks, agg.UniqueUsers)
	}
	if !agg.FirstClick.Equal(now) || !agg.CreatedAt.Equal(now) {
		t.Error("create-only aggregate fields were overwritten")
	}
	if agg.Title != "Example v2" {
		t.Errorf("aggregate title = %q, want last write", agg.Title)
	}
}

func TestRecordLinkClick_UnknownUser(t *testing.T) {
	pinSampler(t, false)
	st := store.NewMemory()

	_, err := RecordLinkClickByID(context.Background(), st, "user_ghost0000", "https://example.com", "X", time.Now())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRecordLinkClick_ReplayDoesNotDoubleCountUniques(t *testing.T) {
	pinSampler(t, false)
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	const (
		userID = "user_replay000"
		url    = "https://example.com/retry"
	)
	urlHash := utils.Fingerprint(url)
	seedUser(t, st, userID)

	// A retried delivery replays the event against the same stale user
	// snapshot: both deliveries land.
	stale, err := st.GetUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RecordLinkClick(ctx, st, stale, url, "Retry", now); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := RecordLinkClick(ctx, st, stale, url, "Retry", now); err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}

	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		t.Fatal(err)
	}
	// Replay safety is delivery-level, not click deduplication: both
	// deliveries count as clicks, but the user stays unique once.
	if agg.TotalClicks != 2 {
		t.Errorf("TotalClicks = %d, want 2", agg.TotalClicks)
	}
	if agg.UniqueUsers != 1 {
		t.Errorf("UniqueUsers = %d, want 1", agg.UniqueUsers)
	}
}

// flakyCommitStore fails the next batch commit while leaving union
// adds untouched, simulating a write that dies between the set add and
// the pipeline execution.
type flakyCommitStore struct {
	*store.Memory
	failNext bool
}

func (s *flakyCommitStore) NewBatch() store.WriteBatch {
	if s.failNext {
		s.failNext = false
		return failingBatch{s.Memory.NewBatch()}
	}
	return s.Memory.NewBatch()
}

type failingBatch struct {
	store.WriteBatch
}

func (f failingBatch) Commit(ctx context.Context) error {
	return errors.New("write rejected")
}

func TestRecordLinkClick_RetryAfterFailedCommitCountsUnique(t *testing.T) {
	pinSampler(t, false)
	st := &flakyCommitStore{Memory: store.NewMemory()}
	ctx := context.Background()
	now := time.Now().UTC()

	const (
		userID = "user_partial00"
		url    = "https://example.com/partial"
	)
	urlHash := utils.Fingerprint(url)
	seedUser(t, st, userID)

	stale, err := st.GetUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}

	// First delivery: the union add lands, the batch commit does not.
	st.failNext = true
	if _, err := RecordLinkClick(ctx, st, stale, url, "Partial", now); err == nil {
		t.Fatal("expected the first delivery to fail")
	}
	if _, err := st.GetAggregate(ctx, urlHash); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aggregate after failed commit: err = %v, want ErrNotFound", err)
	}

	// The queue retries the delivery. Membership already exists, but the
	// interaction never committed, so the unique increment is still owed.
	if _, err := RecordLinkClick(ctx, st, stale, url, "Partial", now); err != nil {
		t.Fatalf("retried delivery: %v", err)
	}

	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalClicks != 1 {
		t.Errorf("TotalClicks = %d, want 1", agg.TotalClicks)
	}
	if agg.UniqueUsers != 1 {
		t.Errorf("UniqueUsers = %d, want 1", agg.UniqueUsers)
	}
}

func TestRecordLinkClick_ConcurrentNewUsers(t *testing.T) {
	pinSampler(t, false)
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	const url = "https://example.com/contended"
	urlHash := utils.Fingerprint(url)
	users := []string{"user_conc00001", "user_conc00002"}
	for _, id := range users {
		seedUser(t, st, id)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, id := range users {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = RecordLinkClickByID(ctx, st, id, url, "Contended", now)
		}(i, id)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("click %d: %v", i, err)
		}
	}

	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		t.Fatal(err)
	}
	if agg.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want exactly 2", agg.UniqueUsers)
	}
	if agg.TotalClicks != 2 {
		t.Errorf("TotalClicks = %d, want 2", agg.TotalClicks)
	}
}

func TestRefreshAverage(t *testing.T) {
	pinSampler(t, true)
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	const (
		userID = "user_avg000000"
		url    = "https://example.com/avg"
	)
	urlHash := utils.Fingerprint(url)
	seedUser(t, st, userID)

	if _, err := RecordLinkClickByID(ctx, st, userID, url, "Avg", now); err != nil {
		t.Fatal(err)
	}
	if _, err := RecordLinkClickByID(ctx, st, userID, url, "Avg", now); err != nil {
		t.Fatal(err)
	}

	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		t.Fatal(err)
	}
	if agg.AvgClicksPerUser != 2.0 {
		t.Errorf("AvgClicksPerUser = %f, want 2.0", agg.AvgClicksPerUser)
	}
}
