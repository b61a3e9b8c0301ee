package analytics

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"portfolio-analytics/model"
	"portfolio-analytics/store"
	"portfolio-analytics/utils"

	"github.com/rs/zerolog/log"
)

// Fraction of link-click writes that opportunistically refresh the
// derived avgClicksPerUser field. The aggregate is always derivable at
// read time from totalClicks/uniqueUsers; refreshing on every write
// would need a consistent read after each increment, which was rejected
// for cost. Staleness here is intentional eventual consistency.
const avgRefreshRate = 0.1

// avgSampler decides whether this write refreshes the stored average.
// Variable so tests can pin the outcome.
var avgSampler = func() bool { return rand.Float64() < avgRefreshRate }

// RecordLinkClick applies one external-link click by an already-loaded
// user: it merges the per-user interaction record and upserts the URL
// aggregate in a single batched write. Counters go through the store's
// atomic increment and union-append primitives, so concurrent clicks on
// the same URL never lose updates, and replaying a delivery cannot
// double-count uniqueUsers. totalClicks still counts every delivery;
// only the unique-user increment is guarded.
//
// The returned record is the interaction as written, for cache
// write-through by the caller.
func RecordLinkClick(ctx context.Context, st store.DocumentStore, user *model.User, url, title string, now time.Time) (*model.LinkClick, error) {
	urlHash := utils.Fingerprint(url)

	var rec model.LinkClick
	if existing, ok := user.Interactions[urlHash]; ok {
		rec = *existing
		rec.Count++
		rec.LastClick = now
		rec.Title = title
	} else {
		rec = model.LinkClick{
			URL:        url,
			Title:      title,
			Count:      1,
			FirstClick: now,
			LastClick:  now,
		}
	}

	linkDoc := store.LinkDoc(urlHash)

	// Membership first: SADD-style union is atomic and idempotent, and
	// its result gates the uniqueUsers increment. Two concurrent new
	// users each add their own member and each increment by one; a
	// replayed delivery adds nothing and increments nothing.
	newUser, err := st.UnionAppend(ctx, linkDoc, store.FieldClickedBy, user.UserID)
	if err != nil {
		return nil, err
	}
	if !newUser {
		if _, ok := user.Interactions[urlHash]; !ok {
			newUser, err = uniqueIncrementOwed(ctx, st, user.UserID, urlHash)
			if err != nil {
				return nil, err
			}
		}
	}

	b := st.NewBatch()
	b.MergeSet(store.UserDoc(user.UserID), map[string]interface{}{
		store.PrefixInteractions + urlHash: rec,
	})
	b.SetIfAbsent(linkDoc, map[string]interface{}{
		store.FieldURLHash:    urlHash,
		store.FieldURL:        url,
		store.FieldFirstClick: now,
		store.FieldCreatedAt:  now,
	})
	b.MergeSet(linkDoc, map[string]interface{}{
		store.FieldTitle:     title,
		store.FieldLastClick: now,
		store.FieldUpdatedAt: now,
	})
	b.Increment(linkDoc, store.FieldTotalClicks, 1)
	if newUser {
		b.Increment(linkDoc, store.FieldUniqueUsers, 1)
	}
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}

	if avgSampler() {
		if err := RefreshAverage(ctx, st, urlHash); err != nil {
			// Best effort; the value is derivable at read time.
			log.Debug().Err(err).Str("url_hash", urlHash).Msg("Average refresh skipped")
		}
	}

	return &rec, nil
}

// uniqueIncrementOwed re-reads the user when set membership exists but
// the caller's snapshot has no interaction record for the URL. The
// snapshot alone cannot distinguish two states: a stale snapshot after
// a fully committed click (the record is in the store), or an earlier
// commit that failed after the union add went through (it is not).
// Only the second still owes the uniqueUsers increment.
func uniqueIncrementOwed(ctx context.Context, st store.DocumentStore, userID, urlHash string) (bool, error) {
	fresh, err := st.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	_, committed := fresh.Interactions[urlHash]
	return !committed, nil
}

// RecordLinkClickByID loads the user record and applies the click.
// Returns store.ErrNotFound for unknown users.
func RecordLinkClickByID(ctx context.Context, st store.DocumentStore, userID, url, title string, now time.Time) (*model.LinkClick, error) {
	user, err := st.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return RecordLinkClick(ctx, st, user, url, title, now)
}

// RefreshAverage recomputes avgClicksPerUser from the current counters.
func RefreshAverage(ctx context.Context, st store.DocumentStore, urlHash string) error {
	agg, err := st.GetAggregate(ctx, urlHash)
	if err != nil {
		return err
	}
	if agg.UniqueUsers == 0 {
		return nil
	}

	b := st.NewBatch()
	b.MergeSet(store.LinkDoc(urlHash), map[string]interface{}{
		store.FieldAvgClicksPerUser: float64(agg.TotalClicks) / float64(agg.UniqueUsers),
	})
	return b.Commit(ctx)
}
