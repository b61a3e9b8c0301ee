// Package analytics turns queued events into a minimal set of atomic
// operations against the document store. The writer never retries:
// failed batches go back to the queue, so re-running a batch must stay
// safe, which is why every counter is an atomic increment rather than a
// read-modify-write.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-analytics/model"
	"portfolio-analytics/store"
	"portfolio-analytics/useragent"

	"github.com/rs/zerolog/log"
)

// ReferralResolver resolves a referral hash to its human label.
type ReferralResolver interface {
	Lookup(ctx context.Context, hash string) model.ReferralSource
}

// Writer synchronizes one client's queued events into the store.
type Writer struct {
	store     store.DocumentStore
	userID    string
	profiler  *useragent.Profiler
	referrals ReferralResolver

	deviceOnce sync.Once
	device     model.DeviceInfo
}

// NewWriter creates a writer for the given user. profiler and referrals
// may be nil; device info then degrades to unknown and attribution to
// organic.
func NewWriter(st store.DocumentStore, userID string, profiler *useragent.Profiler, referrals ReferralResolver) *Writer {
	return &Writer{
		store:     st,
		userID:    userID,
		profiler:  profiler,
		referrals: referrals,
	}
}

// Sync writes a batch of queued events. Ordering within the batch is
// preserved. The first failure aborts the batch; the caller re-queues
// everything, and re-running the batch is safe.
func (w *Writer) Sync(ctx context.Context, events []model.Event) error {
	for _, ev := range events {
		var err error
		switch ev.Kind {
		case model.KindCommand:
			err = w.recordCommand(ctx, ev)
		case model.KindLinkClick:
			_, err = RecordLinkClickByID(ctx, w.store, w.userID, ev.URL, ev.Title, ev.Timestamp)
		case model.KindInteraction:
			err = w.recordInteraction(ctx, ev)
		default:
			// Unknown kinds are dropped, not retried forever.
			log.Warn().Str("kind", string(ev.Kind)).Msg("Dropping event of unknown kind")
		}
		if err != nil {
			return fmt.Errorf("sync %s event: %w", ev.Kind, err)
		}
	}
	return nil
}

// RecordVisit registers a page visit: creates the user record on first
// sight, bumps the visit counter, stamps lastVisit, attaches the device
// profile exactly once and appends the referral attribution.
func (w *Writer) RecordVisit(ctx context.Context, userAgent, referralHash string) error {
	now := time.Now().UTC()

	source := model.ReferralSource{Hash: "XXX", Name: "organic"}
	if w.referrals != nil {
		source = w.referrals.Lookup(ctx, referralHash)
	}

	doc := store.UserDoc(w.userID)
	b := w.store.NewBatch()
	// Create-only fields: never overwritten on later visits. Device in
	// particular is captured from the first session and kept.
	b.SetIfAbsent(doc, map[string]interface{}{
		store.FieldUserID:     w.userID,
		store.FieldFirstVisit: now,
		store.FieldDevice:     w.deviceInfo(userAgent),
	})
	b.MergeSet(doc, map[string]interface{}{store.FieldLastVisit: now})
	b.Increment(doc, store.FieldTotalVisits, 1)
	b.Append(doc, store.FieldReferrals, model.ReferralAttribution{
		Hash:      source.Hash,
		Name:      source.Name,
		Timestamp: now,
	})
	if err := b.Commit(ctx); err != nil {
		return err
	}

	log.Debug().
		Str("user_id", w.userID).
		Str("referral", source.Name).
		Msg("Visit recorded")
	return nil
}

func (w *Writer) recordInteraction(ctx context.Context, ev model.Event) error {
	doc := store.UserDoc(w.userID)

	b := w.store.NewBatch()
	b.Increment(doc, store.FieldTotalInteractions, 1)
	if ev.Category != "" {
		b.Increment(doc, store.PrefixTopCategories+ev.Category, 1)
	}
	if ev.Action != "" {
		b.Increment(doc, store.PrefixTopActions+ev.Action, 1)
	}
	if ev.Identifier != "" {
		b.Increment(doc, store.PrefixFavoriteContent+ev.Identifier, 1)
	}
	b.Append(doc, store.FieldHistory, ev)
	return b.Commit(ctx)
}

func (w *Writer) recordCommand(ctx context.Context, ev model.Event) error {
	// An AI exchange without a response is dead air; the queue already
	// filters these, and the schema refuses them too.
	if ev.Command == "" || (ev.CommandKind == model.CommandAI && ev.Response == "") {
		return nil
	}

	kind := ev.CommandKind
	if kind == "" {
		kind = model.CommandTerminal
	}

	b := w.store.NewBatch()
	b.Append(store.UserDoc(w.userID), store.FieldCommands, model.CommandEntry{
		Command:   ev.Command,
		Kind:      kind,
		Response:  ev.Response,
		Timestamp: ev.Timestamp,
	})
	return b.Commit(ctx)
}

// deviceInfo profiles the client once and caches the result for the
// session.
func (w *Writer) deviceInfo(userAgent string) model.DeviceInfo {
	w.deviceOnce.Do(func() {
		if w.profiler == nil {
			w.device = model.DeviceInfo{Type: "unknown", AppName: "unknown"}
			return
		}
		w.device = w.profiler.Detect(userAgent)
	})
	return w.device
}
