package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"portfolio-analytics/model"
	"portfolio-analytics/store"
	"portfolio-analytics/useragent"
)

type staticReferrals struct {
	known map[string]string
}

func (s staticReferrals) Lookup(ctx context.Context, hash string) model.ReferralSource {
	if name, ok := s.known[hash]; ok {
		return model.ReferralSource{Hash: hash, Name: name}
	}
	return model.ReferralSource{Hash: "XXX", Name: "organic"}
}

const testUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func TestRecordVisit_FirstAndRepeat(t *testing.T) {
	st := store.NewMemory()
	w := NewWriter(st, "user_visit0000", useragent.NewProfiler(), staticReferrals{known: map[string]string{"LI1": "linkedin"}})
	ctx := context.Background()

	if err := w.RecordVisit(ctx, testUA, "LI1"); err != nil {
		t.Fatalf("first visit: %v", err)
	}

	u, err := st.GetUser(ctx, "user_visit0000")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.TotalVisits != 1 {
		t.Errorf("TotalVisits = %d, want 1", u.TotalVisits)
	}
	if u.FirstVisit.IsZero() || u.LastVisit.IsZero() {
		t.Error("visit timestamps not set")
	}
	if u.Device == nil || u.Device.Type != "mobile" {
		t.Errorf("Device = %+v, want mobile", u.Device)
	}
	firstSeen := u.FirstVisit

	if err := w.RecordVisit(ctx, testUA, ""); err != nil {
		t.Fatalf("second visit: %v", err)
	}

	u, _ = st.GetUser(ctx, "user_visit0000")
	if u.TotalVisits != 2 {
		t.Errorf("TotalVisits = %d, want 2", u.TotalVisits)
	}
	if !u.FirstVisit.Equal(firstSeen) {
		t.Error("firstVisit must never move")
	}
	if got := st.ListLen(store.UserDoc("user_visit0000"), store.FieldReferrals); got != 2 {
		t.Errorf("referral attributions = %d, want 2", got)
	}

	// First attribution resolved, second organic.
	entries := st.List(store.UserDoc("user_visit0000"), store.FieldReferrals)
	var first, second model.ReferralAttribution
	if err := json.Unmarshal([]byte(entries[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(entries[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first.Name != "linkedin" || second.Name != "organic" {
		t.Errorf("attributions = %q, %q; want linkedin, organic", first.Name, second.Name)
	}
}

func TestRecordVisit_DeviceSetOnce(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	w := NewWriter(st, "user_dev000000", useragent.NewProfiler(), nil)
	if err := w.RecordVisit(ctx, testUA, ""); err != nil {
		t.Fatal(err)
	}

	// A later session with a different user agent must not overwrite
	// the stored descriptor.
	w2 := NewWriter(st, "user_dev000000", useragent.NewProfiler(), nil)
	desktopUA := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	if err := w2.RecordVisit(ctx, desktopUA, ""); err != nil {
		t.Fatal(err)
	}

	u, err := st.GetUser(ctx, "user_dev000000")
	if err != nil {
		t.Fatal(err)
	}
	if u.Device == nil || u.Device.Type != "mobile" {
		t.Errorf("Device = %+v, want original mobile profile", u.Device)
	}
}

func TestSync_InteractionCounters(t *testing.T) {
	st := store.NewMemory()
	w := NewWriter(st, "user_int000000", nil, nil)
	ctx := context.Background()
	seedUser(t, st, "user_int000000")

	events := []model.Event{
		{Kind: model.KindInteraction, Category: "social", Identifier: "github", Action: "click", Timestamp: time.Now()},
		{Kind: model.KindInteraction, Category: "social", Identifier: "linkedin", Action: "click", Timestamp: time.Now()},
		{Kind: model.KindInteraction, Category: "projects", Identifier: "github", Action: "hover", Timestamp: time.Now()},
	}
	if err := w.Sync(ctx, events); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	u, err := st.GetUser(ctx, "user_int000000")
	if err != nil {
		t.Fatal(err)
	}
	if u.TotalInteractions != 3 {
		t.Errorf("TotalInteractions = %d, want 3", u.TotalInteractions)
	}
	if u.TopCategories["social"] != 2 || u.TopCategories["projects"] != 1 {
		t.Errorf("TopCategories = %v", u.TopCategories)
	}
	if u.TopActions["click"] != 2 || u.TopActions["hover"] != 1 {
		t.Errorf("TopActions = %v", u.TopActions)
	}
	if u.FavoriteContent["github"] != 2 {
		t.Errorf("FavoriteContent = %v", u.FavoriteContent)
	}
	if got := st.ListLen(store.UserDoc("user_int000000"), store.FieldHistory); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
}

func TestSync_CommandPolicy(t *testing.T) {
	st := store.NewMemory()
	w := NewWriter(st, "user_cmd000000", nil, nil)
	ctx := context.Background()
	seedUser(t, st, "user_cmd000000")

	events := []model.Event{
		{Kind: model.KindCommand, Command: "help", CommandKind: model.CommandTerminal, Timestamp: time.Now()},
		// AI command with no captured response: dead air, never stored.
		{Kind: model.KindCommand, Command: "tell me about you", CommandKind: model.CommandAI, Timestamp: time.Now()},
		{Kind: model.KindCommand, Command: "who are you", Response: "a portfolio", CommandKind: model.CommandAI, Timestamp: time.Now()},
	}
	if err := w.Sync(ctx, events); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	doc := store.UserDoc("user_cmd000000")
	if got := st.ListLen(doc, store.FieldCommands); got != 2 {
		t.Fatalf("stored commands = %d, want 2 (ai without response skipped)", got)
	}
	for _, raw := range st.List(doc, store.FieldCommands) {
		if strings.Contains(raw, "tell me about you") {
			t.Error("ai command without response must not be stored")
		}
	}
}

func TestSync_LinkClickForUnknownUserFails(t *testing.T) {
	pinSampler(t, false)
	st := store.NewMemory()
	w := NewWriter(st, "user_nobody000", nil, nil)

	err := w.Sync(context.Background(), []model.Event{
		{Kind: model.KindLinkClick, URL: "https://example.com", Title: "X", Timestamp: time.Now()},
	})
	if err == nil {
		t.Fatal("Sync should fail for unknown user so the queue can retry")
	}
}

func TestSync_EmptyBatch(t *testing.T) {
	w := NewWriter(store.NewMemory(), "user_empty0000", nil, nil)
	if err := w.Sync(context.Background(), nil); err != nil {
		t.Errorf("Sync(nil) = %v, want nil", err)
	}
}
