package refdata

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestResolver(t *testing.T) (*Resolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r, err := NewResolver(client)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	t.Cleanup(r.Close)
	return r, mr
}

func TestLookup_KnownHash(t *testing.T) {
	r, mr := newTestResolver(t)
	mr.HSet(mappingKey, "LI1", "linkedin")

	got := r.Lookup(context.Background(), "LI1")
	if got.Hash != "LI1" || got.Name != "linkedin" {
		t.Errorf("Lookup(LI1) = %+v", got)
	}
}

func TestLookup_UnknownFallsBackToOrganic(t *testing.T) {
	r, _ := newTestResolver(t)

	got := r.Lookup(context.Background(), "ZZ9")
	if got != Organic {
		t.Errorf("Lookup(unknown) = %+v, want organic", got)
	}
}

func TestLookup_InvalidShape(t *testing.T) {
	r, mr := newTestResolver(t)
	mr.HSet(mappingKey, "li1", "lowercase")

	for _, hash := range []string{"", "li1", "TOOLONG", "A!"} {
		if got := r.Lookup(context.Background(), hash); got != Organic {
			t.Errorf("Lookup(%q) = %+v, want organic", hash, got)
		}
	}
}

func TestLookup_CachesResult(t *testing.T) {
	r, mr := newTestResolver(t)
	mr.HSet(mappingKey, "GH1", "github")

	first := r.Lookup(context.Background(), "GH1")
	if first.Name != "github" {
		t.Fatalf("Lookup = %+v", first)
	}
	// Let the async cache admission settle, then remove the backing
	// entry: the cached value must still serve.
	r.cache.Wait()
	mr.HDel(mappingKey, "GH1")

	second := r.Lookup(context.Background(), "GH1")
	if second.Name != "github" {
		t.Errorf("cached Lookup = %+v, want github", second)
	}
}

func TestLookup_DownstreamFailure(t *testing.T) {
	r, mr := newTestResolver(t)
	mr.Close()

	if got := r.Lookup(context.Background(), "AB1"); got != Organic {
		t.Errorf("Lookup with store down = %+v, want organic", got)
	}
}
