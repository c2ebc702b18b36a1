package patternstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store, err := New(testutil.NewTestDB(t), Options{
		Retention: 24 * time.Hour,
		TokenCost: bcrypt.MinCost,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(store.Close)
	return store, clock
}

func TestSaveAndGet(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()
	doc := testutil.SampleDocument(t)

	saved, err := store.Save(ctx, doc)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID == "" || saved.DeleteToken == "" {
		t.Fatalf("Save() = %+v", saved)
	}
	if want := clock.Now().Add(24 * time.Hour); !saved.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", saved.ExpiresAt, want)
	}

	rec, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(doc, rec.Document); diff != "" {
		t.Fatalf("stored document mismatch (-want +got):\n%s", diff)
	}
	if rec.Views != 1 {
		t.Fatalf("Views = %d, want 1", rec.Views)
	}

	rec, err = store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if rec.Views != 2 {
		t.Fatalf("Views = %d, want 2", rec.Views)
	}
}

func TestSaveRejectsInvalidDocument(t *testing.T) {
	store, _ := newStore(t)
	doc := testutil.SampleDocument(t)
	doc.Grid[0][0] = "not-a-code"

	if _, err := store.Save(context.Background(), doc); !errors.Is(err, pattern.ErrInvalidDocument) {
		t.Fatalf("Save() error = %v, want ErrInvalidDocument", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("Count() = %d after rejected save", n)
	}
}

func TestGetUnknown(t *testing.T) {
	store, _ := newStore(t)
	for _, id := range []string{"", "../etc/passwd", "5f1f4c62-5d9b-4c47-9d0f-0c8f4d0e2a11"} {
		if _, err := store.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDeleteRequiresToken(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	saved, err := store.Save(ctx, testutil.SampleDocument(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, saved.ID, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Delete(wrong token) error = %v, want ErrInvalidToken", err)
	}
	if _, err := store.Get(ctx, saved.ID); err != nil {
		t.Fatalf("pattern gone after rejected delete: %v", err)
	}

	if err := store.Delete(ctx, saved.ID, saved.DeleteToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, saved.ID, saved.DeleteToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestExpiryAndPurge(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	old, err := store.Save(ctx, testutil.SampleDocument(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	clock.Advance(12 * time.Hour)
	fresh, err := store.Save(ctx, testutil.SampleDocument(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	clock.Advance(13 * time.Hour)

	if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired Get() error = %v, want ErrNotFound", err)
	}

	n, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", n)
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh pattern purged: %v", err)
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Fatalf("Count() = %d, want 1", count)
	}
}

func TestDocumentIsCompressed(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	saved, err := store.Save(ctx, testutil.SampleDocument(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	row, err := store.db.Queries.GetPattern(ctx, saved.ID, store.now().Unix())
	if err != nil {
		t.Fatalf("GetPattern() error = %v", err)
	}
	// zstd frame magic
	if len(row.Document) < 4 || row.Document[0] != 0x28 || row.Document[1] != 0xB5 || row.Document[2] != 0x2F || row.Document[3] != 0xFD {
		t.Fatalf("document is not a zstd frame: % x", row.Document[:min(8, len(row.Document))])
	}
	if row.DeleteTokenHash == saved.DeleteToken {
		t.Fatal("delete token stored in clear text")
	}
}
