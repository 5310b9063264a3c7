package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerwise/advisor/core"
	"github.com/ledgerwise/advisor/store"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "advisor.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id, userID, title string, p core.Priority, generatedAt, expiresAt time.Time) core.Recommendation {
	return core.Recommendation{
		ID:          id,
		UserID:      userID,
		Title:       title,
		Message:     "msg for " + title,
		Type:        core.TypeSavingsOpportunity,
		Priority:    p,
		GeneratedAt: generatedAt,
		ExpiresAt:   expiresAt,
		Status:      core.StatusActive,
	}
}

func TestSQLiteStore_ReplaceActiveBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	week := 7 * 24 * time.Hour

	first := []core.Recommendation{
		rec("a1", "user1", "old one", core.PriorityHigh, now.Add(-24*time.Hour), now.Add(week)),
		rec("a2", "user1", "old two", core.PriorityLow, now.Add(-24*time.Hour), now.Add(week)),
	}
	if err := s.ReplaceActiveBatch(ctx, "user1", first); err != nil {
		t.Fatalf("first ReplaceActiveBatch: %v", err)
	}

	second := []core.Recommendation{
		rec("b1", "user1", "new one", core.PriorityMedium, now, now.Add(week)),
		rec("b2", "user1", "new two", core.PriorityCritical, now, now.Add(week)),
		rec("b3", "user1", "new three", core.PriorityMedium, now, now.Add(week)),
	}
	if err := s.ReplaceActiveBatch(ctx, "user1", second); err != nil {
		t.Fatalf("second ReplaceActiveBatch: %v", err)
	}

	active, err := s.ActiveForUser(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("active = %d, want 3 (old batch must be expired)", len(active))
	}
	for _, r := range active {
		if r.ID == "a1" || r.ID == "a2" {
			t.Errorf("old recommendation %s still active", r.ID)
		}
		if r.Status != core.StatusActive {
			t.Errorf("recommendation %s status = %s, want active", r.ID, r.Status)
		}
	}

	last, err := s.LastGeneratedAt(ctx, "user1")
	if err != nil {
		t.Fatalf("LastGeneratedAt: %v", err)
	}
	if !last.Equal(now) {
		t.Errorf("last generated = %s, want %s", last, now)
	}
}

func TestSQLiteStore_ReplaceActiveBatchRejectsEmpty(t *testing.T) {
	s := openTestStore(t)
	if err := s.ReplaceActiveBatch(context.Background(), "user1", nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestSQLiteStore_ActiveForUserOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	week := 7 * 24 * time.Hour

	batch := []core.Recommendation{
		rec("r1", "user1", "medium old", core.PriorityMedium, now.Add(-2*time.Hour), now.Add(week)),
		rec("r2", "user1", "critical", core.PriorityCritical, now.Add(-3*time.Hour), now.Add(week)),
		rec("r3", "user1", "medium new", core.PriorityMedium, now.Add(-1*time.Hour), now.Add(week)),
		rec("r4", "user1", "already past expiry", core.PriorityCritical, now.Add(-3*time.Hour), now.Add(-time.Minute)),
	}
	if err := s.ReplaceActiveBatch(ctx, "user1", batch); err != nil {
		t.Fatalf("ReplaceActiveBatch: %v", err)
	}

	active, err := s.ActiveForUser(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}

	var got []string
	for _, r := range active {
		got = append(got, r.ID)
	}
	want := []string{"r2", "r3", "r1"}
	if len(got) != len(want) {
		t.Fatalf("active ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active ids = %v, want %v", got, want)
		}
	}

	limited, err := s.ActiveForUser(ctx, "user1", 2)
	if err != nil {
		t.Fatalf("ActiveForUser limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited active = %d, want 2", len(limited))
	}
}

func TestSQLiteStore_ActiveForUserScopedByUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	week := 7 * 24 * time.Hour
	if err := s.ReplaceActiveBatch(ctx, "user1", []core.Recommendation{
		rec("u1r1", "user1", "mine", core.PriorityHigh, now, now.Add(week)),
	}); err != nil {
		t.Fatalf("ReplaceActiveBatch user1: %v", err)
	}
	if err := s.ReplaceActiveBatch(ctx, "user2", []core.Recommendation{
		rec("u2r1", "user2", "theirs", core.PriorityHigh, now, now.Add(week)),
	}); err != nil {
		t.Fatalf("ReplaceActiveBatch user2: %v", err)
	}

	active, err := s.ActiveForUser(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if len(active) != 1 || active[0].ID != "u1r1" {
		t.Errorf("user1 sees %v, want only u1r1", active)
	}
}

func TestSQLiteStore_ExpireOverdueAndPurge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	batch := []core.Recommendation{
		rec("fresh", "user1", "fresh", core.PriorityLow, now, now.Add(24*time.Hour)),
		rec("overdue", "user1", "overdue", core.PriorityLow, now.Add(-10*24*time.Hour), now.Add(-time.Hour)),
		rec("ancient", "user1", "ancient", core.PriorityLow, now.Add(-40*24*time.Hour), now.Add(-33*24*time.Hour)),
	}
	if err := s.ReplaceActiveBatch(ctx, "user1", batch); err != nil {
		t.Fatalf("ReplaceActiveBatch: %v", err)
	}

	expired, err := s.ExpireOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if expired != 2 {
		t.Errorf("expired = %d, want 2", expired)
	}

	purged, err := s.PurgeOlderThan(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	active, err := s.ActiveForUser(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if len(active) != 1 || active[0].ID != "fresh" {
		t.Errorf("active after housekeeping = %v, want only fresh", active)
	}
}

func TestSQLiteStore_TransactionFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "t1", UserID: "user1", Date: base, Description: "WHOLE FOODS MARKET", Amount: -84.12, Category: "Groceries", Account: "checking"},
		{ID: "t2", UserID: "user1", Date: base.AddDate(0, 0, 5), Description: "SHELL GAS STATION", Amount: -41.50, Category: "Transport", Account: "checking"},
		{ID: "t3", UserID: "user1", Date: base.AddDate(0, 0, 10), Description: "TRADER JOES", Amount: -32.80, Category: "Groceries", Account: "credit"},
		{ID: "t4", UserID: "user2", Date: base, Description: "WHOLE FOODS MARKET", Amount: -12.00, Category: "Groceries", Account: "checking"},
	}
	if err := s.InsertTransactions(ctx, txs); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}

	byCategory, err := s.List(ctx, store.TransactionFilter{UserID: "user1", Category: "Groceries"})
	if err != nil {
		t.Fatalf("List by category: %v", err)
	}
	if len(byCategory) != 2 {
		t.Errorf("groceries for user1 = %d, want 2", len(byCategory))
	}
	if len(byCategory) == 2 && byCategory[0].ID != "t3" {
		t.Errorf("expected newest first, got %s", byCategory[0].ID)
	}

	// From is inclusive, To is exclusive.
	byRange, err := s.List(ctx, store.TransactionFilter{
		UserID: "user1",
		From:   base.AddDate(0, 0, 5),
		To:     base.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("List by range: %v", err)
	}
	if len(byRange) != 1 || byRange[0].ID != "t2" {
		t.Errorf("range query = %v, want only t2", byRange)
	}

	byText, err := s.List(ctx, store.TransactionFilter{UserID: "user1", Text: "GAS"})
	if err != nil {
		t.Fatalf("List by text: %v", err)
	}
	if len(byText) != 1 || byText[0].ID != "t2" {
		t.Errorf("text query = %v, want only t2", byText)
	}

	n, err := s.CountForUser(ctx, "user1")
	if err != nil {
		t.Fatalf("CountForUser: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	ids, err := s.DistinctUserIDs(ctx)
	if err != nil {
		t.Fatalf("DistinctUserIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "user1" || ids[1] != "user2" {
		t.Errorf("user ids = %v, want [user1 user2]", ids)
	}
}

func TestSQLiteStore_EmbeddingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.InsertTransactions(ctx, []core.Transaction{
		{ID: "t1", UserID: "user1", Date: base, Description: "COFFEE SHOP", Amount: -4.50, Category: "Dining", Account: "checking"},
		{ID: "t2", UserID: "user1", Date: base, Description: "BOOKSTORE", Amount: -22.00, Category: "Shopping", Account: "checking"},
	}); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}

	pending, err := s.ListUnembedded(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnembedded: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("unembedded = %d, want 2", len(pending))
	}

	vec := []float32{0.1, 0.2, 0.3}
	if err := s.SaveEmbedding(ctx, "t1", vec); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	pending, err = s.ListUnembedded(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnembedded after save: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "t2" {
		t.Errorf("unembedded after save = %v, want only t2", pending)
	}

	embedded, err := s.ListEmbedded(ctx)
	if err != nil {
		t.Fatalf("ListEmbedded: %v", err)
	}
	if len(embedded) != 1 || embedded[0].ID != "t1" {
		t.Fatalf("embedded = %v, want only t1", embedded)
	}
	if len(embedded[0].Embedding) != 3 || embedded[0].Embedding[1] != 0.2 {
		t.Errorf("embedding round-trip got %v, want %v", embedded[0].Embedding, vec)
	}

	if err := s.SaveEmbedding(ctx, "missing", vec); err == nil {
		t.Error("expected error saving embedding for unknown transaction")
	}
}

func TestSQLiteStore_LatestImportAt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	latest, err := s.LatestImportAt(ctx, "nobody")
	if err != nil {
		t.Fatalf("LatestImportAt: %v", err)
	}
	if !latest.IsZero() {
		t.Errorf("latest import for unknown user = %s, want zero", latest)
	}

	if err := s.InsertTransactions(ctx, []core.Transaction{
		{ID: "t1", UserID: "user1", Date: time.Now().UTC(), Description: "X", Amount: -1},
	}); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}

	latest, err = s.LatestImportAt(ctx, "user1")
	if err != nil {
		t.Fatalf("LatestImportAt: %v", err)
	}
	if latest.IsZero() {
		t.Error("latest import should be set after an insert")
	}
}
