package device

import (
	"context"
	"testing"
	"time"
)

func TestStateHistory_RecordAndGet(t *testing.T) {
	db := setupTestDB(t)
	moduleRepo := NewSQLiteRepository(db)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := moduleRepo.Create(ctx, testModule("mod-001", "Tracked", 1, 3)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	states := []State{
		{"mode": float64(75)},
		{"mode": float64(75), "position": float64(50)},
		{"mode": float64(20), "position": float64(100)},
	}
	for _, s := range states {
		if err := repo.RecordStateChange(ctx, "mod-001", s, StateHistorySourcePoll); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "mod-001", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if e.ModuleID != "mod-001" {
			t.Errorf("ModuleID = %q, want mod-001", e.ModuleID)
		}
		if e.Source != StateHistorySourcePoll {
			t.Errorf("Source = %q, want poll", e.Source)
		}
		if e.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
	}
}

func TestStateHistory_DefaultsAndValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", State{}, StateHistorySourcePoll); err == nil {
		t.Error("RecordStateChange() with empty module id should fail")
	}

	if _, err := repo.GetHistory(ctx, "", 10); err == nil {
		t.Error("GetHistory() with empty module id should fail")
	}

	// Empty source defaults to poll, nil state defaults to {}
	db2 := setupTestDB(t)
	moduleRepo := NewSQLiteRepository(db2)
	repo2 := NewSQLiteStateHistoryRepository(db2)
	if err := moduleRepo.Create(ctx, testModule("mod-001", "Defaults", 1, 3)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo2.RecordStateChange(ctx, "mod-001", nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	entries, err := repo2.GetHistory(ctx, "mod-001", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetHistory() returned %d entries, want 1", len(entries))
	}
	if entries[0].Source != StateHistorySourcePoll {
		t.Errorf("Source = %q, want poll default", entries[0].Source)
	}
}

func TestStateHistory_LimitClamping(t *testing.T) {
	db := setupTestDB(t)
	moduleRepo := NewSQLiteRepository(db)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := moduleRepo.Create(ctx, testModule("mod-001", "Busy", 1, 3)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := repo.RecordStateChange(ctx, "mod-001", State{"n": float64(i)}, StateHistorySourcePoll); err != nil {
			t.Fatalf("RecordStateChange(%d) error = %v", i, err)
		}
	}

	entries, err := repo.GetHistory(ctx, "mod-001", -1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != defaultHistoryLimit {
		t.Errorf("GetHistory(-1) returned %d entries, want default %d", len(entries), defaultHistoryLimit)
	}

	entries, err = repo.GetHistory(ctx, "mod-001", 10000)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) > maxHistoryLimit {
		t.Errorf("GetHistory(10000) returned %d entries, want at most %d", len(entries), maxHistoryLimit)
	}
}

func TestStateHistory_Prune(t *testing.T) {
	db := setupTestDB(t)
	moduleRepo := NewSQLiteRepository(db)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := moduleRepo.Create(ctx, testModule("mod-001", "Aged", 1, 3)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// One old row inserted directly, one fresh through the repository
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(
		"INSERT INTO state_history (module_id, state, source, created_at) VALUES (?, '{}', 'poll', ?)",
		"mod-001", old,
	); err != nil {
		t.Fatalf("inserting old row: %v", err)
	}
	if err := repo.RecordStateChange(ctx, "mod-001", State{}, StateHistorySourcePoll); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("PruneHistory() deleted %d rows, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}
}
