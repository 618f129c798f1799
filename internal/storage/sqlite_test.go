package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the per-user lookup indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_chat_messages_user_created", "idx_priority_snapshots_user_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestReplaceAndListQuestions(t *testing.T) {
	s := openTestStore(t)

	want := []question.Record{
		{ID: "q1", Text: "How are things at home?", Category: "family", Type: "scale", Extra: map[string]any{"min_value": float64(1), "max_value": float64(10)}},
		{ID: "q2", Text: "Do you drink alone?", Category: "drinking", Type: "yes_no"},
		{ID: "q3", Text: "Anything else?"},
	}
	if err := s.ReplaceQuestions(want); err != nil {
		t.Fatalf("ReplaceQuestions: %v", err)
	}

	got, err := s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}

	// Replacing again drops the previous bank.
	if err := s.ReplaceQuestions(want[2:]); err != nil {
		t.Fatalf("ReplaceQuestions: %v", err)
	}
	got, err = s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q3" {
		t.Errorf("after replace = %+v, want only q3", got)
	}
}

func TestListQuestions_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestAppendAndListMessages(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	msgs := []Message{
		{ID: "m1", UserID: "u1", Role: "user", Content: "hi", CreatedAt: now},
		{ID: "m2", UserID: "u1", Role: "assistant", Content: "How is your family?", CreatedAt: now},
		{ID: "m3", UserID: "u2", Role: "user", Content: "other user", CreatedAt: now},
		{ID: "m4", UserID: "u1", Role: "user", Content: "they are fine", CreatedAt: now.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage(%s): %v", m.ID, err)
		}
	}

	got, err := s.ListMessages("u1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	want := []Message{msgs[0], msgs[1], msgs[3]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendMessage_DuplicateID(t *testing.T) {
	s := openTestStore(t)

	m := Message{ID: "dup", UserID: "u1", Role: "user", Content: "x", CreatedAt: time.Now()}
	if err := s.AppendMessage(m); err != nil {
		t.Fatalf("first AppendMessage: %v", err)
	}
	if err := s.AppendMessage(m); err == nil {
		t.Error("second AppendMessage with same ID succeeded, want error")
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LatestSnapshot("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestSnapshot on empty store: err = %v, want ErrNotFound", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	older := Snapshot{ID: "s1", UserID: "u1", CreatedAt: base,
		Areas: []scoring.PriorityArea{{Name: "Work", Score: 3, Explanation: "ok"}}}
	newer := Snapshot{ID: "s2", UserID: "u1", CreatedAt: base.Add(time.Minute),
		Areas: []scoring.PriorityArea{{Name: "Family", Score: 7, Explanation: "..."}, {Name: "Sleep", Score: 12, Explanation: "bad"}}}
	other := Snapshot{ID: "s3", UserID: "u2", CreatedAt: base.Add(time.Hour),
		Areas: []scoring.PriorityArea{{Name: "Money", Score: 5, Explanation: "rent"}}}

	for _, snap := range []Snapshot{newer, older, other} {
		if err := s.SaveSnapshot(snap); err != nil {
			t.Fatalf("SaveSnapshot(%s): %v", snap.ID, err)
		}
	}

	got, err := s.LatestSnapshot("u1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if diff := cmp.Diff(newer, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM priority_snapshots WHERE user_id = 'u1'").Scan(&count); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if count != 2 {
		t.Errorf("snapshot rows = %d, want 2 (older snapshots retained)", count)
	}
}

func TestLatestSnapshot_SameSecondUsesInsertOrder(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	s.SaveSnapshot(Snapshot{ID: "a", UserID: "u1", CreatedAt: now, Areas: []scoring.PriorityArea{{Name: "A", Score: 1, Explanation: "a"}}})
	s.SaveSnapshot(Snapshot{ID: "b", UserID: "u1", CreatedAt: now, Areas: []scoring.PriorityArea{{Name: "B", Score: 2, Explanation: "b"}}})

	got, err := s.LatestSnapshot("u1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("ID = %q, want b", got.ID)
	}
}

func TestIntakeResponses(t *testing.T) {
	s := openTestStore(t)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpsertIntakeResponse(IntakeResponse{UserID: "u1", QuestionID: "q1", Value: "yes", UpdatedAt: ts}); err != nil {
		t.Fatalf("UpsertIntakeResponse: %v", err)
	}
	if err := s.UpsertIntakeResponse(IntakeResponse{UserID: "u1", QuestionID: "q2", Value: `["a","b"]`, UpdatedAt: ts}); err != nil {
		t.Fatalf("UpsertIntakeResponse: %v", err)
	}
	// Overwrite q1.
	if err := s.UpsertIntakeResponse(IntakeResponse{UserID: "u1", QuestionID: "q1", Value: "no", UpdatedAt: ts.Add(time.Hour)}); err != nil {
		t.Fatalf("UpsertIntakeResponse overwrite: %v", err)
	}

	got, err := s.ListIntakeResponses("u1")
	if err != nil {
		t.Fatalf("ListIntakeResponses: %v", err)
	}
	want := map[string]IntakeResponse{
		"q1": {UserID: "u1", QuestionID: "q1", Value: "no", UpdatedAt: ts.Add(time.Hour)},
		"q2": {UserID: "u1", QuestionID: "q2", Value: `["a","b"]`, UpdatedAt: ts},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteIntakeResponse("u1", "q2"); err != nil {
		t.Fatalf("DeleteIntakeResponse: %v", err)
	}
	if err := s.DeleteIntakeResponse("u1", "q2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	got, _ = s.ListIntakeResponses("u1")
	if len(got) != 1 {
		t.Errorf("len after delete = %d, want 1", len(got))
	}
}

func TestListIntakeResponses_OtherUser(t *testing.T) {
	s := openTestStore(t)

	s.UpsertIntakeResponse(IntakeResponse{UserID: "u1", QuestionID: "q1", Value: "7"})

	got, err := s.ListIntakeResponses("u2")
	if err != nil {
		t.Fatalf("ListIntakeResponses: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d responses for u2, want 0", len(got))
	}
}
