package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// openTestDB returns an empty public schema, or skips without a database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("RETRO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("RETRO_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	db := openTestDB(t)
	if _, err := ApplyMigrations(context.Background(), db, testMigrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresStoreSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := s.CreateSession(ctx, Session{ID: "pg1", FacilitatorEmail: "fac@example.com", VotesPerPerson: 2, CurrentPhase: "waiting", CreatedAt: now}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateSession(ctx, Session{ID: "pg1", FacilitatorEmail: "fac@example.com", VotesPerPerson: 2, CurrentPhase: "waiting", CreatedAt: now}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create err = %v, want ErrDuplicate", err)
	}
	for _, p := range []Participant{
		{SessionID: "pg1", Email: "fac@example.com", Role: "facilitator"},
		{SessionID: "pg1", Email: "amy@example.com", Role: "participant"},
	} {
		if err := s.InsertParticipant(ctx, p); err != nil {
			t.Fatalf("insert participant: %v", err)
		}
	}
	if err := s.InsertParticipant(ctx, Participant{SessionID: "pg1", Email: "bob@example.com", Role: "facilitator"}); err == nil {
		t.Fatal("expected second facilitator to be rejected")
	}
	if err := s.MarkParticipantJoined(ctx, "pg1", "amy@example.com", now); err != nil {
		t.Fatalf("mark joined: %v", err)
	}
	if err := s.UpdateSessionPhase(ctx, "pg1", "brainstorm"); err != nil {
		t.Fatalf("update phase: %v", err)
	}

	for _, id := range []string{"n1", "n2"} {
		if err := s.InsertNote(ctx, Note{ID: id, SessionID: "pg1", AuthorEmail: "amy@example.com", Column: "start", Text: id, CreatedAt: now}); err != nil {
			t.Fatalf("insert note: %v", err)
		}
	}
	if err := s.InsertGroup(ctx, Group{ID: "g1", SessionID: "pg1", Column: "start", CreatedAt: now}); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	if err := s.AssignNotesToGroup(ctx, "pg1", "g1", []string{"n1", "n2"}); err != nil {
		t.Fatalf("assign notes: %v", err)
	}
	members, err := s.ListGroupNotes(ctx, "pg1", "g1")
	if err != nil || len(members) != 2 {
		t.Fatalf("members = %+v err = %v", members, err)
	}

	vote := Vote{SessionID: "pg1", Email: "amy@example.com", TargetID: "g1", TargetType: "group", CreatedAt: now}
	if err := s.InsertVote(ctx, vote); err != nil {
		t.Fatalf("insert vote: %v", err)
	}
	if err := s.InsertVote(ctx, vote); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate vote err = %v, want ErrDuplicate", err)
	}

	if err := s.DeleteGroup(ctx, "pg1", "g1"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	note, err := s.GetNote(ctx, "pg1", "n1")
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if note.GroupID != nil {
		t.Fatalf("group reference not cleared: %v", *note.GroupID)
	}

	snap, err := LoadSnapshot(ctx, s, "pg1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Session.CurrentPhase != "brainstorm" || snap.Participants[0].Role != "facilitator" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := s.DeleteSession(ctx, "pg1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetNote(ctx, "pg1", "n1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("note after cascade err = %v, want ErrNotFound", err)
	}
}
