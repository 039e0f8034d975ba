package retro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"retro/api/internal/auth"
	"retro/api/internal/store"
)

type recordingConn struct {
	id string

	mu      sync.Mutex
	events  []Event
	closed  bool
	sendErr error
}

func newConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.EventName())
	}
	return out
}

func (c *recordingConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

func (c *recordingConn) lastError(t *testing.T) ErrorEvent {
	t.Helper()
	events := c.all()
	if len(events) == 0 {
		t.Fatal("expected an error event, got nothing")
	}
	ev, ok := events[len(events)-1].(ErrorEvent)
	if !ok {
		t.Fatalf("last event = %s, want error", events[len(events)-1].EventName())
	}
	return ev
}

type fakeGate struct {
	identities map[string]auth.Identity
}

func (g fakeGate) Verify(_ context.Context, credential string) (auth.Identity, error) {
	identity, ok := g.identities[credential]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

const testSession = "sess1"

var testNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type board struct {
	t      *testing.T
	store  *store.MemoryStore
	engine *Engine
	gate   fakeGate
	dir    *Directory
	conns  map[string]*recordingConn
}

// newBoard seeds a session with a facilitator and two participants and
// joins nobody.
func newBoard(t *testing.T, votesPerPerson int) *board {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.CreateSession(ctx, store.Session{ID: testSession, FacilitatorEmail: "fac@example.com", VotesPerPerson: votesPerPerson, CurrentPhase: "waiting", CreatedAt: testNow}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	gate := fakeGate{identities: map[string]auth.Identity{}}
	for _, p := range []struct{ email, role string }{
		{"fac@example.com", auth.RoleFacilitator},
		{"amy@example.com", auth.RoleParticipant},
		{"bob@example.com", auth.RoleParticipant},
	} {
		if err := st.InsertParticipant(ctx, store.Participant{SessionID: testSession, Email: p.email, Role: p.role}); err != nil {
			t.Fatalf("insert participant: %v", err)
		}
		gate.identities["cred-"+p.email] = auth.Identity{SessionID: testSession, Email: p.email, Role: p.role}
	}

	var seq atomic.Int64
	var tick atomic.Int64
	dir := NewDirectory(nil)
	engine := NewEngine(st, gate, dir,
		WithClock(func() time.Time { return testNow.Add(time.Duration(tick.Add(1)) * time.Second) }),
		WithIDGenerator(func(prefix string) string { return fmt.Sprintf("%s_%d", prefix, seq.Add(1)) }),
	)
	return &board{t: t, store: st, engine: engine, gate: gate, dir: dir, conns: map[string]*recordingConn{}}
}

// credential registers a valid credential for email without touching the
// roster.
func (b *board) credential(sessionID, email, role string) string {
	credential := "cred-" + sessionID + "-" + email
	b.gate.identities[credential] = auth.Identity{SessionID: sessionID, Email: email, Role: role}
	return credential
}

// failingStore makes selected writes fail the way a broken database would.
type failingStore struct {
	*store.MemoryStore
	insertNoteErr error
}

func (s failingStore) InsertNote(ctx context.Context, note store.Note) error {
	if s.insertNoteErr != nil {
		return s.insertNoteErr
	}
	return s.MemoryStore.InsertNote(ctx, note)
}

// join attaches a connection for email and clears whatever it received.
func (b *board) join(email string) *recordingConn {
	b.t.Helper()
	conn := newConn("conn-" + email)
	if err := b.engine.Handle(context.Background(), conn, Join{Credential: "cred-" + email}); err != nil {
		b.t.Fatalf("join %s: %v", email, err)
	}
	b.conns[email] = conn
	return conn
}

func (b *board) resetAll() {
	for _, conn := range b.conns {
		conn.reset()
	}
}

func (b *board) do(email string, intent Intent) error {
	return b.engine.Handle(context.Background(), b.conns[email], intent)
}

func (b *board) mustDo(email string, intent Intent) {
	b.t.Helper()
	if err := b.do(email, intent); err != nil {
		b.t.Fatalf("%s by %s: %v", intent.Name(), email, err)
	}
}

func (b *board) addNote(email, column, text string) string {
	b.t.Helper()
	b.mustDo(email, AddNote{Column: column, Text: text})
	notes, err := b.store.ListNotes(context.Background(), testSession)
	if err != nil {
		b.t.Fatalf("list notes: %v", err)
	}
	return notes[len(notes)-1].ID
}

func (b *board) group(email, column string, noteIDs ...string) string {
	b.t.Helper()
	b.mustDo(email, CreateGroup{Column: column, NoteIDs: noteIDs})
	groups, err := b.store.ListGroups(context.Background(), testSession)
	if err != nil {
		b.t.Fatalf("list groups: %v", err)
	}
	return groups[len(groups)-1].ID
}

func (b *board) note(id string) store.Note {
	b.t.Helper()
	note, err := b.store.GetNote(context.Background(), testSession, id)
	if err != nil {
		b.t.Fatalf("get note %s: %v", id, err)
	}
	return note
}

func (b *board) groupExists(id string) bool {
	_, err := b.store.GetGroup(context.Background(), testSession, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		b.t.Fatalf("get group %s: %v", id, err)
	}
	return err == nil
}

func (b *board) votesHeld(email string) int {
	b.t.Helper()
	n, err := b.store.CountVotesByEmail(context.Background(), testSession, email)
	if err != nil {
		b.t.Fatalf("count votes: %v", err)
	}
	return n
}

func equalNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
