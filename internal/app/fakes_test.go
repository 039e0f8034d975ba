package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"retro/api/internal/auth"
	"retro/api/internal/config"
	"retro/api/internal/email"
	"retro/api/internal/store"
)

var testSecret = "test-secret"

type fakeStore struct {
	pingFn              func(context.Context) error
	createSessionFn     func(context.Context, store.Session) error
	insertParticipantFn func(context.Context, store.Participant) error
	deleteSessionFn     func(context.Context, string) error
	getSessionFn        func(context.Context, string) (store.Session, error)

	mu           sync.Mutex
	sessions     []store.Session
	participants []store.Participant
	deleted      []string
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, session store.Session) error {
	if f.createSessionFn != nil {
		return f.createSessionFn(ctx, session)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeStore) InsertParticipant(ctx context.Context, participant store.Participant) error {
	if f.insertParticipantFn != nil {
		return f.insertParticipantFn(ctx, participant)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = append(f.participants, participant)
	return nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, sessionID)
	f.mu.Unlock()
	if f.deleteSessionFn != nil {
		return f.deleteSessionFn(ctx, sessionID)
	}
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSessionFn != nil {
		return f.getSessionFn(ctx, sessionID)
	}
	return store.Session{}, store.ErrNotFound
}

func (f *fakeStore) ListParticipants(context.Context, string) ([]store.Participant, error) {
	return []store.Participant{}, nil
}

func (f *fakeStore) ListNotes(context.Context, string) ([]store.Note, error) {
	return []store.Note{}, nil
}

func (f *fakeStore) ListGroups(context.Context, string) ([]store.Group, error) {
	return []store.Group{}, nil
}

func (f *fakeStore) ListVotes(context.Context, string) ([]store.Vote, error) {
	return []store.Vote{}, nil
}

func (f *fakeStore) ListActionItems(context.Context, string) ([]store.ActionItem, error) {
	return []store.ActionItem{}, nil
}

type fakeRegistry struct {
	saveFn   func(context.Context, string, auth.Identity, time.Time) error
	revokeFn func(context.Context, string) (int, error)

	mu      sync.Mutex
	saved   map[string]auth.Identity
	revoked []string
}

func (f *fakeRegistry) Save(ctx context.Context, jti string, identity auth.Identity, expiresAt time.Time) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, jti, identity, expiresAt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]auth.Identity{}
	}
	f.saved[jti] = identity
	return nil
}

func (f *fakeRegistry) RevokeSession(ctx context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	f.revoked = append(f.revoked, sessionID)
	f.mu.Unlock()
	if f.revokeFn != nil {
		return f.revokeFn(ctx, sessionID)
	}
	return 0, nil
}

type fakeMailer struct {
	configured bool
	sendFn     func(string, email.InvitationData) error

	mu   sync.Mutex
	sent []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendInvitation(to string, data email.InvitationData) error {
	if f.sendFn != nil {
		if err := f.sendFn(to, data); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

type fakeRooms struct {
	closeFn func(string) int
	closed  []string
}

func (f *fakeRooms) CloseRoom(sessionID string) int {
	f.closed = append(f.closed, sessionID)
	if f.closeFn != nil {
		return f.closeFn(sessionID)
	}
	return 0
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     testSecret,
		CredentialTTL: 168 * time.Hour,
		ClientURL:     "http://retro.test",
	}
}

func newTestService(st dataStore, opts ...Option) *Service {
	return New(testConfig(), st, auth.NewGate([]byte(testSecret), nil), opts...)
}

func newTestServer(svc *Service) http.Handler {
	return NewHTTPServer(svc, nil, "*", nil).Handler()
}

func issue(t *testing.T, sessionID, email, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Identity{SessionID: sessionID, Email: email, Role: role}, "jti-"+email, time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// seededStore returns a memory store holding session "s1" run by fac@x.io.
func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.CreateSession(ctx, store.Session{ID: "s1", FacilitatorEmail: "fac@x.io", VotesPerPerson: 3, CurrentPhase: "waiting", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	for _, p := range []store.Participant{
		{SessionID: "s1", Email: "fac@x.io", Role: auth.RoleFacilitator},
		{SessionID: "s1", Email: "amy@x.io", Role: auth.RoleParticipant},
	} {
		if err := st.InsertParticipant(ctx, p); err != nil {
			t.Fatalf("InsertParticipant() error = %v", err)
		}
	}
	if err := st.InsertNote(ctx, store.Note{ID: "n1", SessionID: "s1", AuthorEmail: "amy@x.io", Column: "start", Text: "Pairing", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertNote() error = %v", err)
	}
	return st
}
