package retro

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"retro/api/internal/auth"
	"retro/api/internal/rbac"
	"retro/api/internal/store"
	"retro/api/internal/util"
)

// Store is the persistence the engine needs. Every method is a single
// statement; PostgresStore and MemoryStore both satisfy it.
type Store interface {
	store.SnapshotReader

	UpdateSessionPhase(ctx context.Context, sessionID, phase string) error
	MarkParticipantJoined(ctx context.Context, sessionID, email string, at time.Time) error

	InsertNote(ctx context.Context, note store.Note) error
	GetNote(ctx context.Context, sessionID, noteID string) (store.Note, error)
	ListGroupNotes(ctx context.Context, sessionID, groupID string) ([]store.Note, error)
	UpdateNoteText(ctx context.Context, sessionID, noteID, text string) error
	UpdateNotePlacement(ctx context.Context, sessionID, noteID string, groupID *string, column string) error
	AssignNotesToGroup(ctx context.Context, sessionID, groupID string, noteIDs []string) error
	DeleteNote(ctx context.Context, sessionID, noteID string) error

	InsertGroup(ctx context.Context, group store.Group) error
	GetGroup(ctx context.Context, sessionID, groupID string) (store.Group, error)
	UpdateGroupTitle(ctx context.Context, sessionID, groupID, title string) error
	UpdateGroupColumn(ctx context.Context, sessionID, groupID, column string) error
	DeleteGroup(ctx context.Context, sessionID, groupID string) error

	InsertVote(ctx context.Context, vote store.Vote) error
	DeleteVote(ctx context.Context, sessionID, email, targetID string) (bool, error)
	DeleteVotesForTarget(ctx context.Context, sessionID, targetID string) (int, error)
	CountVotesByEmail(ctx context.Context, sessionID, email string) (int, error)

	InsertActionItem(ctx context.Context, item store.ActionItem) error
}

// Verifier turns a credential into the identity it was issued for.
type Verifier interface {
	Verify(ctx context.Context, credential string) (auth.Identity, error)
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(newID func(prefix string) string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// Engine applies client intents to a session board. Intents for one session
// run one at a time, and their events are broadcast before the next starts.
type Engine struct {
	store     Store
	gate      Verifier
	directory *Directory
	logger    *slog.Logger
	now       func() time.Time
	newID     func(prefix string) string
	locks     sessionLocks
}

func NewEngine(st Store, gate Verifier, directory *Directory, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		gate:      gate,
		directory: directory,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		newID:     util.NewID,
		locks:     sessionLocks{held: make(map[string]*sessionLock)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle runs one intent for conn. Failures are sent to conn as an error
// event and returned; they never reach the rest of the room.
func (e *Engine) Handle(ctx context.Context, conn Conn, intent Intent) error {
	if join, ok := intent.(Join); ok {
		return e.Attach(ctx, conn, join.Secret())
	}

	identity, ok := e.directory.Identity(conn)
	if !ok {
		return e.fail(conn, auth.Identity{}, intent, newError(CodeUnauthenticated, "Join a session first"))
	}

	unlock := e.locks.lock(identity.SessionID)
	defer unlock()

	var err error
	switch in := intent.(type) {
	case AddNote:
		err = e.addNote(ctx, identity, in)
	case EditNote:
		err = e.editNote(ctx, identity, in)
	case DeleteNote:
		err = e.deleteNote(ctx, identity, in)
	case MoveNote:
		err = e.moveNote(ctx, identity, in)
	case CreateGroup:
		err = e.createGroup(ctx, identity, in)
	case UpdateGroup:
		err = e.updateGroup(ctx, identity, in)
	case MoveGroup:
		err = e.moveGroup(ctx, identity, in)
	case CastVote:
		err = e.castVote(ctx, identity, in)
	case RemoveVote:
		err = e.removeVote(ctx, identity, in)
	case CreateAction:
		err = e.createAction(ctx, identity, in)
	case ChangePhase:
		err = e.changePhase(ctx, identity, in)
	default:
		err = newError(CodeInvalidArgument, "Unsupported event type")
	}
	if err != nil {
		return e.fail(conn, identity, intent, err)
	}
	return nil
}

// Attach authenticates conn, marks the participant joined, announces the
// roster to the room and sends the full board to conn alone.
func (e *Engine) Attach(ctx context.Context, conn Conn, credential string) error {
	join := Join{Credential: credential}
	identity, err := e.gate.Verify(ctx, credential)
	if err != nil {
		e.logger.Info("join rejected", "conn_id", conn.ID(), "error", err)
		return e.fail(conn, auth.Identity{}, join, newError(CodeUnauthenticated, "Invalid token"))
	}

	unlock := e.locks.lock(identity.SessionID)
	defer unlock()

	if err := e.attach(ctx, conn, identity); err != nil {
		return e.fail(conn, identity, join, err)
	}
	e.logger.Info("participant joined",
		"session_id", identity.SessionID,
		"email", identity.Email,
		"role", identity.Role,
		"conn_id", conn.ID(),
	)
	return nil
}

func (e *Engine) attach(ctx context.Context, conn Conn, identity auth.Identity) error {
	if _, err := e.store.GetSession(ctx, identity.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(CodeNotFound, "Session not found")
		}
		return err
	}
	if err := e.store.MarkParticipantJoined(ctx, identity.SessionID, identity.Email, e.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(CodeForbidden, "Not a participant in this session")
		}
		return err
	}

	e.directory.Attach(identity, conn)

	participants, err := e.store.ListParticipants(ctx, identity.SessionID)
	if err != nil {
		return err
	}
	e.directory.Broadcast(identity.SessionID, ParticipantsUpdated(participants))

	snapshot, err := store.LoadSnapshot(ctx, e.store, identity.SessionID)
	if err != nil {
		return err
	}
	return conn.Send(sessionStateFrom(snapshot))
}

// Detach drops conn from its room. Participant status is left as joined.
func (e *Engine) Detach(conn Conn) {
	if identity, ok := e.directory.Detach(conn); ok {
		e.logger.Info("participant left",
			"session_id", identity.SessionID,
			"email", identity.Email,
			"conn_id", conn.ID(),
		)
	}
}

func (e *Engine) fail(conn Conn, identity auth.Identity, intent Intent, err error) error {
	var retroErr *Error
	switch {
	case errors.As(err, &retroErr):
	case errors.Is(err, store.ErrNotFound):
		// looked-up rows are reported earlier; a bare miss is the session row
		e.logger.Info("intent on deleted session",
			"event", intent.Name(),
			"session_id", identity.SessionID,
			"conn_id", conn.ID(),
		)
		retroErr = newError(CodeNotFound, "Session not found")
	default:
		e.logger.Error("intent failed",
			"event", intent.Name(),
			"session_id", identity.SessionID,
			"email", identity.Email,
			"error", err,
		)
		retroErr = newError(CodeServerError, intent.failure())
	}
	if sendErr := conn.Send(ErrorEvent{Message: retroErr.Message, Code: retroErr.Code}); sendErr != nil {
		e.logger.Warn("error delivery failed", "conn_id", conn.ID(), "error", sendErr)
	}
	return retroErr
}

func (e *Engine) broadcast(sessionID string, events ...Event) {
	for _, event := range events {
		e.directory.Broadcast(sessionID, event)
	}
}

func (e *Engine) broadcastVotes(ctx context.Context, sessionID string) error {
	votes, err := e.store.ListVotes(ctx, sessionID)
	if err != nil {
		return err
	}
	e.broadcast(sessionID, VotesUpdated(votes))
	return nil
}

func (e *Engine) addNote(ctx context.Context, identity auth.Identity, in AddNote) error {
	column, ok := ParseNoteColumn(in.Column)
	if !ok {
		return newError(CodeInvalidArgument, "Invalid column")
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return newError(CodeInvalidArgument, "Note text is required")
	}

	note := store.Note{
		ID:          e.newID("note"),
		SessionID:   identity.SessionID,
		AuthorEmail: identity.Email,
		Column:      string(column),
		Text:        text,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.InsertNote(ctx, note); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, NoteAdded{Note: note})
	return nil
}

func (e *Engine) loadNote(ctx context.Context, sessionID, noteID string) (store.Note, error) {
	note, err := e.store.GetNote(ctx, sessionID, strings.TrimSpace(noteID))
	if errors.Is(err, store.ErrNotFound) {
		return store.Note{}, newError(CodeNotFound, "Note not found")
	}
	return note, err
}

func (e *Engine) loadGroup(ctx context.Context, sessionID, groupID string) (store.Group, error) {
	group, err := e.store.GetGroup(ctx, sessionID, strings.TrimSpace(groupID))
	if errors.Is(err, store.ErrNotFound) {
		return store.Group{}, newError(CodeNotFound, "Group not found")
	}
	return group, err
}

func (e *Engine) editNote(ctx context.Context, identity auth.Identity, in EditNote) error {
	note, err := e.loadNote(ctx, identity.SessionID, in.NoteID)
	if err != nil {
		return err
	}
	if note.AuthorEmail != identity.Email {
		return newError(CodeForbidden, "Can only edit your own notes")
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return newError(CodeInvalidArgument, "Note text is required")
	}
	if err := e.store.UpdateNoteText(ctx, identity.SessionID, note.ID, text); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, NoteEdited{NoteID: note.ID, Text: text})
	return nil
}

func (e *Engine) deleteNote(ctx context.Context, identity auth.Identity, in DeleteNote) error {
	note, err := e.loadNote(ctx, identity.SessionID, in.NoteID)
	if err != nil {
		return err
	}
	if note.AuthorEmail != identity.Email {
		return newError(CodeForbidden, "Can only delete your own notes")
	}
	if err := e.store.DeleteNote(ctx, identity.SessionID, note.ID); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, NoteDeleted{NoteID: note.ID})

	votesRemoved, err := e.store.DeleteVotesForTarget(ctx, identity.SessionID, note.ID)
	if err != nil {
		return err
	}
	if note.GroupID != nil {
		outcome, err := e.reconcileGroup(ctx, identity.SessionID, *note.GroupID)
		if err != nil {
			return err
		}
		e.broadcast(identity.SessionID, outcome.Events()...)
		votesRemoved += outcome.VotesRemoved
	}
	if votesRemoved > 0 {
		return e.broadcastVotes(ctx, identity.SessionID)
	}
	return nil
}

func (e *Engine) moveNote(ctx context.Context, identity auth.Identity, in MoveNote) error {
	note, err := e.loadNote(ctx, identity.SessionID, in.NoteID)
	if err != nil {
		return err
	}

	var target *string
	if in.GroupID != nil && strings.TrimSpace(*in.GroupID) != "" {
		group, err := e.loadGroup(ctx, identity.SessionID, *in.GroupID)
		if err != nil {
			return err
		}
		target = &group.ID
	}

	column := note.Column
	var requested *Column
	if in.Column != nil {
		parsed, ok := ParseNoteColumn(*in.Column)
		if !ok {
			return newError(CodeInvalidArgument, "Invalid column")
		}
		requested = &parsed
		column = string(parsed)
	}

	if err := e.store.UpdateNotePlacement(ctx, identity.SessionID, note.ID, target, column); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, NoteMoved{NoteID: note.ID, GroupID: target, Column: requested})

	if note.GroupID == nil || (target != nil && *target == *note.GroupID) {
		return nil
	}
	outcome, err := e.reconcileGroup(ctx, identity.SessionID, *note.GroupID)
	if err != nil {
		return err
	}
	e.broadcast(identity.SessionID, outcome.Events()...)
	if outcome.VotesRemoved > 0 {
		return e.broadcastVotes(ctx, identity.SessionID)
	}
	return nil
}

func (e *Engine) createGroup(ctx context.Context, identity auth.Identity, in CreateGroup) error {
	requested, ok := ParseGroupColumn(in.Column)
	if !ok {
		return newError(CodeInvalidArgument, "Invalid column")
	}

	noteIDs := make([]string, 0, len(in.NoteIDs))
	seen := make(map[string]struct{}, len(in.NoteIDs))
	for _, id := range in.NoteIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		noteIDs = append(noteIDs, id)
	}
	if len(noteIDs) < 2 {
		return newError(CodeInvalidArgument, "A group needs at least two notes")
	}

	columns := make([]Column, 0, len(noteIDs))
	var previousGroups []string
	for _, id := range noteIDs {
		note, err := e.loadNote(ctx, identity.SessionID, id)
		if err != nil {
			return err
		}
		columns = append(columns, Column(note.Column))
		if note.GroupID != nil && !contains(previousGroups, *note.GroupID) {
			previousGroups = append(previousGroups, *note.GroupID)
		}
	}

	group := store.Group{
		ID:        e.newID("group"),
		SessionID: identity.SessionID,
		Title:     "",
		Column:    string(GroupColumn(requested, columns)),
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.InsertGroup(ctx, group); err != nil {
		return err
	}
	if err := e.store.AssignNotesToGroup(ctx, identity.SessionID, group.ID, noteIDs); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, GroupCreated{Group: group, NoteIDs: noteIDs})

	votesRemoved := 0
	for _, previous := range previousGroups {
		outcome, err := e.reconcileGroup(ctx, identity.SessionID, previous)
		if err != nil {
			return err
		}
		e.broadcast(identity.SessionID, outcome.Events()...)
		votesRemoved += outcome.VotesRemoved
	}
	if votesRemoved > 0 {
		return e.broadcastVotes(ctx, identity.SessionID)
	}
	return nil
}

func (e *Engine) updateGroup(ctx context.Context, identity auth.Identity, in UpdateGroup) error {
	group, err := e.loadGroup(ctx, identity.SessionID, in.GroupID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateGroupTitle(ctx, identity.SessionID, group.ID, in.Title); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, GroupUpdated{GroupID: group.ID, Title: in.Title})
	return nil
}

func (e *Engine) moveGroup(ctx context.Context, identity auth.Identity, in MoveGroup) error {
	column, ok := ParseGroupColumn(in.Column)
	if !ok {
		return newError(CodeInvalidArgument, "Invalid column")
	}
	group, err := e.loadGroup(ctx, identity.SessionID, in.GroupID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateGroupColumn(ctx, identity.SessionID, group.ID, string(column)); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, GroupMoved{GroupID: group.ID, Column: column})
	return nil
}

func (e *Engine) castVote(ctx context.Context, identity auth.Identity, in CastVote) error {
	targetType, ok := ParseTargetType(in.TargetType)
	if !ok {
		return newError(CodeInvalidArgument, "Invalid vote target type")
	}
	targetID := strings.TrimSpace(in.TargetID)
	switch targetType {
	case TargetNote:
		if _, err := e.loadNote(ctx, identity.SessionID, targetID); err != nil {
			return err
		}
	case TargetGroup:
		if _, err := e.loadGroup(ctx, identity.SessionID, targetID); err != nil {
			return err
		}
	}

	session, err := e.store.GetSession(ctx, identity.SessionID)
	if err != nil {
		return err
	}
	held, err := e.store.CountVotesByEmail(ctx, identity.SessionID, identity.Email)
	if err != nil {
		return err
	}
	if held >= session.VotesPerPerson {
		return newError(CodeVoteLimit, "Vote limit reached")
	}

	err = e.store.InsertVote(ctx, store.Vote{
		SessionID:  identity.SessionID,
		Email:      identity.Email,
		TargetID:   targetID,
		TargetType: string(targetType),
		CreatedAt:  e.now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return newError(CodeAlreadyVoted, "Already voted for this item")
	}
	if err != nil {
		return err
	}
	return e.broadcastVotes(ctx, identity.SessionID)
}

func (e *Engine) removeVote(ctx context.Context, identity auth.Identity, in RemoveVote) error {
	if _, err := e.store.DeleteVote(ctx, identity.SessionID, identity.Email, strings.TrimSpace(in.TargetID)); err != nil {
		return err
	}
	return e.broadcastVotes(ctx, identity.SessionID)
}

func (e *Engine) createAction(ctx context.Context, identity auth.Identity, in CreateAction) error {
	if !rbac.Can(rbac.Normalize(identity.Role), rbac.ActionCreateAction) {
		return newError(CodeForbidden, "Only facilitator can create action items")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return newError(CodeInvalidArgument, "Action item title is required")
	}
	var linkedTo *string
	if in.LinkedTo != nil {
		if id := strings.TrimSpace(*in.LinkedTo); id != "" {
			linkedTo = &id
		}
	}

	item := store.ActionItem{
		ID:        e.newID("action"),
		SessionID: identity.SessionID,
		Title:     title,
		Assignee:  strings.TrimSpace(in.Assignee),
		LinkedTo:  linkedTo,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.InsertActionItem(ctx, item); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, ActionCreated{ActionItem: item})
	return nil
}

// changePhase persists any known phase the facilitator asks for; it does not
// check that the phase follows the current one.
func (e *Engine) changePhase(ctx context.Context, identity auth.Identity, in ChangePhase) error {
	if !rbac.Can(rbac.Normalize(identity.Role), rbac.ActionChangePhase) {
		return newError(CodeForbidden, "Only facilitator can change phase")
	}
	phase, ok := ParsePhase(strings.TrimSpace(in.Phase))
	if !ok {
		return newError(CodeInvalidArgument, "Unknown phase")
	}
	if err := e.store.UpdateSessionPhase(ctx, identity.SessionID, string(phase)); err != nil {
		return err
	}
	e.broadcast(identity.SessionID, PhaseChanged{Phase: phase})
	return nil
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks hands out one mutex per session and forgets it once no
// caller holds or waits on it.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]*sessionLock
}

func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	entry, ok := l.held[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.held[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, sessionID)
		}
		l.mu.Unlock()
	}
}
