package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It backs development runs
// without DATABASE_URL and the engine tests; every method mirrors a single
// PostgresStore statement, including the cascade on session delete.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	nextID       int64
	sessions     map[string]Session
	participants map[string][]Participant
	notes        map[string]Note
	groups       map[string]Group
	votes        []Vote
	actions      []ActionItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          time.Now,
		sessions:     map[string]Session{},
		participants: map[string][]Participant{},
		notes:        map[string]Note{},
		groups:       map[string]Group{},
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateSession(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return ErrDuplicate
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) UpdateSessionPhase(_ context.Context, sessionID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.CurrentPhase = phase
	session.UpdatedAt = s.now().UTC()
	s.sessions[sessionID] = session
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.participants, sessionID)
	for id, note := range s.notes {
		if note.SessionID == sessionID {
			delete(s.notes, id)
		}
	}
	for id, group := range s.groups {
		if group.SessionID == sessionID {
			delete(s.groups, id)
		}
	}
	s.votes = filter(s.votes, func(v Vote) bool { return v.SessionID != sessionID })
	s.actions = filter(s.actions, func(a ActionItem) bool { return a.SessionID != sessionID })
	return nil
}

func (s *MemoryStore) InsertParticipant(_ context.Context, participant Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[participant.SessionID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.participants[participant.SessionID] {
		if existing.Email == participant.Email {
			return ErrDuplicate
		}
	}
	s.nextID++
	participant.ID = s.nextID
	if participant.Status == "" {
		participant.Status = StatusPending
	}
	s.participants[participant.SessionID] = append(s.participants[participant.SessionID], participant)
	return nil
}

func (s *MemoryStore) MarkParticipantJoined(_ context.Context, sessionID, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.participants[sessionID]
	for i := range items {
		if items[i].Email == email {
			joinedAt := at
			items[i].Status = StatusJoined
			items[i].JoinedAt = &joinedAt
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListParticipants(_ context.Context, sessionID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]Participant(nil), s.participants[sessionID]...)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.Role == "facilitator") != (b.Role == "facilitator") {
			return a.Role == "facilitator"
		}
		switch {
		case a.JoinedAt != nil && b.JoinedAt != nil:
			if !a.JoinedAt.Equal(*b.JoinedAt) {
				return a.JoinedAt.Before(*b.JoinedAt)
			}
		case a.JoinedAt != nil:
			return true
		case b.JoinedAt != nil:
			return false
		}
		return a.ID < b.ID
	})
	if items == nil {
		items = make([]Participant, 0)
	}
	return items, nil
}

func (s *MemoryStore) InsertNote(_ context.Context, note Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[note.SessionID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.notes[note.ID]; ok {
		return ErrDuplicate
	}
	s.notes[note.ID] = cloneNote(note)
	return nil
}

func (s *MemoryStore) GetNote(_ context.Context, sessionID, noteID string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok || note.SessionID != sessionID {
		return Note{}, ErrNotFound
	}
	return cloneNote(note), nil
}

func (s *MemoryStore) ListNotes(_ context.Context, sessionID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedNotes(func(n Note) bool { return n.SessionID == sessionID }), nil
}

func (s *MemoryStore) ListGroupNotes(_ context.Context, sessionID, groupID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedNotes(func(n Note) bool { return n.SessionID == sessionID && n.InGroup(groupID) }), nil
}

func (s *MemoryStore) sortedNotes(keep func(Note) bool) []Note {
	items := make([]Note, 0)
	for _, note := range s.notes {
		if keep(note) {
			items = append(items, cloneNote(note))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (s *MemoryStore) UpdateNoteText(_ context.Context, sessionID, noteID, text string) error {
	return s.updateNote(sessionID, noteID, func(n *Note) { n.Text = text })
}

func (s *MemoryStore) UpdateNotePlacement(_ context.Context, sessionID, noteID string, groupID *string, column string) error {
	return s.updateNote(sessionID, noteID, func(n *Note) {
		n.GroupID = cloneString(groupID)
		n.Column = column
	})
}

func (s *MemoryStore) updateNote(sessionID, noteID string, apply func(*Note)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok || note.SessionID != sessionID {
		return ErrNotFound
	}
	apply(&note)
	s.notes[noteID] = note
	return nil
}

func (s *MemoryStore) AssignNotesToGroup(_ context.Context, sessionID, groupID string, noteIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range noteIDs {
		note, ok := s.notes[id]
		if !ok || note.SessionID != sessionID {
			continue
		}
		note.GroupID = cloneString(&groupID)
		s.notes[id] = note
	}
	return nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, sessionID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok || note.SessionID != sessionID {
		return ErrNotFound
	}
	delete(s.notes, noteID)
	return nil
}

func (s *MemoryStore) InsertGroup(_ context.Context, group Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[group.SessionID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.groups[group.ID]; ok {
		return ErrDuplicate
	}
	s.groups[group.ID] = group
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, sessionID, groupID string) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok || group.SessionID != sessionID {
		return Group{}, ErrNotFound
	}
	return group, nil
}

func (s *MemoryStore) ListGroups(_ context.Context, sessionID string) ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Group, 0)
	for _, group := range s.groups {
		if group.SessionID == sessionID {
			items = append(items, group)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) UpdateGroupTitle(_ context.Context, sessionID, groupID, title string) error {
	return s.updateGroup(sessionID, groupID, func(g *Group) { g.Title = title })
}

func (s *MemoryStore) UpdateGroupColumn(_ context.Context, sessionID, groupID, column string) error {
	return s.updateGroup(sessionID, groupID, func(g *Group) { g.Column = column })
}

func (s *MemoryStore) updateGroup(sessionID, groupID string, apply func(*Group)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok || group.SessionID != sessionID {
		return ErrNotFound
	}
	apply(&group)
	s.groups[groupID] = group
	return nil
}

// DeleteGroup removes the group and clears the reference of any member note,
// matching the ON DELETE SET NULL foreign key.
func (s *MemoryStore) DeleteGroup(_ context.Context, sessionID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok || group.SessionID != sessionID {
		return ErrNotFound
	}
	delete(s.groups, groupID)
	for id, note := range s.notes {
		if note.InGroup(groupID) {
			note.GroupID = nil
			s.notes[id] = note
		}
	}
	return nil
}

func (s *MemoryStore) InsertVote(_ context.Context, vote Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[vote.SessionID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.votes {
		if existing.SessionID == vote.SessionID && existing.Email == vote.Email && existing.TargetID == vote.TargetID {
			return ErrDuplicate
		}
	}
	s.nextID++
	vote.ID = s.nextID
	s.votes = append(s.votes, vote)
	return nil
}

func (s *MemoryStore) DeleteVote(_ context.Context, sessionID, email, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.votes)
	s.votes = filter(s.votes, func(v Vote) bool {
		return !(v.SessionID == sessionID && v.Email == email && v.TargetID == targetID)
	})
	return len(s.votes) < before, nil
}

func (s *MemoryStore) DeleteVotesForTarget(_ context.Context, sessionID, targetID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.votes)
	s.votes = filter(s.votes, func(v Vote) bool {
		return !(v.SessionID == sessionID && v.TargetID == targetID)
	})
	return before - len(s.votes), nil
}

func (s *MemoryStore) CountVotesByEmail(_ context.Context, sessionID, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.Email == email {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListVotes(_ context.Context, sessionID string) ([]Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.votes, func(v Vote) bool { return v.SessionID == sessionID }), nil
}

func (s *MemoryStore) InsertActionItem(_ context.Context, item ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[item.SessionID]; !ok {
		return ErrNotFound
	}
	item.LinkedTo = cloneString(item.LinkedTo)
	s.actions = append(s.actions, item)
	return nil
}

func (s *MemoryStore) ListActionItems(_ context.Context, sessionID string) ([]ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.actions, func(a ActionItem) bool { return a.SessionID == sessionID }), nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneNote(n Note) Note {
	n.GroupID = cloneString(n.GroupID)
	return n
}
