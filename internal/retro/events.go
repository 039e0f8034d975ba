package retro

import "retro/api/internal/store"

// Event is one outbound message. Its JSON encoding is the wire payload.
type Event interface {
	EventName() string
}

type SessionState struct {
	Session      store.Session       `json:"session"`
	Notes        []store.Note        `json:"notes"`
	Groups       []store.Group       `json:"groups"`
	Votes        []store.Vote        `json:"votes"`
	Actions      []store.ActionItem  `json:"actions"`
	Participants []store.Participant `json:"participants"`
}

func sessionStateFrom(s store.Snapshot) SessionState {
	return SessionState{
		Session:      s.Session,
		Notes:        s.Notes,
		Groups:       s.Groups,
		Votes:        s.Votes,
		Actions:      s.ActionItems,
		Participants: s.Participants,
	}
}

// ParticipantsUpdated carries the whole roster, facilitator first.
type ParticipantsUpdated []store.Participant

type NoteAdded struct {
	store.Note
}

type NoteEdited struct {
	NoteID string `json:"noteId"`
	Text   string `json:"text"`
}

type NoteDeleted struct {
	NoteID string `json:"noteId"`
}

type NoteMoved struct {
	NoteID  string  `json:"noteId"`
	GroupID *string `json:"groupId"`
	Column  *Column `json:"column,omitempty"`
}

type GroupCreated struct {
	Group   store.Group `json:"group"`
	NoteIDs []string    `json:"noteIds"`
}

type GroupUpdated struct {
	GroupID string `json:"groupId"`
	Title   string `json:"title"`
}

type GroupMoved struct {
	GroupID string `json:"groupId"`
	Column  Column `json:"column"`
}

type GroupDeleted struct {
	GroupID string `json:"groupId"`
}

// VotesUpdated carries every vote in the session, never a delta.
type VotesUpdated []store.Vote

type ActionCreated struct {
	store.ActionItem
}

type PhaseChanged struct {
	Phase Phase `json:"phase"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

func (SessionState) EventName() string        { return "session:state" }
func (ParticipantsUpdated) EventName() string { return "participants:updated" }
func (NoteAdded) EventName() string           { return "note:added" }
func (NoteEdited) EventName() string          { return "note:edited" }
func (NoteDeleted) EventName() string         { return "note:deleted" }
func (NoteMoved) EventName() string           { return "note:moved" }
func (GroupCreated) EventName() string        { return "group:created" }
func (GroupUpdated) EventName() string        { return "group:updated" }
func (GroupMoved) EventName() string          { return "group:moved" }
func (GroupDeleted) EventName() string        { return "group:deleted" }
func (VotesUpdated) EventName() string        { return "votes:updated" }
func (ActionCreated) EventName() string       { return "action:created" }
func (PhaseChanged) EventName() string        { return "phase:changed" }
func (ErrorEvent) EventName() string          { return "error" }
