package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a keyed row does not exist in the session.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
)

const (
	StatusPending = "pending"
	StatusJoined  = "joined"
)

type Session struct {
	ID               string    `json:"id"`
	FacilitatorEmail string    `json:"facilitator_email"`
	VotesPerPerson   int       `json:"votes_per_person"`
	CurrentPhase     string    `json:"current_phase"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Participant struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	JoinedAt  *time.Time `json:"joined_at"`
}

type Note struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AuthorEmail string    `json:"author_email"`
	Column      string    `json:"column"`
	Text        string    `json:"text"`
	GroupID     *string   `json:"group_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// InGroup reports whether the note currently belongs to groupID.
func (n Note) InGroup(groupID string) bool {
	return n.GroupID != nil && *n.GroupID == groupID
}

type Group struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Column    string    `json:"column"`
	CreatedAt time.Time `json:"created_at"`
}

type Vote struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Email      string    `json:"email"`
	TargetID   string    `json:"target_id"`
	TargetType string    `json:"target_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActionItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Assignee  string    `json:"assignee"`
	LinkedTo  *string   `json:"linked_to"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the full persisted state of one session.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	Notes        []Note        `json:"notes"`
	Groups       []Group       `json:"groups"`
	Votes        []Vote        `json:"votes"`
	ActionItems  []ActionItem  `json:"actions"`
}
