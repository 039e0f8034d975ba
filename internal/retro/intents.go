package retro

import (
	"encoding/json"
	"strings"
)

// Intent is one inbound client request. The set is closed; Engine.Handle
// switches over every implementation.
type Intent interface {
	Name() string
	// failure is the generic message reported when the store fails.
	failure() string
}

type Join struct {
	Credential string `json:"credential"`
	Token      string `json:"token"`
}

// Secret returns whichever credential field the client filled in.
func (j Join) Secret() string {
	if c := strings.TrimSpace(j.Credential); c != "" {
		return c
	}
	return strings.TrimSpace(j.Token)
}

type AddNote struct {
	Column string `json:"column"`
	Text   string `json:"text"`
}

type EditNote struct {
	NoteID string `json:"noteId"`
	Text   string `json:"text"`
}

type DeleteNote struct {
	NoteID string `json:"noteId"`
}

// MoveNote targets a group, or detaches the note when GroupID is nil.
type MoveNote struct {
	NoteID  string  `json:"noteId"`
	GroupID *string `json:"groupId"`
	Column  *string `json:"column,omitempty"`
}

type CreateGroup struct {
	Column  string   `json:"column"`
	NoteIDs []string `json:"noteIds"`
}

type UpdateGroup struct {
	GroupID string `json:"groupId"`
	Title   string `json:"title"`
}

type MoveGroup struct {
	GroupID string `json:"groupId"`
	Column  string `json:"column"`
}

type CastVote struct {
	TargetID   string `json:"targetId"`
	TargetType string `json:"targetType"`
}

type RemoveVote struct {
	TargetID string `json:"targetId"`
}

type CreateAction struct {
	Title    string  `json:"title"`
	Assignee string  `json:"assignee"`
	LinkedTo *string `json:"linkedTo,omitempty"`
}

type ChangePhase struct {
	Phase string `json:"phase"`
}

func (Join) Name() string         { return "join" }
func (AddNote) Name() string      { return "note:add" }
func (EditNote) Name() string     { return "note:edit" }
func (DeleteNote) Name() string   { return "note:delete" }
func (MoveNote) Name() string     { return "note:move" }
func (CreateGroup) Name() string  { return "group:create" }
func (UpdateGroup) Name() string  { return "group:update" }
func (MoveGroup) Name() string    { return "group:move" }
func (CastVote) Name() string     { return "vote:cast" }
func (RemoveVote) Name() string   { return "vote:remove" }
func (CreateAction) Name() string { return "action:create" }
func (ChangePhase) Name() string  { return "phase:change" }

func (Join) failure() string         { return "Failed to join session" }
func (AddNote) failure() string      { return "Failed to add note" }
func (EditNote) failure() string     { return "Failed to edit note" }
func (DeleteNote) failure() string   { return "Failed to delete note" }
func (MoveNote) failure() string     { return "Failed to move note" }
func (CreateGroup) failure() string  { return "Failed to create group" }
func (UpdateGroup) failure() string  { return "Failed to update group" }
func (MoveGroup) failure() string    { return "Failed to move group" }
func (CastVote) failure() string     { return "Failed to cast vote" }
func (RemoveVote) failure() string   { return "Failed to remove vote" }
func (CreateAction) failure() string { return "Failed to create action item" }
func (ChangePhase) failure() string  { return "Failed to change phase" }

// DecodeIntent turns a named wire event into its typed intent.
func DecodeIntent(name string, payload json.RawMessage) (Intent, error) {
	var target Intent
	switch name {
	case "join":
		target = &Join{}
	case "note:add":
		target = &AddNote{}
	case "note:edit":
		target = &EditNote{}
	case "note:delete":
		target = &DeleteNote{}
	case "note:move":
		target = &MoveNote{}
	case "group:create":
		target = &CreateGroup{}
	case "group:update":
		target = &UpdateGroup{}
	case "group:move":
		target = &MoveGroup{}
	case "vote:cast":
		target = &CastVote{}
	case "vote:remove":
		target = &RemoveVote{}
	case "action:create":
		target = &CreateAction{}
	case "phase:change":
		target = &ChangePhase{}
	default:
		return nil, newError(CodeInvalidArgument, "Unsupported event type")
	}

	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, newError(CodeInvalidArgument, "Invalid "+name+" payload")
		}
	}
	return deref(target), nil
}

func deref(in Intent) Intent {
	switch v := in.(type) {
	case *Join:
		return *v
	case *AddNote:
		return *v
	case *EditNote:
		return *v
	case *DeleteNote:
		return *v
	case *MoveNote:
		return *v
	case *CreateGroup:
		return *v
	case *UpdateGroup:
		return *v
	case *MoveGroup:
		return *v
	case *CastVote:
		return *v
	case *RemoveVote:
		return *v
	case *CreateAction:
		return *v
	case *ChangePhase:
		return *v
	}
	return in
}
