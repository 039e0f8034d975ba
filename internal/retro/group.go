package retro

import (
	"context"
	"errors"

	"retro/api/internal/store"
)

type OutcomeKind int

const (
	// OutcomeUnchanged means the group still has two or more notes.
	OutcomeUnchanged OutcomeKind = iota
	// OutcomeDeleted means the group had no notes left and was removed.
	OutcomeDeleted
	// OutcomeDetachedAndDeleted means the single remaining note was ungrouped
	// and then the group was removed.
	OutcomeDetachedAndDeleted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeDetachedAndDeleted:
		return "detached_and_deleted"
	default:
		return "unchanged"
	}
}

// GroupOutcome is the result of checking a group after it lost a member.
type GroupOutcome struct {
	Kind           OutcomeKind
	GroupID        string
	DetachedNoteID string
	VotesRemoved   int
}

// Events returns the room events for the outcome, detach before delete.
func (o GroupOutcome) Events() []Event {
	switch o.Kind {
	case OutcomeDeleted:
		return []Event{GroupDeleted{GroupID: o.GroupID}}
	case OutcomeDetachedAndDeleted:
		return []Event{
			NoteMoved{NoteID: o.DetachedNoteID, GroupID: nil},
			GroupDeleted{GroupID: o.GroupID},
		}
	}
	return nil
}

// reconcileGroup enforces the two-note minimum on groupID. It must run after
// every mutation that can shrink a group, under the session lock.
func (e *Engine) reconcileGroup(ctx context.Context, sessionID, groupID string) (GroupOutcome, error) {
	outcome := GroupOutcome{Kind: OutcomeUnchanged, GroupID: groupID}

	members, err := e.store.ListGroupNotes(ctx, sessionID, groupID)
	if err != nil {
		return outcome, err
	}
	if len(members) >= 2 {
		return outcome, nil
	}

	if len(members) == 1 {
		remaining := members[0]
		if err := e.store.UpdateNotePlacement(ctx, sessionID, remaining.ID, nil, remaining.Column); err != nil {
			return outcome, err
		}
		outcome.DetachedNoteID = remaining.ID
	}

	if err := e.store.DeleteGroup(ctx, sessionID, groupID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return outcome, err
	}
	if outcome.DetachedNoteID != "" {
		outcome.Kind = OutcomeDetachedAndDeleted
	} else {
		outcome.Kind = OutcomeDeleted
	}

	removed, err := e.store.DeleteVotesForTarget(ctx, sessionID, groupID)
	if err != nil {
		return outcome, err
	}
	outcome.VotesRemoved = removed

	e.logger.Debug("group reconciled",
		"session_id", sessionID,
		"group_id", groupID,
		"outcome", outcome.Kind.String(),
		"detached_note_id", outcome.DetachedNoteID,
	)
	return outcome, nil
}
