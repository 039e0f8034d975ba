package store

import (
	"context"
	"fmt"
)

// SnapshotReader is the read side shared by PostgresStore and MemoryStore.
type SnapshotReader interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ListParticipants(ctx context.Context, sessionID string) ([]Participant, error)
	ListNotes(ctx context.Context, sessionID string) ([]Note, error)
	ListGroups(ctx context.Context, sessionID string) ([]Group, error)
	ListVotes(ctx context.Context, sessionID string) ([]Vote, error)
	ListActionItems(ctx context.Context, sessionID string) ([]ActionItem, error)
}

// LoadSnapshot reads every row owned by a session. ErrNotFound is returned
// unwrapped when the session does not exist.
func LoadSnapshot(ctx context.Context, r SnapshotReader, sessionID string) (Snapshot, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	participants, err := r.ListParticipants(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	notes, err := r.ListNotes(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	groups, err := r.ListGroups(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	votes, err := r.ListVotes(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	actions, err := r.ListActionItems(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Snapshot{
		Session:      session,
		Participants: participants,
		Notes:        notes,
		Groups:       groups,
		Votes:        votes,
		ActionItems:  actions,
	}, nil
}
