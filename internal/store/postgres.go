package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// isMissingParent reports an insert whose session row no longer exists.
func isMissingParent(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func expectAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retro_sessions (id, facilitator_email, votes_per_person, current_phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, session.ID, session.FacilitatorEmail, session.VotesPerPerson, session.CurrentPhase, session.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var item Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, facilitator_email, votes_per_person, current_phase, created_at, updated_at
		FROM retro_sessions
		WHERE id=$1
	`, sessionID).Scan(&item.ID, &item.FacilitatorEmail, &item.VotesPerPerson, &item.CurrentPhase, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateSessionPhase(ctx context.Context, sessionID, phase string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE retro_sessions SET current_phase=$2, updated_at=NOW() WHERE id=$1
	`, sessionID, phase)
	if err != nil {
		return fmt.Errorf("update session phase: %w", err)
	}
	return expectAffected(result, "update session phase")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM retro_sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectAffected(result, "delete session")
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, participant Participant) error {
	status := participant.Status
	if status == "" {
		status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (session_id, email, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, participant.SessionID, participant.Email, participant.Role, status, participant.JoinedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isMissingParent(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkParticipantJoined(ctx context.Context, sessionID, email string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE participants SET status='joined', joined_at=$3
		WHERE session_id=$1 AND email=$2
	`, sessionID, email, at)
	if err != nil {
		return fmt.Errorf("mark participant joined: %w", err)
	}
	return expectAffected(result, "mark participant joined")
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, email, role, status, joined_at
		FROM participants
		WHERE session_id=$1
		ORDER BY (role = 'facilitator') DESC, joined_at ASC NULLS LAST, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	items := make([]Participant, 0)
	for rows.Next() {
		var item Participant
		var joinedAt sql.NullTime
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Email, &item.Role, &item.Status, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if joinedAt.Valid {
			t := joinedAt.Time
			item.JoinedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return items, nil
}

const noteColumns = `id, session_id, author_email, board_column, text, group_id, created_at`

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var item Note
	var groupID sql.NullString
	if err := row.Scan(&item.ID, &item.SessionID, &item.AuthorEmail, &item.Column, &item.Text, &groupID, &item.CreatedAt); err != nil {
		return Note{}, err
	}
	if groupID.Valid {
		id := groupID.String
		item.GroupID = &id
	}
	return item, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, session_id, author_email, board_column, text, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, note.ID, note.SessionID, note.AuthorEmail, note.Column, note.Text, note.GroupID, note.CreatedAt)
	if isMissingParent(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, sessionID, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE session_id=$1 AND id=$2`, sessionID, noteID)
	item, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, sessionID string) ([]Note, error) {
	return s.queryNotes(ctx, "list notes", `
		SELECT `+noteColumns+` FROM notes WHERE session_id=$1 ORDER BY created_at ASC, id ASC
	`, sessionID)
}

func (s *PostgresStore) ListGroupNotes(ctx context.Context, sessionID, groupID string) ([]Note, error) {
	return s.queryNotes(ctx, "list group notes", `
		SELECT `+noteColumns+` FROM notes WHERE session_id=$1 AND group_id=$2 ORDER BY created_at ASC, id ASC
	`, sessionID, groupID)
}

func (s *PostgresStore) queryNotes(ctx context.Context, op, query string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		item, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateNoteText(ctx context.Context, sessionID, noteID, text string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET text=$3 WHERE session_id=$1 AND id=$2
	`, sessionID, noteID, text)
	if err != nil {
		return fmt.Errorf("update note text: %w", err)
	}
	return expectAffected(result, "update note text")
}

// UpdateNotePlacement sets the group reference and column of a note in one statement.
func (s *PostgresStore) UpdateNotePlacement(ctx context.Context, sessionID, noteID string, groupID *string, column string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET group_id=$3, board_column=$4 WHERE session_id=$1 AND id=$2
	`, sessionID, noteID, groupID, column)
	if err != nil {
		return fmt.Errorf("update note placement: %w", err)
	}
	return expectAffected(result, "update note placement")
}

func (s *PostgresStore) AssignNotesToGroup(ctx context.Context, sessionID, groupID string, noteIDs []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET group_id=$2 WHERE session_id=$1 AND id = ANY($3)
	`, sessionID, groupID, noteIDs)
	if err != nil {
		return fmt.Errorf("assign notes to group: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, sessionID, noteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE session_id=$1 AND id=$2`, sessionID, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return expectAffected(result, "delete note")
}

func (s *PostgresStore) InsertGroup(ctx context.Context, group Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_groups (id, session_id, title, board_column, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, group.ID, group.SessionID, group.Title, group.Column, group.CreatedAt)
	if isMissingParent(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, sessionID, groupID string) (Group, error) {
	var item Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, board_column, created_at
		FROM note_groups
		WHERE session_id=$1 AND id=$2
	`, sessionID, groupID).Scan(&item.ID, &item.SessionID, &item.Title, &item.Column, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, sessionID string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, board_column, created_at
		FROM note_groups
		WHERE session_id=$1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		var item Group
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Title, &item.Column, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateGroupTitle(ctx context.Context, sessionID, groupID, title string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE note_groups SET title=$3 WHERE session_id=$1 AND id=$2
	`, sessionID, groupID, title)
	if err != nil {
		return fmt.Errorf("update group title: %w", err)
	}
	return expectAffected(result, "update group title")
}

func (s *PostgresStore) UpdateGroupColumn(ctx context.Context, sessionID, groupID, column string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE note_groups SET board_column=$3 WHERE session_id=$1 AND id=$2
	`, sessionID, groupID, column)
	if err != nil {
		return fmt.Errorf("update group column: %w", err)
	}
	return expectAffected(result, "update group column")
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, sessionID, groupID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM note_groups WHERE session_id=$1 AND id=$2`, sessionID, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return expectAffected(result, "delete group")
}

func (s *PostgresStore) InsertVote(ctx context.Context, vote Vote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (session_id, email, target_id, target_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, vote.SessionID, vote.Email, vote.TargetID, vote.TargetType, vote.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isMissingParent(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteVote(ctx context.Context, sessionID, email, targetID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM votes WHERE session_id=$1 AND email=$2 AND target_id=$3
	`, sessionID, email, targetID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete vote rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteVotesForTarget(ctx context.Context, sessionID, targetID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM votes WHERE session_id=$1 AND target_id=$2`, sessionID, targetID)
	if err != nil {
		return 0, fmt.Errorf("delete target votes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete target votes rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) CountVotesByEmail(ctx context.Context, sessionID, email string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes WHERE session_id=$1 AND email=$2
	`, sessionID, email).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, sessionID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, email, target_id, target_type, created_at
		FROM votes
		WHERE session_id=$1
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	items := make([]Vote, 0)
	for rows.Next() {
		var item Vote
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Email, &item.TargetID, &item.TargetType, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertActionItem(ctx context.Context, item ActionItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_items (id, session_id, title, assignee, linked_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.SessionID, item.Title, item.Assignee, item.LinkedTo, item.CreatedAt)
	if isMissingParent(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert action item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActionItems(ctx context.Context, sessionID string) ([]ActionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, assignee, linked_to, created_at
		FROM action_items
		WHERE session_id=$1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()

	items := make([]ActionItem, 0)
	for rows.Next() {
		var item ActionItem
		var linkedTo sql.NullString
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Title, &item.Assignee, &linkedTo, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		if linkedTo.Valid {
			id := linkedTo.String
			item.LinkedTo = &id
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action items: %w", err)
	}
	return items, nil
}
