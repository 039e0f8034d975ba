package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"retro/api/internal/auth"
	"retro/api/internal/config"
	"retro/api/internal/email"
	"retro/api/internal/export"
	"retro/api/internal/rbac"
	"retro/api/internal/retro"
	"retro/api/internal/store"
	"retro/api/internal/util"
)

const sessionIDLength = 10

type dataStore interface {
	store.SnapshotReader
	Ping(context.Context) error
	CreateSession(context.Context, store.Session) error
	InsertParticipant(context.Context, store.Participant) error
	DeleteSession(context.Context, string) error
}

type verifier interface {
	Verify(ctx context.Context, credential string) (auth.Identity, error)
}

// credentialRegistry is implemented by credentials.RedisRegistry.
type credentialRegistry interface {
	Save(ctx context.Context, jti string, identity auth.Identity, expiresAt time.Time) error
	RevokeSession(ctx context.Context, sessionID string) (int, error)
}

type mailer interface {
	IsConfigured() bool
	SendInvitation(to string, data email.InvitationData) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type roomCloser interface {
	CloseRoom(sessionID string) int
}

type Service struct {
	cfg      config.Config
	store    dataStore
	gate     verifier
	registry credentialRegistry
	mailer   mailer
	exporter exporter
	rooms    roomCloser
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithRegistry(r credentialRegistry) Option { return func(s *Service) { s.registry = r } }
func WithMailer(m mailer) Option { return func(s *Service) { s.mailer = m } }
func WithExporter(e exporter) Option { return func(s *Service) { s.exporter = e } }
func WithRooms(r roomCloser) Option { return func(s *Service) { s.rooms = r } }

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(cfg config.Config, st dataStore, gate verifier, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  st,
		gate:   gate,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter == nil {
		s.exporter = export.NewService(st, export.WithLogger(s.logger))
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type CreateSessionInput struct {
	Emails           []string `json:"emails"`
	FacilitatorEmail string   `json:"facilitatorEmail"`
	VotesPerPerson   int      `json:"votesPerPerson"`
}

type MagicLink struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	Token   string `json:"token"`
	Link    string `json:"link"`
	Emailed bool   `json:"emailed"`
}

type CreateSessionResult struct {
	SessionID  string      `json:"sessionId"`
	MagicLinks []MagicLink `json:"magicLinks"`
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// validate returns the distinct, normalized participant emails.
func (in CreateSessionInput) validate() ([]string, string, error) {
	seen := make(map[string]struct{}, len(in.Emails))
	emails := make([]string, 0, len(in.Emails))
	for _, raw := range in.Emails {
		e := normalizeEmail(raw)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "@") {
			return nil, "", invalidArgument("Invalid email: " + strings.TrimSpace(raw))
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		emails = append(emails, e)
	}
	if len(emails) < 2 {
		return nil, "", invalidArgument("At least 2 emails required")
	}
	facilitator := normalizeEmail(in.FacilitatorEmail)
	if _, ok := seen[facilitator]; !ok || facilitator == "" {
		return nil, "", invalidArgument("Facilitator must be in participant list")
	}
	if in.VotesPerPerson < 1 {
		return nil, "", invalidArgument("Invalid votes per person")
	}
	return emails, facilitator, nil
}

// CreateSession persists a session with its roster and issues one
// credential per participant.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error) {
	emails, facilitator, err := in.validate()
	if err != nil {
		return CreateSessionResult{}, err
	}

	now := s.now().UTC()
	session := store.Session{
		ID:               util.ShortID(sessionIDLength),
		FacilitatorEmail: facilitator,
		VotesPerPerson:   in.VotesPerPerson,
		CurrentPhase:     string(retro.PhaseWaiting),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return CreateSessionResult{}, fmt.Errorf("create session: %w", err)
	}

	expiresAt := now.Add(s.cfg.CredentialTTL)
	result := CreateSessionResult{SessionID: session.ID, MagicLinks: make([]MagicLink, 0, len(emails))}
	for _, e := range emails {
		role := auth.RoleParticipant
		if e == facilitator {
			role = auth.RoleFacilitator
		}
		if err := s.store.InsertParticipant(ctx, store.Participant{SessionID: session.ID, Email: e, Role: role, Status: store.StatusPending}); err != nil {
			s.abandon(session.ID)
			return CreateSessionResult{}, fmt.Errorf("insert participant: %w", err)
		}
		link, err := s.issueLink(ctx, auth.Identity{SessionID: session.ID, Email: e, Role: role}, now, expiresAt)
		if err != nil {
			s.abandon(session.ID)
			return CreateSessionResult{}, err
		}
		result.MagicLinks = append(result.MagicLinks, link)
	}

	s.sendInvitations(session, result.MagicLinks, expiresAt)
	s.logger.Info("session created", "session_id", session.ID, "participants", len(emails), "votes_per_person", session.VotesPerPerson)
	return result, nil
}

func (s *Service) issueLink(ctx context.Context, identity auth.Identity, issuedAt, expiresAt time.Time) (MagicLink, error) {
	jti := util.NewID("cred")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), identity, jti, issuedAt, expiresAt)
	if err != nil {
		return MagicLink{}, fmt.Errorf("issue credential: %w", err)
	}
	if s.registry != nil {
		if err := s.registry.Save(ctx, jti, identity, expiresAt); err != nil {
			return MagicLink{}, fmt.Errorf("register credential: %w", err)
		}
	}
	return MagicLink{
		Email: identity.Email,
		Role:  identity.Role,
		Token: token,
		Link:  fmt.Sprintf("%s/retro/%s?token=%s", s.cfg.ClientURL, url.PathEscape(identity.SessionID), url.QueryEscape(token)),
	}, nil
}

// abandon removes a half-created session.
func (s *Service) abandon(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("abandon session", "session_id", sessionID, "error", err)
	}
	if s.registry != nil {
		if _, err := s.registry.RevokeSession(ctx, sessionID); err != nil {
			s.logger.Error("revoke abandoned credentials", "session_id", sessionID, "error", err)
		}
	}
}

func (s *Service) sendInvitations(session store.Session, links []MagicLink, expiresAt time.Time) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	for i := range links {
		err := s.mailer.SendInvitation(links[i].Email, email.InvitationData{
			SessionID:   session.ID,
			Facilitator: session.FacilitatorEmail,
			Role:        links[i].Role,
			Link:        links[i].Link,
			ExpiresAt:   expiresAt,
		})
		if err != nil {
			s.logger.Warn("invitation not sent", "session_id", session.ID, "email", links[i].Email, "error", err)
			continue
		}
		links[i].Emailed = true
	}
}

// VerifyToken resolves a credential without touching the session.
func (s *Service) VerifyToken(ctx context.Context, token string) (auth.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return auth.Identity{}, invalidArgument("Token required")
	}
	return s.gate.Verify(ctx, token)
}

// authorize checks that the credential belongs to sessionID and, when an
// action is given, that its role may perform it.
func (s *Service) authorize(ctx context.Context, token, sessionID string, action rbac.Action) (auth.Identity, error) {
	identity, err := s.gate.Verify(ctx, token)
	if err != nil {
		return auth.Identity{}, err
	}
	if identity.SessionID != sessionID {
		return auth.Identity{}, errAccessDenied
	}
	if !rbac.Can(rbac.Normalize(identity.Role), action) {
		return auth.Identity{}, errFacilitatorRequired
	}
	return identity, nil
}

func (s *Service) GetSession(ctx context.Context, token, sessionID string) (store.Snapshot, error) {
	if _, err := s.authorize(ctx, token, sessionID, rbac.ActionViewBoard); err != nil {
		return store.Snapshot{}, err
	}
	snap, err := store.LoadSnapshot(ctx, s.store, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Snapshot{}, errSessionNotFound
	}
	return snap, err
}

func (s *Service) Export(ctx context.Context, token, sessionID string, format export.Format, archive bool) (*export.Result, error) {
	identity, err := s.authorize(ctx, token, sessionID, rbac.ActionExport)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Request{SessionID: sessionID, Format: format, Archive: archive})
	if errors.Is(err, store.ErrNotFound) {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("session exported", "session_id", sessionID, "email", identity.Email, "format", string(format), "archive_key", result.ArchiveKey)
	return result, nil
}

type DeleteSessionResult struct {
	SessionID          string `json:"sessionId"`
	RevokedCredentials int    `json:"revokedCredentials"`
	ClosedConnections  int    `json:"closedConnections"`
}

// DeleteSession removes the session and everything it owns, revokes its
// credentials and disconnects the live room.
func (s *Service) DeleteSession(ctx context.Context, token, sessionID string) (DeleteSessionResult, error) {
	identity, err := s.authorize(ctx, token, sessionID, rbac.ActionDeleteSession)
	if err != nil {
		return DeleteSessionResult{}, err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeleteSessionResult{}, errSessionNotFound
		}
		return DeleteSessionResult{}, fmt.Errorf("delete session: %w", err)
	}

	result := DeleteSessionResult{SessionID: sessionID}
	if s.registry != nil {
		revoked, err := s.registry.RevokeSession(ctx, sessionID)
		if err != nil {
			return DeleteSessionResult{}, fmt.Errorf("revoke credentials: %w", err)
		}
		result.RevokedCredentials = revoked
	}
	if s.rooms != nil {
		result.ClosedConnections = s.rooms.CloseRoom(sessionID)
	}
	s.logger.Info("session deleted", "session_id", sessionID, "email", identity.Email,
		"revoked", result.RevokedCredentials, "closed", result.ClosedConnections)
	return result, nil
}
