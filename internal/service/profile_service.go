package service

import (
	"context"
	"fmt"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/rs/zerolog"
)

type TokenIssuer interface {
	Issue(ctx context.Context, userID string, role models.Role, name string) (string, *models.Session, error)
}

type ProfileService struct {
	repo   domain.ProfileRepository
	tokens TokenIssuer
	logger *zerolog.Logger
}

func NewProfileService(repo domain.ProfileRepository, tokens TokenIssuer, logger *zerolog.Logger) *ProfileService {
	return &ProfileService{
		repo:   repo,
		tokens: tokens,
		logger: logger,
	}
}

func (s *ProfileService) Me(ctx context.Context, session *models.Session) (*models.Profile, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return s.repo.GetProfile(ctx, session.UserID)
}

// ListByRole is admin only.
func (s *ProfileService) ListByRole(ctx context.Context, session *models.Session, role models.Role) ([]*models.Profile, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", models.ErrForbidden)
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}
	return s.repo.ListProfilesByRole(ctx, role)
}

// IssueToken opens a session for an existing profile; role and display name
// come from the stored profile.
func (s *ProfileService) IssueToken(ctx context.Context, userID string) (string, *models.Session, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	token, session, err := s.tokens.Issue(ctx, p.ID, p.Role, p.FullName)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info().Str("user_id", p.ID).Str("role", string(p.Role)).Str("session_id", session.ID).Msg("Session issued")
	return token, session, nil
}

// adminIDs is used to copy admins on dispute notifications.
func adminIDs(ctx context.Context, repo domain.ProfileRepository) []string {
	if repo == nil {
		return nil
	}
	admins, err := repo.ListProfilesByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids
}
