package services

import (
	"context"
	"log/slog"
	"strings"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
)

type UserService interface {
	// RegisterContact returns the user behind a chat id, creating it on first
	// contact. created is true only for the call that inserted the row.
	RegisterContact(ctx context.Context, profile models.User) (user *models.User, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	ChangeRole(ctx context.Context, actorID, targetID string, role authz.Role) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

type userService struct {
	repo   repositories.UserRepository
	logger *slog.Logger
}

func NewUserService(repo repositories.UserRepository, logger *slog.Logger) UserService {
	return &userService{repo: repo, logger: logger}
}

func (s *userService) RegisterContact(ctx context.Context, profile models.User) (*models.User, bool, error) {
	if profile.ExternalID == 0 {
		return nil, false, invalid("telegram_id", "is required")
	}
	profile.ID = ""
	profile.Username = strings.TrimSpace(profile.Username)
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)

	u, created, err := s.repo.Register(ctx, &profile)
	if err != nil {
		return nil, false, fromRepo(err, "register user")
	}
	if created {
		s.logger.Info("User registered", "user_id", u.ID, "telegram_id", u.ExternalID, "role", u.Role)
	}
	return u, created, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := checkID("user_id", id); err != nil {
		return nil, err
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fromRepo(err, "load user")
	}
	return u, nil
}

func (s *userService) GetByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	u, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fromRepo(err, "load user")
	}
	return u, nil
}

// ChangeRole is reserved to directors. A director cannot demote themselves,
// which keeps at least one account able to manage roles.
func (s *userService) ChangeRole(ctx context.Context, actorID, targetID string, role authz.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, invalid("role", "unknown role %q", role)
	}
	actor, err := s.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageRoles(actor.Role) {
		s.logger.Info("Role change denied", "actor_id", actor.ID, "role", actor.Role)
		return nil, ErrForbidden
	}
	if actor.ID == targetID && role != actor.Role {
		return nil, invalid("role", "a director cannot change their own role")
	}
	target, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRole(ctx, target.ID, role); err != nil {
		return nil, fromRepo(err, "update role")
	}
	s.logger.Info("Role changed", "actor_id", actor.ID, "user_id", target.ID, "from", target.Role, "to", role)
	target.Role = role
	return target, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fromRepo(err, "list users")
	}
	return users, nil
}
