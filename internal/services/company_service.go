package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
)

type CompanyService interface {
	Create(ctx context.Context, actorID, name, description string) (*models.Company, error)
	GetByID(ctx context.Context, id string) (*models.Company, error)
}

type companyService struct {
	gw     *repositories.Gateway
	logger *slog.Logger
	now    func() time.Time
}

func NewCompanyService(gw *repositories.Gateway, logger *slog.Logger) CompanyService {
	return &companyService{gw: gw, logger: logger, now: time.Now}
}

func (s *companyService) Create(ctx context.Context, actorID, name, description string) (*models.Company, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if err := checkLength("name", name, companyNameMin, companyNameMax); err != nil {
		return nil, err
	}
	if err := checkLength("description", description, 0, companyDescriptionMax); err != nil {
		return nil, err
	}
	if err := checkID("actor_id", actorID); err != nil {
		return nil, err
	}

	actor, err := s.gw.Users.FindByID(ctx, actorID)
	if err != nil {
		return nil, fromRepo(err, "load actor")
	}
	if !authz.IsPrivileged(actor.Role) {
		return nil, ErrForbidden
	}

	c := &models.Company{Name: name, Description: description, CreatedBy: actor.ID, CreatedAt: s.now()}
	if err := s.gw.Companies.Create(ctx, c); err != nil {
		return nil, fromRepo(err, "create company")
	}
	s.logger.Info("Company created", "company_id", c.ID, "created_by", actor.ID)
	return c, nil
}

func (s *companyService) GetByID(ctx context.Context, id string) (*models.Company, error) {
	if err := checkID("company_id", id); err != nil {
		return nil, err
	}
	c, err := s.gw.Companies.FindByID(ctx, id)
	if err != nil {
		return nil, fromRepo(err, "load company")
	}
	return c, nil
}
