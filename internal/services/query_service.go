package services

import (
	"context"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
)

// QueryService answers role-scoped reads. Director and manager see all tasks
// and companies; everyone else sees only tasks assigned to them and the
// companies those tasks belong to. The restriction is part of the query.
type QueryService interface {
	ListTasksForUser(ctx context.Context, userID string, role authz.Role) ([]models.TaskSummary, error)
	ListCompanyTasks(ctx context.Context, userID string, role authz.Role, companyID string) ([]models.TaskSummary, error)
	ListCompaniesForUser(ctx context.Context, userID string, role authz.Role) ([]models.Company, error)
	CompanyRollup(ctx context.Context, userID string, role authz.Role) ([]models.CompanyRollup, error)
}

type queryService struct {
	gw *repositories.Gateway
}

func NewQueryService(gw *repositories.Gateway) QueryService {
	return &queryService{gw: gw}
}

// scope returns the assignee restriction for role, nil when unrestricted.
func scope(userID string, role authz.Role) *string {
	if authz.IsPrivileged(role) {
		return nil
	}
	return &userID
}

func (s *queryService) ListTasksForUser(ctx context.Context, userID string, role authz.Role) ([]models.TaskSummary, error) {
	tasks, err := s.gw.Tasks.List(ctx, models.TaskFilter{AssigneeID: scope(userID, role)})
	return tasks, fromRepo(err, "list tasks")
}

func (s *queryService) ListCompanyTasks(ctx context.Context, userID string, role authz.Role, companyID string) ([]models.TaskSummary, error) {
	if err := checkID("company_id", companyID); err != nil {
		return nil, err
	}
	tasks, err := s.gw.Tasks.List(ctx, models.TaskFilter{AssigneeID: scope(userID, role), CompanyID: &companyID})
	return tasks, fromRepo(err, "list company tasks")
}

func (s *queryService) ListCompaniesForUser(ctx context.Context, userID string, role authz.Role) ([]models.Company, error) {
	var (
		companies []models.Company
		err       error
	)
	if authz.IsPrivileged(role) {
		companies, err = s.gw.Companies.ListAll(ctx)
	} else {
		companies, err = s.gw.Companies.ListForAssignee(ctx, userID)
	}
	return companies, fromRepo(err, "list companies")
}

func (s *queryService) CompanyRollup(ctx context.Context, userID string, role authz.Role) ([]models.CompanyRollup, error) {
	rollup, err := s.gw.Companies.Rollup(ctx, scope(userID, role))
	return rollup, fromRepo(err, "company rollup")
}
