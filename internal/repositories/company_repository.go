package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/models"
)

const companyColumns = `c.company_id, c.name, c.description, c.created_by, c.created_at`

type companyRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewCompanyRepository(db *sql.DB, timeout time.Duration) CompanyRepository {
	return &companyRepository{db: db, timeout: timeout}
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var (
		c    models.Company
		desc sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &desc, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Description = desc.String
	return &c, nil
}

func (r *companyRepository) Create(ctx context.Context, company *models.Company) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO companies (company_id, name, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, q,
		company.ID, company.Name, nullString(company.Description), company.CreatedBy, company.CreatedAt,
	).Scan(&company.CreatedAt); err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (r *companyRepository) FindByID(ctx context.Context, id string) (*models.Company, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies c WHERE c.company_id = $1`, id))
	if err != nil {
		return nil, notFound(err, "company")
	}
	return c, nil
}

func (r *companyRepository) ListAll(ctx context.Context) ([]models.Company, error) {
	return r.list(ctx, `SELECT `+companyColumns+` FROM companies c ORDER BY c.created_at DESC`)
}

func (r *companyRepository) ListForAssignee(ctx context.Context, userID string) ([]models.Company, error) {
	const q = `SELECT ` + companyColumns + ` FROM companies c
		WHERE EXISTS (SELECT 1 FROM tasks t WHERE t.company_id = c.company_id AND t.assignee_id = $1)
		ORDER BY c.created_at DESC`
	return r.list(ctx, q, userID)
}

func (r *companyRepository) list(ctx context.Context, query string, args ...any) ([]models.Company, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func (r *companyRepository) Rollup(ctx context.Context, assigneeID *string) ([]models.CompanyRollup, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT c.company_id, c.name, COUNT(t.task_id)
		FROM companies c JOIN tasks t ON t.company_id = c.company_id`
	var args []any
	if assigneeID != nil {
		query += ` WHERE t.assignee_id = $1`
		args = append(args, *assigneeID)
	}
	query += ` GROUP BY c.company_id, c.name HAVING COUNT(t.task_id) > 0 ORDER BY c.name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CompanyRollup
	for rows.Next() {
		var cr models.CompanyRollup
		if err := rows.Scan(&cr.CompanyID, &cr.Name, &cr.TaskCount); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
