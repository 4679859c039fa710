package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskbot/internal/models"
	"taskbot/internal/services"
)

type CompanyHandler struct {
	companies services.CompanyService
	queries   services.QueryService
	logger    *slog.Logger
}

func NewCompanyHandler(companies services.CompanyService, queries services.QueryService, logger *slog.Logger) *CompanyHandler {
	return &CompanyHandler{companies: companies, queries: queries, logger: logger}
}

// @Summary      Создать компанию
// @Tags         Companies
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.Company
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /companies [post]
func (h *CompanyHandler) Create(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := h.companies.Create(c.Request.Context(), u.ID, req.Name, req.Description)
	if err != nil {
		respondError(c, h.logger, "create company", err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// @Summary      Список компаний
// @Tags         Companies
// @Produce      json
// @Success      200  {array}  models.Company
// @Router       /companies [get]
func (h *CompanyHandler) List(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	list, err := h.queries.ListCompaniesForUser(c.Request.Context(), u.ID, u.Role)
	if err != nil {
		respondError(c, h.logger, "list companies", err)
		return
	}
	if list == nil {
		list = []models.Company{}
	}
	c.JSON(http.StatusOK, list)
}

// GET /companies/rollup
func (h *CompanyHandler) Rollup(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	rows, err := h.queries.CompanyRollup(c.Request.Context(), u.ID, u.Role)
	if err != nil {
		respondError(c, h.logger, "company rollup", err)
		return
	}
	if rows == nil {
		rows = []models.CompanyRollup{}
	}
	c.JSON(http.StatusOK, rows)
}
