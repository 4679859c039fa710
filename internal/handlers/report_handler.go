package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskbot/internal/models"
	"taskbot/internal/pdf"
	"taskbot/internal/services"
)

type ReportHandler struct {
	queries   services.QueryService
	generator pdf.Generator
	loc       *time.Location
	logger    *slog.Logger
}

func NewReportHandler(queries services.QueryService, generator pdf.Generator, loc *time.Location, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{queries: queries, generator: generator, loc: loc, logger: logger}
}

// @Summary      PDF-отчёт по задачам
// @Description  Те же задачи, что видит пользователь в списке
// @Tags         Reports
// @Produce      application/pdf
// @Param        company_id  query  string  false  "Фильтр по компании"
// @Success      200
// @Router       /reports/tasks.pdf [get]
func (h *ReportHandler) TasksPDF(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var (
		tasks []models.TaskSummary
		err   error
	)
	if companyID := c.Query("company_id"); companyID != "" {
		tasks, err = h.queries.ListCompanyTasks(ctx, u.ID, u.Role, companyID)
	} else {
		tasks, err = h.queries.ListTasksForUser(ctx, u.ID, u.Role)
	}
	if err != nil {
		respondError(c, h.logger, "tasks report", err)
		return
	}

	// буфер, чтобы не отдать половину PDF при ошибке
	var buf bytes.Buffer
	err = h.generator.TaskReport(&buf, pdf.ReportData{
		Title:       "Отчёт по задачам: " + services.PersonName(u),
		GeneratedAt: time.Now(),
		Location:    h.loc,
		Tasks:       tasks,
	})
	if err != nil {
		respondError(c, h.logger, "tasks report", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="tasks.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
