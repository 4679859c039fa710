package handlers

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"taskbot/internal/models"
	"taskbot/internal/services"
)

type FileOpener interface {
	Open(rel string) (*os.File, error)
}

type TaskHandler struct {
	tasks     services.TaskService
	queries   services.QueryService
	files     FileOpener
	maxUpload int64
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskHandler(tasks services.TaskService, queries services.QueryService, files FileOpener, maxUpload int64, loc *time.Location, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, queries: queries, files: files, maxUpload: maxUpload, loc: loc, logger: logger, now: time.Now}
}

type createTaskRequest struct {
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description"`
	CompanyID      string `json:"company_id" binding:"required"`
	InitiatorName  string `json:"initiator_name" binding:"required"`
	InitiatorPhone string `json:"initiator_phone" binding:"required"`
	AssigneeID     string `json:"assignee_id" binding:"required"`
	Urgent         bool   `json:"is_urgent"`
	// RFC 3339, DD.MM.YYYY, DD.MM, today, tomorrow, "через N дней"
	Deadline string `json:"deadline" binding:"required"`
}

// @Summary      Создать задачу
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task  body      createTaskRequest  true  "Задача"
// @Success      201   {object}  models.Task
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deadline, err := services.ParseDeadline(req.Deadline, h.now(), h.loc)
	if err != nil {
		respondError(c, h.logger, "create task", err)
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), services.CreateTaskInput{
		Title:          req.Title,
		Description:    req.Description,
		CompanyID:      req.CompanyID,
		InitiatorName:  req.InitiatorName,
		InitiatorPhone: req.InitiatorPhone,
		AssigneeID:     req.AssigneeID,
		CreatorID:      u.ID,
		Urgent:         req.Urgent,
		Deadline:       deadline,
	})
	if err != nil {
		respondError(c, h.logger, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// @Summary      Список задач
// @Description  Директор и менеджер видят все задачи, остальные только назначенные им
// @Tags         Tasks
// @Produce      json
// @Param        company_id  query     string  false  "Фильтр по компании"
// @Success      200         {array}   models.TaskSummary
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var (
		tasks []models.TaskSummary
		err   error
	)
	if companyID := c.Query("company_id"); companyID != "" {
		tasks, err = h.queries.ListCompanyTasks(c.Request.Context(), u.ID, u.Role, companyID)
	} else {
		tasks, err = h.queries.ListTasksForUser(c.Request.Context(), u.ID, u.Role)
	}
	if err != nil {
		respondError(c, h.logger, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []models.TaskSummary{}
	}
	c.JSON(http.StatusOK, tasks)
}

// visible loads the task detail and checks the caller may see it.
func (h *TaskHandler) visible(c *gin.Context, op string) (*models.User, *models.TaskDetail, bool) {
	u, ok := actor(c)
	if !ok {
		return nil, nil, false
	}
	detail, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err == nil && !services.CanView(&detail.Task, u) {
		err = services.ErrForbidden
	}
	if err != nil {
		respondError(c, h.logger, op, err)
		return nil, nil, false
	}
	return u, detail, true
}

// @Summary      Карточка задачи
// @Tags         Tasks
// @Produce      json
// @Param        id   path      string  true  "ID задачи"
// @Success      200  {object}  models.TaskDetail
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	_, detail, ok := h.visible(c, "get task")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, detail)
}

type changeStatusRequest struct {
	Status         models.TaskStatus `json:"status" binding:"required"`
	ExpectedStatus models.TaskStatus `json:"expected_status"`
}

// @Summary      Сменить статус задачи
// @Description  expected_status защищает от гонки: если задача уже в другом статусе, вернётся 409
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      string               true  "ID задачи"
// @Param        body  body      changeStatusRequest  true  "Новый статус"
// @Success      200   {object}  models.Task
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /tasks/{id}/status [patch]
func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.tasks.ChangeStatus(c.Request.Context(), services.ChangeStatusInput{
		TaskID: c.Param("id"), To: req.Status, ActorID: u.ID, Expected: req.ExpectedStatus,
	})
	if err != nil {
		respondError(c, h.logger, "change status", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GET /tasks/:id/transitions
func (h *TaskHandler) Transitions(c *gin.Context) {
	u, detail, ok := h.visible(c, "list transitions")
	if !ok {
		return
	}
	allowed := services.AllowedTransitions(&detail.Task, u)
	if allowed == nil {
		allowed = []models.TaskStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"status": detail.Status, "allowed": allowed})
}

// @Summary      Добавить комментарий
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      string  true  "ID задачи"
// @Success      201   {object}  models.Comment
// @Router       /tasks/{id}/comments [post]
func (h *TaskHandler) AddComment(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := h.tasks.AddComment(c.Request.Context(), c.Param("id"), u.ID, req.Text)
	if err != nil {
		respondError(c, h.logger, "add comment", err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// GET /tasks/:id/comments
func (h *TaskHandler) ListComments(c *gin.Context) {
	_, detail, ok := h.visible(c, "list comments")
	if !ok {
		return
	}
	out := detail.Comments
	if out == nil {
		out = []models.Comment{}
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Прикрепить файл
// @Tags         Tasks
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "ID задачи"
// @Param        file  formData  file    true  "Файл"
// @Success      201   {object}  models.Attachment
// @Failure      400   {object}  map[string]string
// @Router       /tasks/{id}/files [post]
func (h *TaskHandler) Upload(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, "upload", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, "upload", err)
		return
	}

	a, err := h.tasks.AttachFile(c.Request.Context(), services.AttachFileInput{
		TaskID:      c.Param("id"),
		UploaderID:  u.ID,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondError(c, h.logger, "upload", err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// GET /tasks/:id/files
func (h *TaskHandler) ListFiles(c *gin.Context) {
	_, detail, ok := h.visible(c, "list files")
	if !ok {
		return
	}
	out := detail.Attachments
	if out == nil {
		out = []models.Attachment{}
	}
	c.JSON(http.StatusOK, out)
}

// GET /tasks/:id/files/:file_id[?thumb=1]
func (h *TaskHandler) Download(c *gin.Context) {
	_, detail, ok := h.visible(c, "download")
	if !ok {
		return
	}
	var found *models.Attachment
	for i := range detail.Attachments {
		if detail.Attachments[i].ID == c.Param("file_id") {
			found = &detail.Attachments[i]
			break
		}
	}
	if found == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	thumb := c.Query("thumb") != ""
	path, contentType := found.Path, found.ContentType
	if thumb {
		if found.ThumbnailPath == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no thumbnail"})
			return
		}
		path = found.ThumbnailPath
	}
	f, err := h.files.Open(path)
	if err != nil {
		respondError(c, h.logger, "download", err)
		return
	}
	defer f.Close()
	if thumb {
		if m, err := mimetype.DetectFile(f.Name()); err == nil {
			contentType = m.String()
		}
	}
	st, err := f.Stat()
	if err != nil {
		respondError(c, h.logger, "download", err)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": found.FileName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, st.Size(), contentType, f, map[string]string{
		"Content-Disposition": disposition,
	})
}
