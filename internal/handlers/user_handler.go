package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/services"
)

type UserHandler struct {
	service services.UserService
	logger  *slog.Logger
}

func NewUserHandler(service services.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// @Summary      Текущий пользователь
// @Tags         Users
// @Produce      json
// @Success      200  {object}  models.User
// @Router       /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, u)
}

// @Summary      Список сотрудников
// @Description  Используется для выбора исполнителя задачи
// @Tags         Users
// @Produce      json
// @Success      200  {array}  models.User
// @Router       /users [get]
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list users", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

// @Summary      Изменить роль сотрудника
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        id    path      string  true  "ID пользователя"
// @Success      200   {object}  models.User
// @Failure      403   {object}  map[string]string
// @Router       /users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	u, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Role authz.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.service.ChangeRole(c.Request.Context(), u.ID, c.Param("id"), req.Role)
	if err != nil {
		respondError(c, h.logger, "change role", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
