package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	appconnector "github.com/erp/qbconnector/internal/application/connector"
	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/interfaces/http/dto"
	"github.com/erp/qbconnector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusQueued is what a successful submission reports back
const statusQueued = "queued"

// TaskService is the submission surface the handler depends on
type TaskService interface {
	Submit(ctx context.Context, input appconnector.SubmitInput) (*appconnector.SubmitResult, error)
	Result(ctx context.Context, id int64) (*connector.TaskResult, error)
}

// TaskHandler handles task submission and result polling
type TaskHandler struct {
	BaseHandler
	service     TaskService
	defaultUser string
	logger      *zap.Logger
}

// NewTaskHandler creates a new TaskHandler. defaultUser is used by the legacy
// submission route when the body names no user.
func NewTaskHandler(service TaskService, defaultUser string, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service:     service,
		defaultUser: defaultUser,
		logger:      logger.Named("tasks"),
	}
}

// RegisterRoutes mounts the versioned task API
func (h *TaskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	tasks.POST("", h.Submit)
	tasks.GET("/:id", h.GetResult)
}

// RegisterLegacyRoutes mounts the unversioned routes older sender scripts call
func (h *TaskHandler) RegisterLegacyRoutes(r gin.IRoutes) {
	r.POST("/queue_task", h.LegacySubmit)
	r.GET("/task_result/:id", h.LegacyResult)
}

// Submit queues a qbXML request for the named user
// POST /api/v1/tasks
func (h *TaskHandler) Submit(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, ok := h.submit(c, req.Username, req.RequestXML)
	if !ok {
		return
	}
	h.Created(c, dto.SubmitTaskResponse{TaskID: result.TaskID, Status: statusQueued})
}

// GetResult reports a task's status, with the client's reply once it has one
// GET /api/v1/tasks/:id
func (h *TaskHandler) GetResult(c *gin.Context) {
	var req dto.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.Result(c.Request.Context(), req.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !h.mayRead(c, result) {
		h.Forbidden(c, "Token is not allowed to read this user's tasks")
		return
	}
	h.Success(c, dto.TaskResultResponse{
		TaskID: result.ID,
		Status: result.Status.String(),
		Result: result.Response,
	})
}

// LegacySubmit is POST /queue_task. It answers with the bare {status, task_id} object.
func (h *TaskHandler) LegacySubmit(c *gin.Context) {
	var req dto.LegacySubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	username := req.Username
	if username == "" {
		username = h.defaultUser
	}

	result, ok := h.submit(c, username, req.RequestXML)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.SubmitTaskResponse{TaskID: result.TaskID, Status: statusQueued})
}

// LegacyResult is GET /task_result/:id. Unknown ids report status "not_found" with a 200,
// and the result is only filled in for completed tasks. Tasks of users the token does not
// cover also read as "not_found".
func (h *TaskHandler) LegacyResult(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusOK, dto.LegacyTaskResultResponse{Status: "not_found"})
		return
	}

	result, err := h.service.Result(c.Request.Context(), id)
	if errors.Is(err, connector.ErrTaskNotFound) {
		c.JSON(http.StatusOK, dto.LegacyTaskResultResponse{Status: "not_found"})
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !h.mayRead(c, result) {
		c.JSON(http.StatusOK, dto.LegacyTaskResultResponse{Status: "not_found"})
		return
	}

	resp := dto.LegacyTaskResultResponse{Status: result.Status.String()}
	if result.Status == connector.TaskStatusDone {
		resp.Result = result.Response
	}
	c.JSON(http.StatusOK, resp)
}

// mayRead reports whether the request's token, if any, covers the task's user
func (h *TaskHandler) mayRead(c *gin.Context, result *connector.TaskResult) bool {
	claims := middleware.GetJWTClaims(c)
	return claims == nil || claims.AllowsUser(result.Username)
}

func (h *TaskHandler) submit(c *gin.Context, username, requestXML string) (*appconnector.SubmitResult, bool) {
	if claims := middleware.GetJWTClaims(c); claims != nil && !claims.AllowsUser(username) {
		h.Forbidden(c, "Token is not allowed to submit work for this user")
		return nil, false
	}

	result, err := h.service.Submit(c.Request.Context(), appconnector.SubmitInput{
		Username:       username,
		RequestXML:     requestXML,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		if errors.Is(err, connector.ErrStoreUnavailable) {
			h.logger.Error("Task submission failed", zap.String("username", username), zap.Error(err))
		}
		h.HandleError(c, err)
		return nil, false
	}
	return result, true
}
