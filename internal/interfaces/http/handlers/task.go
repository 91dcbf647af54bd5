package handlers

import (
	"net/http"
	"strings"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/task"
	apperrors "github.com/easayliu/alist-photo-relay/internal/shared/errors"
	"github.com/gin-gonic/gin"
)

// StopRequest 停止任务请求
type StopRequest struct {
	Reason string `json:"reason" example:"manual"`
}

// TaskHandler REST任务处理器 - 纯协议转换层
type TaskHandler struct {
	tasks contracts.TaskService
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(tasks contracts.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// ListTasks 获取所有任务及运行状态
// @Summary 获取任务列表
// @Description 返回所有已配置任务及其运行时状态
// @Tags 任务
// @Produce json
// @Success 200 {object} Response{data=[]entities.RuntimeStatus}
// @Failure 500 {object} ErrorResponse
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	statuses, err := h.tasks.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, gin.H{
		"tasks": statuses,
		"total": len(statuses),
	})
}

// GetTaskStatus 获取任务运行状态
// @Summary 获取任务状态
// @Description 返回任务的运行时快照，终止后的错误快照在下次启动前保留
// @Tags 任务
// @Produce json
// @Param id path string true "任务ID"
// @Success 200 {object} Response{data=entities.RuntimeStatus}
// @Failure 404 {object} ErrorResponse
// @Router /tasks/{id}/status [get]
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	status, err := h.tasks.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, status)
}

// StartTask 启动任务
// @Summary 启动任务
// @Description 打开页面会话并开始周期性扫描
// @Tags 任务
// @Produce json
// @Param id path string true "任务ID"
// @Success 200 {object} Response{data=entities.RuntimeStatus}
// @Failure 404 {object} ErrorResponse "任务不存在"
// @Failure 409 {object} ErrorResponse "任务已在运行"
// @Failure 412 {object} ErrorResponse "存储未连接"
// @Failure 503 {object} ErrorResponse "会话或存储不可用"
// @Router /tasks/{id}/start [post]
func (h *TaskHandler) StartTask(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("id")
	if err := h.tasks.Start(ctx, taskID); err != nil {
		_ = c.Error(err)
		return
	}
	status, err := h.tasks.Status(ctx, taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, status)
}

// StopTask 停止任务
// @Summary 停止任务
// @Description 取消任务循环并关闭会话，请求体可选
// @Tags 任务
// @Accept json
// @Produce json
// @Param id path string true "任务ID"
// @Param request body StopRequest false "停止原因"
// @Success 200 {object} Response
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "任务未运行"
// @Router /tasks/{id}/stop [post]
func (h *TaskHandler) StopTask(c *gin.Context) {
	var req StopRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorWithStatus(c, http.StatusBadRequest, apperrors.ErrorCodeInvalidRequest, "Invalid request parameters: "+err.Error())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = task.StopReasonManual
	}

	taskID := c.Param("id")
	if err := h.tasks.Stop(c.Request.Context(), taskID, reason); err != nil {
		_ = c.Error(err)
		return
	}
	Success(c, gin.H{
		"task_id": taskID,
		"reason":  reason,
	})
}
