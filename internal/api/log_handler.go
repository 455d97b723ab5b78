package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/repository"
)

// LogHandler 硬件日志查询处理器
type LogHandler struct {
	logs repository.HardwareLogRepository
	log  *zap.Logger
}

// NewLogHandler 创建硬件日志处理器
func NewLogHandler(logs repository.HardwareLogRepository, log *zap.Logger) *LogHandler {
	return &LogHandler{
		logs: logs,
		log:  log,
	}
}

// List 分页查询硬件日志
// @Summary 分页查询硬件日志
// @Tags Logs
// @Produce json
// @Param switch query string false "按开关过滤"
// @Param driver query string false "按线圈过滤"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/logs [get]
func (h *LogHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p := repository.NewPagination(page, pageSize)

	list, err := h.logs.FindByDevice(c.Request.Context(),
		c.Query("switch"), c.Query("driver"), p)
	if err != nil {
		h.log.Error("硬件日志查询失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "日志查询失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       list,
		"pagination": p,
	})
}

// Recent 最近硬件日志
// @Summary 最近硬件日志
// @Tags Logs
// @Produce json
// @Param limit query int false "条数上限"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/logs/recent [get]
func (h *LogHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	list, err := h.logs.FindRecent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("硬件日志查询失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "日志查询失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": list})
}
