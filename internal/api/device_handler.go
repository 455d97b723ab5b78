package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/machine"
	"github.com/wfunc/pinball-game/internal/repository"
)

// DeviceHandler 设备诊断处理器
type DeviceHandler struct {
	machine    *machine.Machine
	statusRepo repository.DeviceStatusRepository
	log        *zap.Logger
}

// NewDeviceHandler 创建设备诊断处理器
func NewDeviceHandler(m *machine.Machine, statusRepo repository.DeviceStatusRepository,
	log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		machine:    m,
		statusRepo: statusRepo,
		log:        log,
	}
}

// DeviceInfo 设备实时状态
type DeviceInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// List 设备一览
// @Summary 设备一览
// @Tags Devices
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	reg := h.machine.Registry()

	devices := make([]DeviceInfo, 0)
	for name := range reg.Drivers() {
		devices = append(devices, DeviceInfo{Name: name, Type: "coil"})
	}
	for name, af := range reg.Autofires() {
		devices = append(devices, DeviceInfo{Name: name, Type: "autofire", Enabled: af.IsEnabled()})
	}
	for name, kb := range reg.Kickbacks() {
		devices = append(devices, DeviceInfo{Name: name, Type: "kickback", Enabled: kb.IsEnabled()})
	}
	for _, name := range h.machine.Servos() {
		devices = append(devices, DeviceInfo{Name: name, Type: "servo"})
	}

	// 落库的累计统计一并返回
	stored, err := h.statusRepo.FindAll(c.Request.Context())
	if err != nil {
		h.log.Warn("读取设备状态失败", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"stats":   stored,
	})
}

// SwitchInfo 开关实时状态
type SwitchInfo struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Invert bool   `json:"invert"`
}

// ListSwitches 开关实时状态一览
// @Summary 开关实时状态一览
// @Tags Devices
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/devices/switches [get]
func (h *DeviceHandler) ListSwitches(c *gin.Context) {
	switches := make([]SwitchInfo, 0)
	for name, sw := range h.machine.Registry().Switches() {
		switches = append(switches, SwitchInfo{
			Name:   name,
			Active: sw.IsActive(),
			Invert: sw.IsInverted(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"switches": switches})
}

// findAutofire 按名称查找自动发射设备（含回弹器）
func (h *DeviceHandler) findAutofire(name string) (interface {
	Enable() error
	Disable() error
}, bool) {
	if af, ok := h.machine.Registry().GetAutofire(name); ok {
		return af, true
	}
	if kb, ok := h.machine.Registry().GetKickback(name); ok {
		return kb, true
	}
	return nil, false
}

// EnableAutofire 使能自动发射设备
// @Summary 使能自动发射设备
// @Tags Devices
// @Produce json
// @Param name path string true "设备名称"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/devices/autofires/{name}/enable [post]
func (h *DeviceHandler) EnableAutofire(c *gin.Context) {
	name := c.Param("name")
	af, ok := h.findAutofire(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "DEVICE_NOT_FOUND",
			Message: "设备不存在",
		})
		return
	}

	if err := af.Enable(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "ENABLE_FAILED",
			Message: "使能失败",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// DisableAutofire 禁用自动发射设备
// @Summary 禁用自动发射设备
// @Tags Devices
// @Produce json
// @Param name path string true "设备名称"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/devices/autofires/{name}/disable [post]
func (h *DeviceHandler) DisableAutofire(c *gin.Context) {
	name := c.Param("name")
	af, ok := h.findAutofire(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "DEVICE_NOT_FOUND",
			Message: "设备不存在",
		})
		return
	}

	if err := af.Disable(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "DISABLE_FAILED",
			Message: "禁用失败",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

// PulseRequest 脉冲请求
type PulseRequest struct {
	PulseMs *int `json:"pulse_ms"` // 为空使用线圈默认值
}

// PulseCoil 手动脉冲线圈
// @Summary 手动脉冲线圈
// @Tags Devices
// @Accept json
// @Produce json
// @Param name path string true "线圈名称"
// @Param request body PulseRequest false "脉冲参数"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/devices/coils/{name}/pulse [post]
func (h *DeviceHandler) PulseCoil(c *gin.Context) {
	name := c.Param("name")
	coil, ok := h.machine.Registry().GetDriver(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "DEVICE_NOT_FOUND",
			Message: "线圈不存在",
		})
		return
	}

	var req PulseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_REQUEST",
				Message: "请求参数错误",
				Details: err.Error(),
			})
			return
		}
	}

	if err := coil.Pulse(req.PulseMs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "PULSE_FAILED",
			Message: "脉冲失败",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pulsed"})
}

// TriggerBallSearch 手动触发一轮球搜索
// @Summary 手动触发一轮球搜索
// @Tags Devices
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/devices/ball-search/trigger [post]
func (h *DeviceHandler) TriggerBallSearch(c *gin.Context) {
	go h.machine.Searcher().TriggerNow()
	c.JSON(http.StatusOK, gin.H{"status": "triggered"})
}

// ServoPositionRequest 舵机位置请求
type ServoPositionRequest struct {
	Position float64 `json:"position"` // 归一化位置 0.0-1.0
}

// MoveServo 移动舵机
// @Summary 移动舵机
// @Tags Devices
// @Accept json
// @Produce json
// @Param name path string true "舵机名称"
// @Param request body ServoPositionRequest true "目标位置"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/devices/servos/{name}/position [post]
func (h *DeviceHandler) MoveServo(c *gin.Context) {
	name := c.Param("name")

	var req ServoPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.machine.MoveServo(name, req.Position); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "SERVO_MOVE_FAILED",
			Message: "舵机移动失败",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved"})
}
