package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Machine   MachineConfig   `mapstructure:"machine"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket监控推送配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// PlatformConfig 硬件平台配置
type PlatformConfig struct {
	// Backend 平台后端: virtual / serialio
	Backend string           `mapstructure:"backend"`
	Serial  SerialPortConfig `mapstructure:"serial"`
}

// SerialPortConfig I/O板串口配置
type SerialPortConfig struct {
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MachineConfig 整机设备配置
type MachineConfig struct {
	Name       string                    `mapstructure:"name"`
	Coils      map[string]CoilConfig     `mapstructure:"coils"`
	Switches   map[string]SwitchConfig   `mapstructure:"switches"`
	Autofires  map[string]AutofireConfig `mapstructure:"autofires"`
	Kickbacks  map[string]AutofireConfig `mapstructure:"kickbacks"`
	Servos     map[string]ServoConfig    `mapstructure:"servos"`
	BallSearch BallSearchConfig          `mapstructure:"ball_search"`
}

// CoilConfig 线圈（驱动器）配置
type CoilConfig struct {
	Number            string  `mapstructure:"number"`              // 硬件编号
	DefaultPulseMs    int     `mapstructure:"default_pulse_ms"`    // 默认脉冲时长
	MaxPulseMs        int     `mapstructure:"max_pulse_ms"`        // 硬件允许的最大脉冲时长
	DefaultPulsePower float64 `mapstructure:"default_pulse_power"` // 默认脉冲功率 0.0-1.0
	MaxPulsePower     float64 `mapstructure:"max_pulse_power"`     // 最大脉冲功率
	DefaultHoldPower  float64 `mapstructure:"default_hold_power"`  // 默认保持功率
	MaxHoldPower      float64 `mapstructure:"max_hold_power"`      // 最大保持功率
	AllowEnable       bool    `mapstructure:"allow_enable"`        // 是否允许持续通电
}

// SwitchConfig 开关配置
type SwitchConfig struct {
	Number string `mapstructure:"number"` // 硬件编号
	Invert bool   `mapstructure:"invert"` // 常闭开关为true
}

// AutofireConfig 自动发射线圈配置（Kickback复用）
type AutofireConfig struct {
	Coil          string `mapstructure:"coil"`
	Switch        string `mapstructure:"switch"`
	ReverseSwitch bool   `mapstructure:"reverse_switch"` // 反转触发沿

	// 覆盖项，nil表示使用线圈/开关自身默认值
	PulseMs    *int     `mapstructure:"pulse_ms"`
	PulsePower *float64 `mapstructure:"pulse_power"`
	Recycle    *bool    `mapstructure:"recycle"`
	Debounce   string   `mapstructure:"debounce"` // normal / quick

	// 命中频率限制，窗口内达到最大命中数后自动禁用
	TimeoutWatchWindow time.Duration `mapstructure:"timeout_watch_window"`
	TimeoutMaxHits     int           `mapstructure:"timeout_max_hits"`
	TimeoutDisableFor  time.Duration `mapstructure:"timeout_disable_for"`

	// 球搜索
	BallSearchOrder int `mapstructure:"ball_search_order"` // 0表示不参与

	// 命中时投递的事件
	Events []string `mapstructure:"events"`
}

// ServoConfig 舵机配置
type ServoConfig struct {
	Type         string `mapstructure:"type"`    // pca9685 / maestro
	Channel      int    `mapstructure:"channel"` // 通道号
	Min          int    `mapstructure:"min"`     // 校准最小值
	Max          int    `mapstructure:"max"`     // 校准最大值
	Speed        int    `mapstructure:"speed"`
	Acceleration int    `mapstructure:"acceleration"`
	Address      int    `mapstructure:"address"` // I2C地址（pca9685）
	Port         string `mapstructure:"port"`    // 串口（maestro）
}

// BallSearchConfig 球搜索配置
type BallSearchConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Timeout           time.Duration `mapstructure:"timeout"`             // 无活动多久后开始搜索
	IterationInterval time.Duration `mapstructure:"iteration_interval"`  // 两次设备触发之间的间隔
	PhaseCount        int           `mapstructure:"phase_count"`         // 搜索阶段数
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT      JWTConfig      `mapstructure:"jwt"`
	Operator OperatorConfig `mapstructure:"operator"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// OperatorConfig 默认运维账号配置
type OperatorConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"` // 首次启动时写入数据库（argon2id）
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("PINBALL")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		err = Validate(cfg)
	})

	return err
}

// Validate 校验设备之间的引用关系
func Validate(c *Config) error {
	for name, af := range c.Machine.Autofires {
		if err := validateAutofire(c, name, &af); err != nil {
			return err
		}
	}
	for name, kb := range c.Machine.Kickbacks {
		if err := validateAutofire(c, name, &kb); err != nil {
			return err
		}
	}
	for name, servo := range c.Machine.Servos {
		if servo.Min >= servo.Max {
			return fmt.Errorf("舵机 %s 校准范围无效: min=%d max=%d", name, servo.Min, servo.Max)
		}
	}
	return nil
}

func validateAutofire(c *Config, name string, af *AutofireConfig) error {
	if af.Coil == "" || af.Switch == "" {
		return fmt.Errorf("自动发射设备 %s 缺少coil或switch配置", name)
	}
	if _, ok := c.Machine.Coils[af.Coil]; !ok {
		return fmt.Errorf("自动发射设备 %s 引用了未定义的线圈 %s", name, af.Coil)
	}
	if _, ok := c.Machine.Switches[af.Switch]; !ok {
		return fmt.Errorf("自动发射设备 %s 引用了未定义的开关 %s", name, af.Switch)
	}
	if af.TimeoutWatchWindow > 0 && af.TimeoutMaxHits <= 0 {
		return fmt.Errorf("自动发射设备 %s 配置了命中窗口但未配置最大命中数", name)
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/pinball-game.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws/monitor")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")

	// 硬件平台默认配置
	v.SetDefault("platform.backend", "virtual")
	v.SetDefault("platform.serial.baud_rate", 921600)
	v.SetDefault("platform.serial.read_timeout", "100ms")
	v.SetDefault("platform.serial.write_timeout", "100ms")

	// 球搜索默认配置
	v.SetDefault("machine.ball_search.enabled", true)
	v.SetDefault("machine.ball_search.timeout", "20s")
	v.SetDefault("machine.ball_search.iteration_interval", "150ms")
	v.SetDefault("machine.ball_search.phase_count", 3)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "pinball-game.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.refresh_hours", 168)
	v.SetDefault("security.operator.username", "operator")
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := Validate(newCfg); err != nil {
			fmt.Printf("配置校验失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
