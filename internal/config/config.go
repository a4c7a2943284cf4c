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
	Serial   SerialConfig   `mapstructure:"serial"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Machine  MachineConfig  `mapstructure:"machine"`
	Session  SessionConfig  `mapstructure:"session"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Display  DisplayConfig  `mapstructure:"display"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	System   SystemConfig   `mapstructure:"system"`
}

// SerialConfig ePort串口配置
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	OpenRetries int           `mapstructure:"open_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	SettleDelay time.Duration `mapstructure:"settle_delay"` // 命令发送后的等待时间
}

// PaymentConfig 支付终端配置
type PaymentConfig struct {
	AuthAmountCents     int           `mapstructure:"auth_amount_cents"`     // 预授权金额（分）
	MaxRetries          int           `mapstructure:"max_retries"`           // 终端写操作重试次数
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`         // 重试间隔
	StatusPollInterval  time.Duration `mapstructure:"status_poll_interval"`  // 状态轮询间隔
	AuthStatusDelay     time.Duration `mapstructure:"auth_status_delay"`     // 授权后查询状态前的等待
	PostResetDelay      time.Duration `mapstructure:"post_reset_delay"`      // 复位后的等待
	DeclinedRetryDelay  time.Duration `mapstructure:"declined_retry_delay"`  // 拒绝后的等待
	MaxConsecutiveErrs  int           `mapstructure:"max_consecutive_errors"` // 连续错误上限
}

// MachineConfig 机器硬件配置
type MachineConfig struct {
	MockMode            bool          `mapstructure:"mock_mode"`              // 调试模式（使用内存通道驱动）
	DoneButtonPin       int           `mapstructure:"done_button_pin"`        // 完成按钮GPIO引脚
	MotorLoopDelay      time.Duration `mapstructure:"motor_loop_delay"`       // 售货循环节拍
	MotorOffDebounce    time.Duration `mapstructure:"motor_off_debounce"`     // 松开按钮后关电机的延时
	MotorErrorDelay     time.Duration `mapstructure:"motor_error_delay"`      // 电机错误后的等待
	MaxMotorErrors      int           `mapstructure:"max_motor_errors"`       // 连续电机错误上限
	DoneBounceTime      time.Duration `mapstructure:"done_bounce_time"`       // 完成按钮硬件去抖窗口
	DoneSoftwareSettle  time.Duration `mapstructure:"done_software_settle"`   // 完成按钮软件复核延时
	ProductSwitchDelay  time.Duration `mapstructure:"product_switch_delay"`   // 商品切换最小间隔
}

// SessionConfig 售货会话配置
type SessionConfig struct {
	MaxSessionTime    time.Duration `mapstructure:"max_session_time"`   // 会话最长时长
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"` // 无操作超时
	InactivityWarning time.Duration `mapstructure:"inactivity_warning"` // 无操作警告阈值
	MaxItems          int           `mapstructure:"max_items"`          // 单笔交易商品上限
	MaxPrice          float64       `mapstructure:"max_price"`          // 单笔交易金额上限（元）
	LastTxLogFile     string        `mapstructure:"last_tx_log_file"`   // 末次交易日志文件
}

// CatalogConfig 商品目录配置
type CatalogConfig struct {
	Path string `mapstructure:"path"` // products.json 路径
}

// DisplayConfig 顾客显示屏配置
type DisplayConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Path              string        `mapstructure:"path"` // WebSocket路径
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ReceiptTimeout    time.Duration `mapstructure:"receipt_timeout"` // 小票展示时长
	ErrorTimeout      time.Duration `mapstructure:"error_timeout"`   // 错误展示时长
	TaxRate           float64       `mapstructure:"tax_rate"`        // 小票税率
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
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

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
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
		v.SetEnvPrefix("SOAP_VEND")
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
	})

	return err
}

// setDefaults 设置所有可调参数的默认值
func setDefaults(v *viper.Viper) {
	// 串口默认配置
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.open_retries", 5)
	v.SetDefault("serial.retry_delay", "5s")
	v.SetDefault("serial.settle_delay", "500ms")

	// 支付终端默认配置
	v.SetDefault("payment.auth_amount_cents", 2000)
	v.SetDefault("payment.max_retries", 3)
	v.SetDefault("payment.retry_backoff", "1s")
	v.SetDefault("payment.status_poll_interval", "1s")
	v.SetDefault("payment.auth_status_delay", "1s")
	v.SetDefault("payment.post_reset_delay", "500ms")
	v.SetDefault("payment.declined_retry_delay", "1s")
	v.SetDefault("payment.max_consecutive_errors", 10)

	// 机器硬件默认配置
	v.SetDefault("machine.mock_mode", false)
	v.SetDefault("machine.done_button_pin", 27)
	v.SetDefault("machine.motor_loop_delay", "100ms")
	v.SetDefault("machine.motor_off_debounce", "700ms")
	v.SetDefault("machine.motor_error_delay", "500ms")
	v.SetDefault("machine.max_motor_errors", 5)
	v.SetDefault("machine.done_bounce_time", "500ms")
	v.SetDefault("machine.done_software_settle", "10ms")
	v.SetDefault("machine.product_switch_delay", "500ms")

	// 售货会话默认配置
	v.SetDefault("session.max_session_time", "300s")
	v.SetDefault("session.inactivity_timeout", "60s")
	v.SetDefault("session.inactivity_warning", "45s")
	v.SetDefault("session.max_items", 10)
	v.SetDefault("session.max_price", 1000.0)
	v.SetDefault("session.last_tx_log_file", "./logs/last_tx.log")

	// 商品目录默认配置
	v.SetDefault("catalog.path", "./config/products.json")

	// 显示屏默认配置
	v.SetDefault("display.enabled", true)
	v.SetDefault("display.host", "localhost")
	v.SetDefault("display.port", 5000)
	v.SetDefault("display.path", "/ws")
	v.SetDefault("display.read_buffer_size", 1024)
	v.SetDefault("display.write_buffer_size", 1024)
	v.SetDefault("display.write_timeout", "10s")
	v.SetDefault("display.receipt_timeout", "10s")
	v.SetDefault("display.error_timeout", "10s")
	v.SetDefault("display.tax_rate", 0.0)

	// 数据库默认配置
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/soap-vend.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "soap-vend.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 系统默认配置
	v.SetDefault("system.timezone", "America/Chicago")
	v.SetDefault("system.max_procs", 0)
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
