package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvConfigPath names the env var that overrides the config file path
const EnvConfigPath = "PARLEY_CONFIG"

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	ExternalJWT ExternalJWTConfig `mapstructure:"external_jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Messaging   MessagingConfig   `mapstructure:"messaging"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Blob        BlobConfig        `mapstructure:"blob"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExternalJWTConfig accepts tokens minted by an external identity provider
type ExternalJWTConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Secret            string `mapstructure:"secret"`
	DefaultRole       string `mapstructure:"default_role"`
	DefaultPlatformId int    `mapstructure:"default_platform_id"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PushChannelSize  int           `mapstructure:"push_channel_size"`
	PushWorkerNum    int           `mapstructure:"push_worker_num"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// MessagingConfig holds message store and fanout settings
type MessagingConfig struct {
	EditWindow          time.Duration `mapstructure:"edit_window"`
	PageSize            int           `mapstructure:"page_size"`
	MaxPageSize         int           `mapstructure:"max_page_size"`
	PublishTimeout      time.Duration `mapstructure:"publish_timeout"`
	MonotonicReadCursor bool          `mapstructure:"monotonic_read_cursor"`
	DeletedPlaceholder  string        `mapstructure:"deleted_placeholder"`
	MaxContentLength    int           `mapstructure:"max_content_length"`
}

// PresenceConfig holds typing and online signal settings
type PresenceConfig struct {
	TypingTTL   time.Duration `mapstructure:"typing_ttl"`
	OnlineTTL   time.Duration `mapstructure:"online_ttl"`
	TypingRate  float64       `mapstructure:"typing_rate"`
	TypingBurst int           `mapstructure:"typing_burst"`
}

// BlobConfig holds attachment storage settings
type BlobConfig struct {
	Path    string `mapstructure:"path"`
	MaxSize int64  `mapstructure:"max_size"`
}

// Global config instance
var GlobalConfig *Config

// ResolvePath returns the config path from env, falling back to def
func ResolvePath(def string) string {
	// .env is optional
	_ = godotenv.Load()
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return def
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	GlobalConfig = &cfg
	return &cfg, nil
}

// ApplyDefaults fills zero values
func ApplyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "parley:"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.ExternalJWT.DefaultRole == "" {
		cfg.ExternalJWT.DefaultRole = "user"
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.PushChannelSize == 0 {
		cfg.WebSocket.PushChannelSize = 10000
	}
	if cfg.WebSocket.PushWorkerNum == 0 {
		cfg.WebSocket.PushWorkerNum = 10
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Messaging.EditWindow == 0 {
		cfg.Messaging.EditWindow = 30 * time.Minute
	}
	if cfg.Messaging.PageSize == 0 {
		cfg.Messaging.PageSize = 30
	}
	if cfg.Messaging.MaxPageSize == 0 {
		cfg.Messaging.MaxPageSize = 100
	}
	if cfg.Messaging.PublishTimeout == 0 {
		cfg.Messaging.PublishTimeout = 4 * time.Second
	}
	if cfg.Messaging.DeletedPlaceholder == "" {
		cfg.Messaging.DeletedPlaceholder = "This message was deleted"
	}
	if cfg.Messaging.MaxContentLength == 0 {
		cfg.Messaging.MaxContentLength = 8000
	}
	if cfg.Presence.TypingTTL == 0 {
		cfg.Presence.TypingTTL = 5 * time.Second
	}
	if cfg.Presence.OnlineTTL == 0 {
		cfg.Presence.OnlineTTL = 60 * time.Second
	}
	if cfg.Presence.TypingRate == 0 {
		cfg.Presence.TypingRate = 0.5
	}
	if cfg.Presence.TypingBurst == 0 {
		cfg.Presence.TypingBurst = 2
	}
	if cfg.Blob.Path == "" {
		cfg.Blob.Path = "data/blobs"
	}
	if cfg.Blob.MaxSize == 0 {
		cfg.Blob.MaxSize = 10 << 20
	}
}
